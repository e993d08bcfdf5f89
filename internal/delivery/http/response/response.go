package response

import "github.com/user/alttext-service/internal/entity"

type InjectResponse struct {
	HTML string `json:"html"`
}

// AltsResponse maps image source urls to the alt text a client script
// should apply.
type AltsResponse struct {
	Alts map[string]string `json:"alts"`
}

type LogListResponse struct {
	Entries []*entity.ChangeLogEntry `json:"entries"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}

type RevertResponse struct {
	Status string                 `json:"status"`
	Entry  *entity.ChangeLogEntry `json:"entry"`
}

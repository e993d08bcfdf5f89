package repository

import (
	"context"

	"github.com/user/alttext-service/internal/entity"
)

// DocumentRepository exposes parent documents (posts, pages) of the host.
type DocumentRepository interface {
	// GetDocumentContext returns title, excerpt and body of a document, or ErrNotFound.
	GetDocumentContext(ctx context.Context, parentID string) (*entity.PageContext, error)
}

// PageRenderer fetches the fully rendered HTML of a live page.
type PageRenderer interface {
	Render(ctx context.Context, url string) (string, error)
}

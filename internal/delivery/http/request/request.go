package request

type InjectRequest struct {
	HTML string `json:"html"`
}

type StartBulkJobRequest struct {
	Scope       string `json:"scope"` // all, attachedOnly, attachedProducts; empty uses the configured scope
	ForceUpdate bool   `json:"force_update"`
	DryRun      bool   `json:"dry_run"`
}

type PreviewRequest struct {
	URL string `json:"url"`
}

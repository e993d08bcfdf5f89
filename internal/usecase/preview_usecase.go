package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/repository"
)

// PreviewResult is the injected rendering of a live page.
type PreviewResult struct {
	URL  string            `json:"url"`
	HTML string            `json:"html"`
	Alts map[string]string `json:"alts"`
}

// Previewer renders a live page and shows the alt text that would be
// injected, without recording anything.
type Previewer struct {
	pages    repository.PageRenderer
	renderer *Renderer
	logger   *zap.Logger
}

// NewPreviewer creates the preview use case.
func NewPreviewer(pages repository.PageRenderer, renderer *Renderer, logger *zap.Logger) *Previewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Previewer{pages: pages, renderer: renderer, logger: logger}
}

// Preview fetches url through the page renderer and injects alt text.
func (p *Previewer) Preview(ctx context.Context, url string) (*PreviewResult, error) {
	doc, err := p.pages.Render(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	out, alts, err := p.renderer.preview(ctx, doc)
	if err != nil {
		return nil, err
	}
	if alts == nil {
		alts = map[string]string{}
	}
	p.logger.Debug("preview generated", zap.String("url", url), zap.Int("alts", len(alts)))
	return &PreviewResult{URL: url, HTML: out, Alts: alts}, nil
}

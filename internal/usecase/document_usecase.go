package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/alttext"
	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/markup"
	"github.com/user/alttext-service/internal/repository"
	"github.com/user/alttext-service/pkg/config"
	"github.com/user/alttext-service/pkg/metrics"
)

// saveDedupWindow suppresses re-entrant save hooks; writing alt text can
// itself trigger another save of the same document.
const saveDedupWindow = 60 * time.Second

// DocumentSummary reports one ProcessDocumentSave run.
type DocumentSummary struct {
	DocumentID string `json:"document_id"`
	Images     int    `json:"images"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Errors     int    `json:"errors"`
	// Deduplicated is true when the call fell inside another run's window.
	Deduplicated bool `json:"deduplicated"`
}

// DocumentProcessor runs the full decision and write cycle for the images of
// one document.
type DocumentProcessor struct {
	docs      repository.DocumentRepository
	transient repository.TransientRepository
	engine    *alttext.Engine
	writer    *altWriter
}

// NewDocumentProcessor creates the document save use case.
func NewDocumentProcessor(
	settings config.Settings,
	engine *alttext.Engine,
	images repository.ImageRepository,
	docs repository.DocumentRepository,
	transient repository.TransientRepository,
	changelog *ChangeLog,
	m *metrics.Metrics,
	logger *zap.Logger,
) *DocumentProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentProcessor{
		docs:      docs,
		transient: transient,
		engine:    engine,
		writer: &altWriter{
			images:    images,
			changelog: changelog,
			settings:  settings,
			metrics:   m,
			logger:    logger,
			now:       time.Now,
		},
	}
}

// ProcessDocumentSave generates and stores alt text for every image used in
// the document content or attached to it. One AI batch call covers them all.
func (p *DocumentProcessor) ProcessDocumentSave(ctx context.Context, documentID string) (DocumentSummary, error) {
	summary := DocumentSummary{DocumentID: documentID}
	w := p.writer
	if !w.settings.Enabled {
		return summary, nil
	}

	acquired, err := p.transient.SetNX(ctx, "doc:"+documentID, "1", saveDedupWindow)
	if err != nil {
		return summary, fmt.Errorf("acquire document lock: %w", err)
	}
	if !acquired {
		w.logger.Debug("document save deduplicated", zap.String("document_id", documentID))
		summary.Deduplicated = true
		return summary, nil
	}

	page, err := p.docs.GetDocumentContext(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		return summary, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return summary, fmt.Errorf("load document %s: %w", documentID, err)
	}

	ids, err := p.documentImages(ctx, documentID, page.Content)
	if err != nil {
		return summary, err
	}

	var (
		targets []*entity.CanonicalImage
		refs    []entity.ImageReference
	)
	for _, id := range ids {
		img, err := w.images.GetImage(ctx, id)
		if err != nil {
			summary.Errors++
			w.logger.Warn("failed to load image", zap.String("image_id", id), zap.Error(err))
			continue
		}
		summary.Images++
		if w.cachedFresh(img) {
			summary.Skipped++
			w.record(ctx, img, alttext.Decision{}, entity.StatusSkipped, entity.SeverityDebug, reasonCached)
			continue
		}
		targets = append(targets, img)
		refs = append(refs, entity.ImageReference{
			SourceURL:       img.SourceURL,
			CurrentAltText:  img.AltText,
			HasAltAttribute: img.HasAlt,
			Position:        len(refs),
		})
	}
	if len(targets) == 0 {
		return summary, nil
	}

	policy := entity.GenerationPolicy{
		Source:      w.settings.AltSource,
		ForceUpdate: w.settings.ForceUpdate,
		MaxLength:   w.settings.MaxAltLength,
	}
	decisions, err := p.engine.DecideReferences(ctx, refs, *page, policy)
	if err != nil {
		return summary, fmt.Errorf("decide alt text: %w", err)
	}

	for i, d := range decisions {
		img := targets[i]
		d.ImageID = img.ID
		changed, err := w.apply(ctx, img, d, policy.ForceUpdate)
		switch {
		case err != nil:
			summary.Errors++
			w.logger.Error("failed to store alt text", zap.String("image_id", img.ID), zap.Error(err))
		case changed:
			summary.Updated++
		default:
			summary.Skipped++
		}
	}

	w.logger.Info("processed document save",
		zap.String("document_id", documentID),
		zap.Int("images", summary.Images),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// documentImages lists images used in content, in document order, followed
// by attached images not already seen.
func (p *DocumentProcessor) documentImages(ctx context.Context, documentID, content string) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	for _, ref := range markup.ExtractImages(content) {
		id, err := p.writer.images.FindByURL(ctx, ref.SourceURL, documentID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve image %s: %w", ref.SourceURL, err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	attached, err := p.writer.images.GetAttachedImages(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list attached images: %w", err)
	}
	for _, id := range attached {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

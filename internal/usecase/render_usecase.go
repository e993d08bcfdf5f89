package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/alttext"
	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/markup"
	"github.com/user/alttext-service/internal/repository"
	"github.com/user/alttext-service/pkg/config"
	"github.com/user/alttext-service/pkg/metrics"
)

// Renderer fills missing alt attributes in page HTML on the render path.
// It never fails the page: on any error the input is returned unchanged.
type Renderer struct {
	settings  config.Settings
	engine    *alttext.Engine
	images    repository.ImageRepository
	changelog *ChangeLog
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewRenderer creates the render use case. images and changelog may be nil.
func NewRenderer(settings config.Settings, engine *alttext.Engine, images repository.ImageRepository, changelog *ChangeLog, m *metrics.Metrics, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		settings:  settings,
		engine:    engine,
		images:    images,
		changelog: changelog,
		metrics:   m,
		logger:    logger,
	}
}

// resolution is the per-page result of one decision cycle.
type resolution struct {
	refs      []entity.ImageReference
	alts      map[string]string
	decisions []alttext.Decision
	imageIDs  map[string]string
	stored    map[string]bool
	// present holds refs whose alt was already on the page.
	present []entity.ImageReference
}

// InjectIntoBuffer returns html with generated alt text injected. Images
// whose alt is already non-empty are never touched, so a second pass over
// the output is a no-op.
func (r *Renderer) InjectIntoBuffer(ctx context.Context, html string) (out string) {
	if !r.settings.Enabled || r.settings.InjectionMethod == config.InjectClientScript {
		return html
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("recovered from panic while injecting alt text", zap.Any("panic", rec))
			out = html
		}
	}()

	res, err := r.resolve(ctx, html)
	if err != nil {
		r.logger.Warn("alt text injection skipped", zap.Error(err))
		return html
	}
	r.recordRender(ctx, res)
	if len(res.alts) == 0 {
		return html
	}
	return markup.InjectAlts(html, res.refs, res.alts)
}

// ResolveAlts returns the sourceUrl -> alt text map a client script applies
// when the client-script injection method is configured.
func (r *Renderer) ResolveAlts(ctx context.Context, html string) (alts map[string]string) {
	alts = map[string]string{}
	if !r.settings.Enabled {
		return alts
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("recovered from panic while resolving alt text", zap.Any("panic", rec))
			alts = map[string]string{}
		}
	}()

	res, err := r.resolve(ctx, html)
	if err != nil {
		r.logger.Warn("alt text resolution skipped", zap.Error(err))
		return alts
	}
	r.recordRender(ctx, res)
	return res.alts
}

// preview injects without touching the change log.
func (r *Renderer) preview(ctx context.Context, html string) (string, map[string]string, error) {
	res, err := r.resolve(ctx, html)
	if err != nil {
		return html, nil, err
	}
	return markup.InjectAlts(html, res.refs, res.alts), res.alts, nil
}

func (r *Renderer) resolve(ctx context.Context, html string) (*resolution, error) {
	res := &resolution{
		refs:     markup.ExtractImages(html),
		alts:     map[string]string{},
		imageIDs: map[string]string{},
		stored:   map[string]bool{},
	}
	if len(res.refs) == 0 {
		return res, nil
	}

	work := make([]entity.ImageReference, len(res.refs))
	copy(work, res.refs)
	pending := 0
	for i := range work {
		if !work[i].NeedsAlt() {
			res.present = append(res.present, work[i])
			continue
		}
		if alt := r.storedAlt(ctx, work[i].SourceURL, res); alt != "" {
			res.alts[work[i].SourceURL] = alt
			res.stored[work[i].SourceURL] = true
			// Counted as satisfied so the engine skips it but still sees
			// the full page image count.
			work[i].CurrentAltText = alt
			continue
		}
		pending++
	}
	if pending == 0 {
		return res, nil
	}

	policy := entity.GenerationPolicy{Source: r.settings.AltSource, MaxLength: r.settings.MaxAltLength}
	decisions, err := r.engine.DecideReferences(ctx, work, markup.PageContextFromHTML(html), policy)
	if err != nil {
		return nil, fmt.Errorf("decide alt text: %w", err)
	}
	res.decisions = decisions
	for _, d := range decisions {
		if !d.Changed() {
			continue
		}
		if _, seen := res.alts[d.SourceURL]; !seen {
			res.alts[d.SourceURL] = d.NewAlt
		}
	}
	return res, nil
}

// storedAlt reuses alt text already stored for the canonical image.
func (r *Renderer) storedAlt(ctx context.Context, src string, res *resolution) string {
	if r.images == nil || src == "" {
		return ""
	}
	id, err := r.images.FindByURL(ctx, src, "")
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Debug("image lookup failed", zap.String("src", src), zap.Error(err))
		}
		return ""
	}
	res.imageIDs[src] = id
	alt, err := r.images.GetAltText(ctx, id)
	if err != nil {
		r.logger.Debug("stored alt lookup failed", zap.String("image_id", id), zap.Error(err))
		return ""
	}
	return alt
}

func (r *Renderer) recordRender(ctx context.Context, res *resolution) {
	for _, ref := range res.present {
		r.recordSkip(ctx, ref.SourceURL, res.imageIDs[ref.SourceURL], alttext.ReasonAlreadyPresent)
	}
	for src := range res.stored {
		r.metrics.IncImage(string(entity.SourceSystem), string(entity.StatusSuccess))
		r.record(ctx, &entity.ChangeLogEntry{
			ImageID:    entity.StringPtr(res.imageIDs[src]),
			NewAltText: entity.StringPtr(res.alts[src]),
			Source:     entity.SourceSystem,
			Status:     entity.StatusSuccess,
			Severity:   entity.SeverityDebug,
			Message:    entity.StringPtr("stored alt text reused on render"),
		})
	}
	for _, d := range res.decisions {
		if !d.Changed() {
			// Already-present refs were logged above; stored reuses are not skips.
			if d.Reason != alttext.ReasonAlreadyPresent && !res.stored[d.SourceURL] {
				r.recordSkip(ctx, d.SourceURL, res.imageIDs[d.SourceURL], d.Reason)
			}
			continue
		}
		severity := entity.SeverityDebug
		if d.Severity == entity.SeverityError {
			severity = entity.SeverityError
		}
		r.metrics.IncImage(string(d.Source), string(entity.StatusSuccess))
		// No previous value: the render path never writes the store, so
		// these entries are not revertible.
		r.record(ctx, &entity.ChangeLogEntry{
			ImageID:    entity.StringPtr(res.imageIDs[d.SourceURL]),
			NewAltText: entity.StringPtr(d.NewAlt),
			Source:     d.Source,
			ModelUsed:  entity.StringPtr(d.Model),
			Status:     entity.StatusSuccess,
			Severity:   severity,
			Message:    entity.StringPtr(d.Reason),
		})
	}
}

func (r *Renderer) recordSkip(ctx context.Context, src, imageID, reason string) {
	r.metrics.IncImage(string(entity.SourceSystem), string(entity.StatusSkipped))
	r.record(ctx, &entity.ChangeLogEntry{
		ImageID:  entity.StringPtr(imageID),
		Source:   entity.SourceSystem,
		Status:   entity.StatusSkipped,
		Severity: entity.SeverityDebug,
		Message:  entity.StringPtr(reason + ": " + src),
	})
}

func (r *Renderer) record(ctx context.Context, entry *entity.ChangeLogEntry) {
	if _, err := r.changelog.Record(ctx, entry); err != nil {
		r.logger.Warn("failed to record render change", zap.Error(err))
	}
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/alttext"
	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/repository"
	"github.com/user/alttext-service/pkg/config"
	"github.com/user/alttext-service/pkg/metrics"
)

const reasonCached = "fresh ai result cached"

// altWriter persists decisions for canonical images. It is shared by the
// document save hook and the bulk orchestrator.
type altWriter struct {
	images    repository.ImageRepository
	changelog *ChangeLog
	settings  config.Settings
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// cachedFresh reports whether the stored alt came from the provider recently
// enough that it is not regenerated, even under force update.
func (w *altWriter) cachedFresh(img *entity.CanonicalImage) bool {
	return w.settings.CacheAIResults && img.AltText != "" && img.AICache.Fresh(w.now(), w.settings.AICacheTTL)
}

// apply writes d for img and records the change. It reports whether the
// stored value changed.
func (w *altWriter) apply(ctx context.Context, img *entity.CanonicalImage, d alttext.Decision, force bool) (bool, error) {
	source := string(sourceOrSystem(d.Source))
	if !d.Changed() {
		w.record(ctx, img, d, entity.StatusSkipped, entity.SeverityDebug, d.Reason)
		w.metrics.IncImage(source, string(entity.StatusSkipped))
		return false, nil
	}

	wrote, err := w.images.SetAltText(ctx, img.ID, d.NewAlt, force)
	if err != nil {
		w.record(ctx, img, d, entity.StatusError, entity.SeverityError, err.Error())
		w.metrics.IncImage(source, string(entity.StatusError))
		return false, fmt.Errorf("write alt text for image %s: %w", img.ID, err)
	}
	if !wrote {
		// Another writer filled the value between read and write.
		w.record(ctx, img, d, entity.StatusSkipped, entity.SeverityDebug, alttext.ReasonAlreadyPresent)
		w.metrics.IncImage(source, string(entity.StatusSkipped))
		return false, nil
	}

	switch {
	case d.Source == entity.SourceAI && w.settings.CacheAIResults:
		if err := w.images.SetAICache(ctx, img.ID, &entity.AICache{Model: d.Model, CachedAt: w.now()}); err != nil {
			w.logger.Warn("failed to store ai cache marker", zap.String("image_id", img.ID), zap.Error(err))
		}
	case d.Source != entity.SourceAI && img.AICache != nil:
		if err := w.images.SetAICache(ctx, img.ID, nil); err != nil {
			w.logger.Warn("failed to clear ai cache marker", zap.String("image_id", img.ID), zap.Error(err))
		}
	}

	w.record(ctx, img, d, entity.StatusSuccess, d.Severity, d.Reason)
	w.metrics.IncImage(source, string(entity.StatusSuccess))
	return true, nil
}

func (w *altWriter) record(ctx context.Context, img *entity.CanonicalImage, d alttext.Decision, status entity.Status, severity entity.Severity, message string) {
	if severity == "" {
		severity = entity.SeverityInfo
	}
	old := img.AltText
	entry := &entity.ChangeLogEntry{
		ImageID:          entity.StringPtr(img.ID),
		ParentDocumentID: entity.StringPtr(img.ParentID),
		OldAltText:       &old,
		NewAltText:       entity.StringPtr(d.NewAlt),
		Source:           sourceOrSystem(d.Source),
		ModelUsed:        entity.StringPtr(d.Model),
		Status:           status,
		Severity:         severity,
		Message:          entity.StringPtr(message),
	}
	if _, err := w.changelog.Record(ctx, entry); err != nil {
		w.logger.Error("failed to record change", zap.String("image_id", img.ID), zap.Error(err))
	}
}

func sourceOrSystem(s entity.Source) entity.Source {
	if s == "" {
		return entity.SourceSystem
	}
	return s
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/repository"
	"github.com/user/alttext-service/pkg/config"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ChangeLog is the audit trail of alt text changes.
type ChangeLog struct {
	repo          repository.ChangeLogRepository
	images        repository.ImageRepository
	enabled       bool
	minSeverity   entity.Severity
	retentionDays int
	logger        *zap.Logger
	now           func() time.Time
}

// NewChangeLog creates the change log use case.
func NewChangeLog(repo repository.ChangeLogRepository, images repository.ImageRepository, settings config.Settings, logger *zap.Logger) *ChangeLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeLog{
		repo:          repo,
		images:        images,
		enabled:       settings.LoggingEnabled,
		minSeverity:   settings.LogLevel,
		retentionDays: settings.LogRetentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// Record appends entry unless logging is disabled or the entry's severity
// is below the configured minimum. It reports whether the entry was written.
func (c *ChangeLog) Record(ctx context.Context, entry *entity.ChangeLogEntry) (bool, error) {
	if c == nil || !c.enabled || !entry.Severity.AtLeast(c.minSeverity) {
		return false, nil
	}
	if err := c.insert(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

func (c *ChangeLog) insert(ctx context.Context, entry *entity.ChangeLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.now()
	}
	id, err := c.repo.Insert(ctx, entry)
	if err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	entry.ID = id
	return nil
}

// Revert restores the value an entry replaced and appends a revert entry.
// An empty previous value deletes the stored alt text rather than writing
// an empty string. Reverting the same entry twice leaves the same state.
func (c *ChangeLog) Revert(ctx context.Context, logID int64) (*entity.ChangeLogEntry, error) {
	entry, err := c.repo.FindByID(ctx, logID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLogEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	if entry.ImageID == nil || *entry.ImageID == "" || entry.OldAltText == nil {
		return nil, ErrRevertUnsupported
	}
	imageID := *entry.ImageID
	restore := *entry.OldAltText

	current, err := c.images.GetAltText(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("load current alt text: %w", err)
	}

	if restore == "" {
		err = c.images.DeleteAltText(ctx, imageID)
	} else {
		_, err = c.images.SetAltText(ctx, imageID, restore, true)
	}
	if err != nil {
		return nil, fmt.Errorf("restore alt text for image %s: %w", imageID, err)
	}

	revert := &entity.ChangeLogEntry{
		ImageID:          entry.ImageID,
		ParentDocumentID: entry.ParentDocumentID,
		OldAltText:       &current,
		NewAltText:       &restore,
		Source:           entity.SourceRevert,
		Status:           entity.StatusSuccess,
		Severity:         entity.SeverityInfo,
		Message:          entity.StringPtr(fmt.Sprintf("reverted change #%d", entry.ID)),
	}
	// Reverts are always audited, whatever the severity threshold.
	if err := c.insert(ctx, revert); err != nil {
		return nil, err
	}
	c.logger.Info("reverted alt text change", zap.Int64("log_id", logID), zap.String("image_id", imageID))
	return revert, nil
}

// Prune deletes entries older than retentionDays; zero or less uses the
// configured retention.
func (c *ChangeLog) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = c.retentionDays
	}
	cutoff := c.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	n, err := c.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	c.logger.Info("pruned change log", zap.Int64("deleted", n), zap.Int("retention_days", retentionDays))
	return n, nil
}

// List returns entries newest first.
func (c *ChangeLog) List(ctx context.Context, limit, offset int) ([]*entity.ChangeLogEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return c.repo.List(ctx, limit, offset)
}

package repository

import (
	"context"
	"time"

	"github.com/user/alttext-service/internal/entity"
)

// ChangeLogRepository is the append-only structured log sink.
type ChangeLogRepository interface {
	// Insert appends an entry and returns its id.
	Insert(ctx context.Context, entry *entity.ChangeLogEntry) (int64, error)
	// FindByID retrieves one entry, or ErrNotFound.
	FindByID(ctx context.Context, id int64) (*entity.ChangeLogEntry, error)
	// List returns entries newest first.
	List(ctx context.Context, limit, offset int) ([]*entity.ChangeLogEntry, error)
	// DeleteOlderThan removes entries with a timestamp before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

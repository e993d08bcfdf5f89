package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/repository"
)

// ChangeLogRepoImpl provides a concrete implementation for the ChangeLogRepository interface using PostgreSQL.
type ChangeLogRepoImpl struct {
	db *pgxpool.Pool
}

// NewChangeLogRepo creates a new instance of ChangeLogRepoImpl.
func NewChangeLogRepo(db *pgxpool.Pool) *ChangeLogRepoImpl {
	return &ChangeLogRepoImpl{db: db}
}

// Insert appends an entry and returns its id.
func (r *ChangeLogRepoImpl) Insert(ctx context.Context, e *entity.ChangeLogEntry) (int64, error) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	query := `
		INSERT INTO alt_change_log (ts, image_id, parent_document_id, old_alt_text, new_alt_text, source, model_used, status, severity, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id;
	`
	var id int64
	err := r.db.QueryRow(ctx, query,
		ts,
		e.ImageID,
		e.ParentDocumentID,
		e.OldAltText,
		e.NewAltText,
		string(e.Source),
		e.ModelUsed,
		string(e.Status),
		string(e.Severity),
		e.Message,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert change log entry: %w", err)
	}
	return id, nil
}

// FindByID retrieves one entry.
func (r *ChangeLogRepoImpl) FindByID(ctx context.Context, id int64) (*entity.ChangeLogEntry, error) {
	query := `
		SELECT id, ts, image_id, parent_document_id, old_alt_text, new_alt_text, source, model_used, status, severity, message
		FROM alt_change_log
		WHERE id = $1;
	`
	e, err := scanEntry(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find change log entry %d: %w", id, err)
	}
	return e, nil
}

// List returns entries newest first.
func (r *ChangeLogRepoImpl) List(ctx context.Context, limit, offset int) ([]*entity.ChangeLogEntry, error) {
	query := `
		SELECT id, ts, image_id, parent_document_id, old_alt_text, new_alt_text, source, model_used, status, severity, message
		FROM alt_change_log
		ORDER BY id DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*entity.ChangeLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes entries written before cutoff.
func (r *ChangeLogRepoImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM alt_change_log WHERE ts < $1;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune change log: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEntry(row pgx.Row) (*entity.ChangeLogEntry, error) {
	var (
		e                        entity.ChangeLogEntry
		source, status, severity string
	)
	if err := row.Scan(
		&e.ID,
		&e.Timestamp,
		&e.ImageID,
		&e.ParentDocumentID,
		&e.OldAltText,
		&e.NewAltText,
		&source,
		&e.ModelUsed,
		&status,
		&severity,
		&e.Message,
	); err != nil {
		return nil, err
	}
	e.Source = entity.Source(source)
	e.Status = entity.Status(status)
	e.Severity = entity.Severity(severity)
	return &e, nil
}

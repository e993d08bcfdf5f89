package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/repository"
)

// ChangeLogRepoImpl implements repository.ChangeLogRepository on SQLite.
type ChangeLogRepoImpl struct {
	db *sql.DB
}

// NewChangeLogRepo creates a new instance of ChangeLogRepoImpl.
func NewChangeLogRepo(db *sql.DB) *ChangeLogRepoImpl {
	return &ChangeLogRepoImpl{db: db}
}

const changeLogColumns = `id, ts, image_id, parent_document_id, old_alt_text, new_alt_text, source, model_used, status, severity, message`

// Insert appends an entry and returns its id.
func (r *ChangeLogRepoImpl) Insert(ctx context.Context, e *entity.ChangeLogEntry) (int64, error) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO alt_change_log (ts, image_id, parent_document_id, old_alt_text, new_alt_text, source, model_used, status, severity, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(ts),
		nullablePtr(e.ImageID),
		nullablePtr(e.ParentDocumentID),
		nullablePtr(e.OldAltText),
		nullablePtr(e.NewAltText),
		string(e.Source),
		nullablePtr(e.ModelUsed),
		string(e.Status),
		string(e.Severity),
		nullablePtr(e.Message),
	)
	if err != nil {
		return 0, fmt.Errorf("insert change log entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// FindByID retrieves one entry.
func (r *ChangeLogRepoImpl) FindByID(ctx context.Context, id int64) (*entity.ChangeLogEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+changeLogColumns+` FROM alt_change_log WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find change log entry %d: %w", id, err)
	}
	return e, nil
}

// List returns entries newest first.
func (r *ChangeLogRepoImpl) List(ctx context.Context, limit, offset int) ([]*entity.ChangeLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+changeLogColumns+` FROM alt_change_log ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list change log: %w", err)
	}
	defer rows.Close()

	var entries []*entity.ChangeLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes entries written before cutoff.
func (r *ChangeLogRepoImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alt_change_log WHERE ts < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune change log: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*entity.ChangeLogEntry, error) {
	var (
		e                                            entity.ChangeLogEntry
		ts                                           string
		imageID, parentID, oldAlt, newAlt, model, msg sql.NullString
		source, status, severity                     string
	)
	if err := row.Scan(&e.ID, &ts, &imageID, &parentID, &oldAlt, &newAlt, &source, &model, &status, &severity, &msg); err != nil {
		return nil, err
	}
	parsed, err := parseTime(ts)
	if err != nil {
		return nil, fmt.Errorf("parse ts: %w", err)
	}
	e.Timestamp = parsed
	e.ImageID = ptrFromNull(imageID)
	e.ParentDocumentID = ptrFromNull(parentID)
	e.OldAltText = ptrFromNull(oldAlt)
	e.NewAltText = ptrFromNull(newAlt)
	e.ModelUsed = ptrFromNull(model)
	e.Message = ptrFromNull(msg)
	e.Source = entity.Source(source)
	e.Status = entity.Status(status)
	e.Severity = entity.Severity(severity)
	return &e, nil
}

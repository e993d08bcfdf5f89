package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/repository"
)

// DocumentRepoImpl implements repository.DocumentRepository on SQLite.
type DocumentRepoImpl struct {
	db *sql.DB
}

// NewDocumentRepo creates a new instance of DocumentRepoImpl.
func NewDocumentRepo(db *sql.DB) *DocumentRepoImpl {
	return &DocumentRepoImpl{db: db}
}

// Upsert registers or replaces a document.
func (r *DocumentRepoImpl) Upsert(ctx context.Context, id string, page entity.PageContext) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, excerpt, content) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, excerpt = excluded.excerpt, content = excluded.content`,
		id, page.Title, page.Excerpt, page.Content,
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", id, err)
	}
	return nil
}

// GetDocumentContext returns the title, excerpt and content of a document.
func (r *DocumentRepoImpl) GetDocumentContext(ctx context.Context, parentID string) (*entity.PageContext, error) {
	var page entity.PageContext
	err := r.db.QueryRowContext(ctx, `SELECT title, excerpt, content FROM documents WHERE id = ?`, parentID).
		Scan(&page.Title, &page.Excerpt, &page.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", parentID, err)
	}
	return &page, nil
}

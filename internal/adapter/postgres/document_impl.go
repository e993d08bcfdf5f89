package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/repository"
)

// DocumentRepoImpl provides a concrete implementation for the DocumentRepository interface using PostgreSQL.
type DocumentRepoImpl struct {
	db *pgxpool.Pool
}

// NewDocumentRepo creates a new instance of DocumentRepoImpl.
func NewDocumentRepo(db *pgxpool.Pool) *DocumentRepoImpl {
	return &DocumentRepoImpl{db: db}
}

// Upsert stores or updates a document.
func (r *DocumentRepoImpl) Upsert(ctx context.Context, id string, page entity.PageContext) error {
	query := `
		INSERT INTO documents (id, title, excerpt, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			excerpt = EXCLUDED.excerpt,
			content = EXCLUDED.content;
	`
	_, err := r.db.Exec(ctx, query, id, page.Title, page.Excerpt, page.Content)
	return err
}

// GetDocumentContext retrieves title, excerpt and content of a document.
func (r *DocumentRepoImpl) GetDocumentContext(ctx context.Context, parentID string) (*entity.PageContext, error) {
	var page entity.PageContext
	err := r.db.QueryRow(ctx, `SELECT title, excerpt, content FROM documents WHERE id = $1;`, parentID).
		Scan(&page.Title, &page.Excerpt, &page.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", parentID, err)
	}
	return &page, nil
}

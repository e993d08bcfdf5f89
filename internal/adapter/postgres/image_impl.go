package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/repository"
	"github.com/user/alttext-service/pkg/utils"
)

// ImageRepoImpl provides a concrete implementation for the ImageRepository interface using PostgreSQL.
type ImageRepoImpl struct {
	db *pgxpool.Pool
}

// NewImageRepo creates a new instance of ImageRepoImpl.
func NewImageRepo(db *pgxpool.Pool) *ImageRepoImpl {
	return &ImageRepoImpl{db: db}
}

// Upsert registers or replaces an image record.
func (r *ImageRepoImpl) Upsert(ctx context.Context, img *entity.CanonicalImage) error {
	var alt *string
	if img.HasAlt || img.AltText != "" {
		alt = &img.AltText
	}
	var model *string
	var cachedAt *time.Time
	if img.AICache != nil {
		model = entity.StringPtr(img.AICache.Model)
		cachedAt = &img.AICache.CachedAt
	}
	query := `
		INSERT INTO images (id, parent_id, source_url, alt_text, is_product, ai_model, ai_cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			source_url = EXCLUDED.source_url,
			alt_text = EXCLUDED.alt_text,
			is_product = EXCLUDED.is_product,
			ai_model = EXCLUDED.ai_model,
			ai_cached_at = EXCLUDED.ai_cached_at;
	`
	_, err := r.db.Exec(ctx, query,
		img.ID,
		entity.StringPtr(img.ParentID),
		img.SourceURL,
		alt,
		img.IsProduct,
		model,
		cachedAt,
	)
	return err
}

// GetImage retrieves a canonical image by id.
func (r *ImageRepoImpl) GetImage(ctx context.Context, id string) (*entity.CanonicalImage, error) {
	query := `
		SELECT id, parent_id, source_url, alt_text, is_product, ai_model, ai_cached_at
		FROM images
		WHERE id = $1;
	`
	var (
		img      entity.CanonicalImage
		parent   *string
		alt      *string
		model    *string
		cachedAt *time.Time
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&img.ID, &parent, &img.SourceURL, &alt, &img.IsProduct, &model, &cachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", id, err)
	}
	img.ParentID = entity.Deref(parent)
	img.AltText = entity.Deref(alt)
	img.HasAlt = alt != nil
	if cachedAt != nil {
		img.AICache = &entity.AICache{Model: entity.Deref(model), CachedAt: *cachedAt}
	}
	return &img, nil
}

// GetAltText returns the stored alt text.
func (r *ImageRepoImpl) GetAltText(ctx context.Context, id string) (string, error) {
	var alt *string
	err := r.db.QueryRow(ctx, `SELECT alt_text FROM images WHERE id = $1;`, id).Scan(&alt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get alt text %s: %w", id, err)
	}
	return entity.Deref(alt), nil
}

// SetAltText writes only when the stored value is empty or force is set.
// The condition is evaluated by the UPDATE itself.
func (r *ImageRepoImpl) SetAltText(ctx context.Context, id, text string, force bool) (bool, error) {
	query := `
		UPDATE images SET alt_text = $2
		WHERE id = $1 AND ($3 OR alt_text IS NULL OR alt_text = '');
	`
	tag, err := r.db.Exec(ctx, query, id, text, force)
	if err != nil {
		return false, fmt.Errorf("set alt text %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := r.GetAltText(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// DeleteAltText removes the stored alt value.
func (r *ImageRepoImpl) DeleteAltText(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE images SET alt_text = NULL WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete alt text %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetAICache records or clears the AI cache marker.
func (r *ImageRepoImpl) SetAICache(ctx context.Context, id string, cache *entity.AICache) error {
	var model *string
	var cachedAt *time.Time
	if cache != nil {
		model = entity.StringPtr(cache.Model)
		cachedAt = &cache.CachedAt
	}
	tag, err := r.db.Exec(ctx, `UPDATE images SET ai_model = $2, ai_cached_at = $3 WHERE id = $1;`, id, model, cachedAt)
	if err != nil {
		return fmt.Errorf("set ai cache %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetAttachedImages lists image ids attached to a parent document.
func (r *ImageRepoImpl) GetAttachedImages(ctx context.Context, parentID string) ([]string, error) {
	return r.queryIDs(ctx, `SELECT id FROM images WHERE parent_id = $1 ORDER BY id;`, parentID)
}

// FindByURL matches the url as given, without its query string, and as the
// original upload of a resized variant. Images attached to parentID win.
func (r *ImageRepoImpl) FindByURL(ctx context.Context, url, parentID string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", repository.ErrNotFound
	}
	candidates := []string{url, utils.StripQuery(url), utils.CanonicalImageURL(url)}
	query := `
		SELECT id FROM images
		WHERE source_url = ANY($1)
		ORDER BY (parent_id IS NOT DISTINCT FROM $2) DESC, id
		LIMIT 1;
	`
	var id string
	err := r.db.QueryRow(ctx, query, candidates, parentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find image by url: %w", err)
	}
	return id, nil
}

// ListCandidates returns image ids in id order for a bulk scope.
func (r *ImageRepoImpl) ListCandidates(ctx context.Context, scope entity.BulkScope, includeWithAlt bool) ([]string, error) {
	var where []string
	switch scope {
	case entity.ScopeAttachedOnly:
		where = append(where, "parent_id IS NOT NULL AND parent_id <> ''")
	case entity.ScopeAttachedProducts:
		where = append(where, "parent_id IS NOT NULL AND parent_id <> ''", "is_product")
	}
	if !includeWithAlt {
		where = append(where, "(alt_text IS NULL OR alt_text = '')")
	}
	query := `SELECT id FROM images`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	return r.queryIDs(ctx, query+` ORDER BY id;`)
}

func (r *ImageRepoImpl) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

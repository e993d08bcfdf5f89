package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/repository"
	"github.com/user/alttext-service/pkg/utils"
)

// ImageRepoImpl implements repository.ImageRepository on SQLite.
type ImageRepoImpl struct {
	db *sql.DB
}

// NewImageRepo creates a new instance of ImageRepoImpl.
func NewImageRepo(db *sql.DB) *ImageRepoImpl {
	return &ImageRepoImpl{db: db}
}

// Upsert registers or replaces an image. The host storage owns image
// registration; this exists for imports and tests.
func (r *ImageRepoImpl) Upsert(ctx context.Context, img *entity.CanonicalImage) error {
	var alt sql.NullString
	if img.HasAlt || img.AltText != "" {
		alt = sql.NullString{String: img.AltText, Valid: true}
	}
	var model, cachedAt sql.NullString
	if img.AICache != nil {
		model = nullableString(img.AICache.Model)
		cachedAt = nullableString(formatTime(img.AICache.CachedAt))
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO images (id, parent_id, source_url, alt_text, is_product, ai_model, ai_cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = excluded.parent_id,
			source_url = excluded.source_url,
			alt_text = excluded.alt_text,
			is_product = excluded.is_product,
			ai_model = excluded.ai_model,
			ai_cached_at = excluded.ai_cached_at`,
		img.ID, nullableString(img.ParentID), img.SourceURL, alt, img.IsProduct, model, cachedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert image %s: %w", img.ID, err)
	}
	return nil
}

// GetImage retrieves a canonical image by id.
func (r *ImageRepoImpl) GetImage(ctx context.Context, id string) (*entity.CanonicalImage, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, parent_id, source_url, alt_text, is_product, ai_model, ai_cached_at
		FROM images WHERE id = ?`, id)

	var (
		img                       entity.CanonicalImage
		parent, alt, model, cache sql.NullString
	)
	if err := row.Scan(&img.ID, &parent, &img.SourceURL, &alt, &img.IsProduct, &model, &cache); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get image %s: %w", id, err)
	}
	img.ParentID = parent.String
	img.AltText = alt.String
	img.HasAlt = alt.Valid
	if cache.Valid {
		cachedAt, err := parseTime(cache.String)
		if err != nil {
			return nil, fmt.Errorf("parse ai_cached_at for image %s: %w", id, err)
		}
		img.AICache = &entity.AICache{Model: model.String, CachedAt: cachedAt}
	}
	return &img, nil
}

// GetAltText returns the stored alt text.
func (r *ImageRepoImpl) GetAltText(ctx context.Context, id string) (string, error) {
	var alt sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT alt_text FROM images WHERE id = ?`, id).Scan(&alt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get alt text %s: %w", id, err)
	}
	return alt.String, nil
}

// SetAltText performs the conditional write in one statement so concurrent
// writers cannot both overwrite a non-empty value without force.
func (r *ImageRepoImpl) SetAltText(ctx context.Context, id, text string, force bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE images SET alt_text = ?
		WHERE id = ? AND (? OR alt_text IS NULL OR alt_text = '')`,
		text, id, force,
	)
	if err != nil {
		return false, fmt.Errorf("set alt text %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set alt text %s: %w", id, err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := r.GetAltText(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// DeleteAltText removes the stored alt value.
func (r *ImageRepoImpl) DeleteAltText(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE images SET alt_text = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alt text %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetAICache records or clears the AI cache marker.
func (r *ImageRepoImpl) SetAICache(ctx context.Context, id string, cache *entity.AICache) error {
	var model, cachedAt sql.NullString
	if cache != nil {
		model = nullableString(cache.Model)
		cachedAt = nullableString(formatTime(cache.CachedAt))
	}
	res, err := r.db.ExecContext(ctx, `UPDATE images SET ai_model = ?, ai_cached_at = ? WHERE id = ?`, model, cachedAt, id)
	if err != nil {
		return fmt.Errorf("set ai cache %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetAttachedImages lists image ids attached to a parent document.
func (r *ImageRepoImpl) GetAttachedImages(ctx context.Context, parentID string) ([]string, error) {
	return r.queryIDs(ctx, `SELECT id FROM images WHERE parent_id = ? ORDER BY id`, parentID)
}

// FindByURL matches the url as given, without its query string, and as the
// original upload of a resized variant. Images attached to parentID win.
func (r *ImageRepoImpl) FindByURL(ctx context.Context, url, parentID string) (string, error) {
	candidates := urlCandidates(url)
	if len(candidates) == 0 {
		return "", repository.ErrNotFound
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(candidates)), ",")
	args := make([]any, 0, len(candidates)+1)
	for _, c := range candidates {
		args = append(args, c)
	}
	args = append(args, parentID)

	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM images
		WHERE source_url IN (`+placeholders+`)
		ORDER BY CASE WHEN parent_id = ? THEN 0 ELSE 1 END, id
		LIMIT 1`, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
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
		where = append(where, "parent_id IS NOT NULL AND parent_id <> ''", "is_product = 1")
	}
	if !includeWithAlt {
		where = append(where, "(alt_text IS NULL OR alt_text = '')")
	}
	query := `SELECT id FROM images`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	return r.queryIDs(ctx, query+` ORDER BY id`)
}

func (r *ImageRepoImpl) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query image ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan image id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func urlCandidates(url string) []string {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, c := range []string{url, utils.StripQuery(url), utils.CanonicalImageURL(url)} {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

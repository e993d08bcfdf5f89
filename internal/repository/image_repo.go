package repository

import (
	"context"

	"github.com/user/alttext-service/internal/entity"
)

// ImageRepository is the host storage capability for canonical images.
type ImageRepository interface {
	// GetImage returns the canonical image, or ErrNotFound.
	GetImage(ctx context.Context, id string) (*entity.CanonicalImage, error)
	// GetAltText returns the stored alt text ("" when none is stored).
	GetAltText(ctx context.Context, id string) (string, error)
	// SetAltText writes text only when the stored value is empty or force is set.
	// It reports whether a write happened.
	SetAltText(ctx context.Context, id, text string, force bool) (bool, error)
	// DeleteAltText removes the stored alt value entirely.
	DeleteAltText(ctx context.Context, id string) error
	// SetAICache records (or clears, when cache is nil) the AI cache marker.
	SetAICache(ctx context.Context, id string, cache *entity.AICache) error
	// GetAttachedImages lists the ids of images attached to a parent document.
	GetAttachedImages(ctx context.Context, parentID string) ([]string, error)
	// FindByURL resolves an image url, preferring images attached to parentID.
	// It returns ErrNotFound when nothing matches.
	FindByURL(ctx context.Context, url, parentID string) (string, error)
	// ListCandidates returns image ids in stable id order for a bulk scope.
	ListCandidates(ctx context.Context, scope entity.BulkScope, includeWithAlt bool) ([]string, error)
}

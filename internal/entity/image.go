package entity

import "time"

// ImageReference is one occurrence of an <img> element in a document.
// It is built fresh per extraction and never persisted.
type ImageReference struct {
	SourceURL      string `json:"src"`
	CurrentAltText string `json:"alt"`
	// HasAltAttribute is true when the tag carries an alt attribute, even an empty one.
	HasAltAttribute bool `json:"has_alt"`
	// RawMatchedMarkup is the exact original serialization of the tag.
	RawMatchedMarkup string `json:"-"`
	Position         int    `json:"position"`
	// Offset is the byte offset of RawMatchedMarkup in the source document.
	Offset int `json:"-"`
}

// NeedsAlt reports whether the reference is missing usable alt text.
func (r ImageReference) NeedsAlt() bool {
	return r.CurrentAltText == ""
}

// AICache marks a stored alt text as produced by an AI provider.
type AICache struct {
	Model    string    `json:"model"`
	CachedAt time.Time `json:"cached_at"`
}

// Fresh reports whether the cache marker is still within ttl at now.
func (c *AICache) Fresh(now time.Time, ttl time.Duration) bool {
	if c == nil || c.CachedAt.IsZero() {
		return false
	}
	return now.Before(c.CachedAt.Add(ttl))
}

// CanonicalImage mirrors the `images` table: a stored image resource
// independent of any one document.
type CanonicalImage struct {
	ID        string
	ParentID  string // empty for unattached images
	SourceURL string
	AltText   string
	HasAlt    bool // false when no alt value is stored at all
	IsProduct bool // attached to a commerce product
	AICache   *AICache
}

package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// HashURL creates a SHA256 hash of a URL string.
// This is useful for creating consistent, safe keys for Redis.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

var sizeSuffix = regexp.MustCompile(`(?i)(-\d+x\d+|-scaled|@\dx)$`)

// StripQuery drops the query string and fragment of a URL.
func StripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// ImageBasename returns the file name of an image URL without extension,
// query string or resized-variant suffix ("photo-300x200.jpg" -> "photo").
func ImageBasename(rawURL string) string {
	p := StripQuery(rawURL)
	if u, err := url.Parse(p); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	return sizeSuffix.ReplaceAllString(base, "")
}

// CanonicalImageURL maps a resized or query-stringed variant to the URL of
// the original upload ("/a/photo-300x200.jpg?v=2" -> "/a/photo.jpg").
func CanonicalImageURL(rawURL string) string {
	p := StripQuery(rawURL)
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	return sizeSuffix.ReplaceAllString(stem, "") + ext
}

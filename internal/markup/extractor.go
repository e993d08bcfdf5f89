// Package markup locates, rewrites and cleans image markup in raw HTML
// without round-tripping the document through a DOM serializer.
package markup

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/user/alttext-service/internal/entity"
)

// ExtractImages returns every <img> element of doc in document order.
// It never fails: the tokenizer recovers from unclosed tags and stray
// quotes, and the contents of script, style and textarea elements are
// treated as raw text.
func ExtractImages(doc string) []entity.ImageReference {
	var images []entity.ImageReference
	z := html.NewTokenizer(strings.NewReader(doc))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return images
		}
		// TagName and TagAttr lowercase the token buffer in place, so the
		// original serialization is copied first.
		raw := string(z.Raw())
		start := offset
		offset += len(raw)

		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "img" {
			continue
		}
		ref, ok := buildReference(raw, hasAttr, z)
		if !ok {
			continue
		}
		ref.Position = len(images)
		ref.Offset = start
		images = append(images, ref)
	}
}

func buildReference(raw string, hasAttr bool, z *html.Tokenizer) (entity.ImageReference, bool) {
	ref := entity.ImageReference{RawMatchedMarkup: raw}
	if !strings.HasPrefix(strings.ToLower(ref.RawMatchedMarkup), "<img") {
		return ref, false
	}
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		switch string(key) {
		case "src":
			if ref.SourceURL == "" {
				ref.SourceURL = strings.TrimSpace(string(val))
			}
		case "alt":
			if !ref.HasAltAttribute {
				ref.HasAltAttribute = true
				ref.CurrentAltText = strings.TrimSpace(string(val))
			}
		}
	}
	return ref, true
}

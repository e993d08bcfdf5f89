package aiclient

import (
	"strconv"

	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/markup"
)

// MapResults pairs each requested image with a provider value: first by
// exact url key, then by its index in the request. Values that are not
// strings, sanitize to nothing, or merely echo the url are dropped.
//
// Index matching assumes the provider preserved request order.
func MapResults(images []entity.ImageReference, collection any, maxLength int) map[string]string {
	alts := make(map[string]string, len(images))
	for i, img := range images {
		raw, found := lookup(collection, img.SourceURL, i)
		if !found {
			continue
		}
		text, ok := raw.(string)
		if !ok {
			continue
		}
		text = markup.Sanitize(text, maxLength)
		if text == "" || text == img.SourceURL {
			continue
		}
		alts[img.SourceURL] = text
	}
	return alts
}

func lookup(collection any, url string, index int) (any, bool) {
	switch c := collection.(type) {
	case map[string]any:
		if v, ok := c[url]; ok {
			return v, true
		}
		v, ok := c[strconv.Itoa(index)]
		return v, ok
	case []any:
		if index < len(c) {
			return c[index], true
		}
	}
	return nil, false
}

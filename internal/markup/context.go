package markup

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/alttext-service/internal/entity"
)

// PageContextFromHTML derives title, excerpt and plain content from a
// rendered page. A fragment without <head> yields only content.
func PageContextFromHTML(doc string) entity.PageContext {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return entity.PageContext{}
	}

	metas := make(map[string]string)
	parsed.Find("meta").Each(func(i int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		property, _ := s.Attr("property")
		content, _ := s.Attr("content")
		key := strings.ToLower(name)
		if property != "" {
			key = strings.ToLower(property)
		}
		if key != "" && content != "" {
			if _, seen := metas[key]; !seen {
				metas[key] = strings.TrimSpace(content)
			}
		}
	})

	pc := entity.PageContext{
		Title:   firstNonEmpty(metas["og:title"], parsed.Find("title").First().Text(), parsed.Find("h1").First().Text()),
		Excerpt: firstNonEmpty(metas["description"], metas["og:description"]),
	}

	parsed.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})
	pc.Content = strings.Join(strings.Fields(parsed.Find("body").Text()), " ")
	pc.Title = strings.Join(strings.Fields(pc.Title), " ")
	return pc
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

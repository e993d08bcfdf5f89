package aiclient

import (
	"encoding/json"
	"regexp"
)

// DefaultRequestTemplate is used when no template is configured.
const DefaultRequestTemplate = `{"model":"{{model}}","max_length":{{max_length}},"image_count":{{image_count}},` +
	`"page":{"title":"{{post_title}}","excerpt":"{{post_excerpt}}","content":"{{post_content}}"},` +
	`"images":{{images_json}},` +
	`"instructions":"Return a JSON object mapping each image url to concise, descriptive alt text of at most {{max_length}} characters."}`

// Placeholder is one {{name}} substitution.
type Placeholder struct {
	Name  string
	Value string
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes {{name}} tokens in a single left-to-right pass.
// Substituted values are never rescanned, and a placeholder missing from
// pairs becomes the empty string. The first pair with a given name wins.
func RenderTemplate(tpl string, pairs []Placeholder) string {
	return placeholderPattern.ReplaceAllStringFunc(tpl, func(token string) string {
		name := placeholderPattern.FindStringSubmatch(token)[1]
		for _, p := range pairs {
			if p.Name == name {
				return p.Value
			}
		}
		return ""
	})
}

// jsonEscape returns s encoded as a JSON string body without the quotes.
func jsonEscape(s string) string {
	b, err := json.Marshal(s)
	if err != nil || len(b) < 2 {
		return ""
	}
	return string(b[1 : len(b)-1])
}

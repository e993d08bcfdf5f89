package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/user/alttext-service/pkg/utils"
)

// Sanitize turns arbitrary text into alt text: markup is stripped, entities
// decoded, whitespace runs collapsed, and the result is cut to at most
// maxLength characters on a word boundary. A leading word longer than
// maxLength is hard-cut.
func Sanitize(text string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	plain := StripTags(text)
	if strings.Contains(plain, "<") {
		// entity-encoded markup decodes into tags on the first pass
		plain = StripTags(plain)
	}
	plain = strings.Join(strings.Fields(plain), " ")
	return TruncateWords(plain, maxLength)
}

// StripTags returns the decoded text content of an HTML fragment, dropping
// script and style bodies.
func StripTags(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style:
				skip++
			case atom.Br, atom.P, atom.Div, atom.Li:
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style:
				if skip > 0 {
					skip--
				}
			case atom.P, atom.Div, atom.Li:
				b.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

// TruncateWords cuts s to at most max runes without leaving a partial
// trailing word. s is expected to be whitespace-collapsed.
func TruncateWords(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := string(r[:max])
	if r[max] != ' ' {
		i := strings.LastIndexByte(cut, ' ')
		if i <= 0 {
			return cut
		}
		cut = cut[:i]
	}
	trimmed := strings.TrimRight(cut, " ,;:-")
	if trimmed == "" {
		return strings.TrimSpace(cut)
	}
	return trimmed
}

// HumanizeFilename derives readable words from an image url:
// "/u/red_tulips-in-bloom-300x200.jpg" becomes "Red Tulips In Bloom".
func HumanizeFilename(rawURL string) string {
	base := utils.ImageBasename(rawURL)
	if base == "" {
		return ""
	}
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == '+' || r == ' '
	})
	if len(words) == 0 {
		return ""
	}
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

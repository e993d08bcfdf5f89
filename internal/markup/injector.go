package markup

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/user/alttext-service/internal/entity"
)

// InjectAlts writes alt attributes for every image with a non-empty entry in
// alts (keyed by source url) and returns the new document. Images are
// located at their extracted offset, falling back to an exact substring
// search from the end of the previous replacement, so repeated identical
// tags are rewritten one at a time in document order. An image whose markup
// can no longer be found is skipped.
func InjectAlts(doc string, images []entity.ImageReference, alts map[string]string) string {
	if len(images) == 0 || len(alts) == 0 {
		return doc
	}
	var out strings.Builder
	out.Grow(len(doc) + 32*len(images))
	cursor := 0
	for _, img := range images {
		alt := alts[img.SourceURL]
		if alt == "" || img.RawMatchedMarkup == "" {
			continue
		}
		idx := locate(doc, cursor, img)
		if idx < 0 {
			continue
		}
		rewritten, ok := RewriteTag(img.RawMatchedMarkup, img.HasAltAttribute, alt)
		if !ok {
			continue
		}
		out.WriteString(doc[cursor:idx])
		out.WriteString(rewritten)
		cursor = idx + len(img.RawMatchedMarkup)
	}
	if cursor == 0 {
		return doc
	}
	out.WriteString(doc[cursor:])
	return out.String()
}

// locate returns the byte offset of img's markup at or after cursor, or -1.
// The extracted offset is trusted when the markup is still there, so an
// identical tag inside a script or comment earlier in doc is not rewritten.
func locate(doc string, cursor int, img entity.ImageReference) int {
	if off := img.Offset; off >= cursor && off+len(img.RawMatchedMarkup) <= len(doc) &&
		doc[off:off+len(img.RawMatchedMarkup)] == img.RawMatchedMarkup {
		return off
	}
	idx := strings.Index(doc[cursor:], img.RawMatchedMarkup)
	if idx < 0 {
		return -1
	}
	return idx + cursor
}

// RewriteTag sets the alt attribute on a single raw <img> tag. When hasAlt
// is false the attribute is inserted before the closing ">" or "/>";
// otherwise the existing alt attribute (double, single, unquoted or
// valueless) is replaced in place. It reports false when the tag cannot be
// rewritten safely.
func RewriteTag(tag string, hasAlt bool, alt string) (string, bool) {
	attr := `alt="` + html.EscapeString(alt) + `"`
	if hasAlt {
		start, end, found := findAttr(tag, "alt")
		if !found {
			return "", false
		}
		return tag[:start] + attr + tag[end:], true
	}
	if !strings.HasSuffix(tag, ">") {
		return "", false
	}
	head, tail := tag[:len(tag)-1], ">"
	if selfClosing(head) {
		head, tail = head[:len(head)-1], "/>"
	}
	if trimmed := strings.TrimRight(head, " \t\r\n\f"); trimmed != head {
		// keep the author's spacing before the closing delimiter
		return trimmed + " " + attr + head[len(trimmed):] + tail, true
	}
	return head + " " + attr + tail, true
}

// findAttr returns the byte span [start,end) of the first attribute named
// name (case-insensitive) within a raw start tag, including its value.
func findAttr(tag, name string) (int, int, bool) {
	i := 1
	// skip the tag name
	for i < len(tag) && !isSpace(tag[i]) && tag[i] != '>' && tag[i] != '/' {
		i++
	}
	for i < len(tag) {
		for i < len(tag) && (isSpace(tag[i]) || tag[i] == '/') {
			i++
		}
		if i >= len(tag) || tag[i] == '>' {
			return 0, 0, false
		}
		keyStart := i
		for i < len(tag) && !isSpace(tag[i]) && tag[i] != '=' && tag[i] != '>' && tag[i] != '/' {
			i++
		}
		key := tag[keyStart:i]
		end := i
		j := i
		for j < len(tag) && isSpace(tag[j]) {
			j++
		}
		if j < len(tag) && tag[j] == '=' {
			j++
			for j < len(tag) && isSpace(tag[j]) {
				j++
			}
			j = skipValue(tag, j)
			end = j
			i = j
		}
		if strings.EqualFold(key, name) {
			return keyStart, end, true
		}
		if i == keyStart {
			// stray character, move past it
			i++
		}
	}
	return 0, 0, false
}

// selfClosing reports whether head, a start tag without its final '>',
// ends in a self-closing slash. A slash that ends an unquoted attribute
// value belongs to the value: <img src=a.jpg/> has src "a.jpg/".
func selfClosing(head string) bool {
	if !strings.HasSuffix(head, "/") {
		return false
	}
	i := 1
	for i < len(head) && !isSpace(head[i]) && head[i] != '/' {
		i++
	}
	for i < len(head) {
		for i < len(head) && (isSpace(head[i]) || head[i] == '/') {
			i++
		}
		if i >= len(head) {
			return true
		}
		for i < len(head) && !isSpace(head[i]) && head[i] != '=' && head[i] != '/' {
			i++
		}
		j := i
		for j < len(head) && isSpace(head[j]) {
			j++
		}
		if j >= len(head) || head[j] != '=' {
			if j == i && i < len(head) && head[i] == '=' {
				i++
			}
			continue
		}
		j++
		for j < len(head) && isSpace(head[j]) {
			j++
		}
		unquoted := j < len(head) && head[j] != '"' && head[j] != '\''
		j = skipValue(head, j)
		if unquoted && j >= len(head) {
			return false
		}
		i = j
	}
	return true
}

func skipValue(tag string, i int) int {
	if i >= len(tag) {
		return i
	}
	switch q := tag[i]; q {
	case '"', '\'':
		if k := strings.IndexByte(tag[i+1:], q); k >= 0 {
			return i + 1 + k + 1
		}
		// unterminated quote runs to the closing bracket
		if k := strings.LastIndexByte(tag, '>'); k > i {
			return k
		}
		return len(tag)
	}
	for i < len(tag) && !isSpace(tag[i]) && tag[i] != '>' {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

package alttext

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/markup"
)

// positionHeadroom is the room kept free before a position suffix is added.
const positionHeadroom = 15

// HeuristicAlt derives alt text from page metadata. The excerpt wins over
// the title; on pages with several images the humanized filename and then
// the image number are appended while they fit. The filename alone is used
// only when the page has neither excerpt nor title.
func HeuristicAlt(page entity.PageContext, url string, position, imageCount, maxLength int) string {
	base := markup.Sanitize(page.Excerpt, maxLength)
	if base == "" {
		base = markup.Sanitize(page.Title, maxLength)
	}
	name := markup.HumanizeFilename(url)
	if base == "" {
		return markup.Sanitize(name, maxLength)
	}

	if imageCount > 1 && name != "" && !strings.EqualFold(name, base) {
		if candidate := base + " - " + name; utf8.RuneCountInString(candidate) <= maxLength {
			base = candidate
		}
	}
	if imageCount > 2 {
		suffix := fmt.Sprintf(" (Image %d)", position+1)
		if utf8.RuneCountInString(base) < maxLength-positionHeadroom &&
			utf8.RuneCountInString(base+suffix) <= maxLength {
			base += suffix
		}
	}
	return base
}

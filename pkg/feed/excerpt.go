package feed

import (
	"strings"

	"golang.org/x/net/html"
)

// Excerpt strips markup from a sanitized summary and truncates it to at most
// maxRunes runes, for places that want a plain-text teaser instead of HTML.
func Excerpt(summary string, maxRunes int) string {
	tok := html.NewTokenizer(strings.NewReader(summary))
	var b strings.Builder
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			b.Write(tok.Text())
			b.WriteByte(' ')
		}
	}

	text := strings.Join(strings.Fields(b.String()), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return strings.TrimRight(string(runes[:maxRunes]), " ") + "..."
}

package connectors

import (
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]+>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// CleanText strips markup, unescapes entities, collapses whitespace and
// truncates to maxLen runes. maxLen <= 0 disables truncation.
func CleanText(s string, maxLen int) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
	return Truncate(s, maxLen)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

var dateLayouts = []string{"2006-01-02T15:04:05", "2006-01-02", "01/02/2006"}

// ParseDate parses the date formats seen across sources. Values longer than a
// second-precision timestamp are cut before parsing. It returns nil when no
// layout matches.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if len(s) > 19 {
		s = s[:19]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

package text

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to at most max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

// Snippet collapses whitespace in an upstream body so it fits on one log line.
func Snippet(body []byte, max int) string {
	return Truncate(strings.Join(strings.Fields(string(body)), " "), max)
}

package validators

import (
	"strings"
	"unicode"
)

// CleanText trims s, drops control characters other than newline and tab,
// and truncates to maxRunes runes when maxRunes is positive.
func CleanText(s string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if maxRunes > 0 {
		if runes := []rune(cleaned); len(runes) > maxRunes {
			cleaned = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return cleaned
}

package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters, and cuts the result
// to maxLen bytes when maxLen is positive.
func SanitizeString(input string, maxLen int) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen > 0 && len(clean) > maxLen {
		clean = clean[:maxLen]
	}
	return clean
}

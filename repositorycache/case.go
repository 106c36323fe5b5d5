package repositorycache

import (
	"strings"
	"unicode"
)

// toSnake converts a Go type name to snake_case for use as a key namespace.
// Anything that is not a letter or digit becomes a single underscore, so
// generic suffixes like "Page[int]" cannot leak ':' into the namespace.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	pendingUnderscore := false
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					pendingUnderscore = true
				}
			}
			r = unicode.ToLower(r)
		case unicode.IsLower(r), unicode.IsDigit(r):
		default:
			pendingUnderscore = true
			continue
		}

		if pendingUnderscore && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingUnderscore = false
		b.WriteRune(r)
	}
	return b.String()
}

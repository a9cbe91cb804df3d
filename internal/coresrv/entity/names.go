package entity

import (
	"strings"
)

// SanitizeSubdirName reduces a name to the characters allowed in managed
// directory names: letters, digits, underscore, and hyphen. Everything else
// is dropped.
func SanitizeSubdirName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z',
			c >= 'A' && c <= 'Z',
			c >= '0' && c <= '9',
			c == '_', c == '-':
			b.WriteRune(c)
		}
	}
	return b.String()
}

// internal/catalog/isbn.go
package catalog

import "strings"

// normalizeISBN strips everything but digits and a trailing X, so hyphenated
// and spaced forms compare equal.
func normalizeISBN(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= '0' && r <= '9') || r == 'X' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validISBN accepts 10 or 13 significant characters after normalization. An
// X check digit is only legal in last position of a 10-character ISBN.
func validISBN(normalized string) bool {
	switch len(normalized) {
	case 10:
		for i, r := range normalized {
			if r == 'X' && i != 9 {
				return false
			}
		}
		return true
	case 13:
		return !strings.ContainsRune(normalized, 'X')
	default:
		return false
	}
}

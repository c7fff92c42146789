// ABOUTME: Text normalization helpers shared by canonicalization and field aliasing
// ABOUTME: Strips diacritics and folds case so "Sécurité" and "securite" compare equal
package canonical

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText lower-cases, trims and strips diacritics from s. It is
// the comparison key for field aliases and formation labels.
func NormalizeText(s string) string {
	stripped, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		stripped = s
	}
	return strings.ToLower(strings.TrimSpace(stripped))
}

// NormalizeCode trims and lower-cases a product code. Classification is
// a pure function of this form, so normalizing twice is a no-op.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

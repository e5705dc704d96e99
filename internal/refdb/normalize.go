// Package refdb holds the canonical wine reference catalog: bulk-imported
// read-mostly rows, tiered matching against extracted records, and the
// fill-only enrichment merge.
package refdb

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize collapses a name for matching: accents stripped, lower case,
// punctuation folded to spaces, whitespace collapsed. "Château Margaux" and
// "chateau  MARGAUX." normalize to the same key.
func Normalize(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeCode keeps only the digits of a canonical wine code, so printed
// forms like "LWIN 11234567" and "1123-4567" compare equal.
func NormalizeCode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

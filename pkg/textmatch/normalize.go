// Package textmatch normalizes noisy OCR text and fuzzy-matches it
// against roster names.
package textmatch

import (
	"regexp"
	"strings"
	"unicode"
)

// Sign-in sheets are usually numbered; strip a leading "1.", "2)",
// "#3", "4 -" style prefix before anything else.
var leadingNumbering = regexp.MustCompile(`^\s*#?\d+\s*[.)\-:]*\s*`)

// Clean canonicalizes a raw detected line into a name string: leading
// numbering removed, every non-letter replaced by a space, whitespace
// collapsed. Total and pure; empty input yields empty output.
func Clean(raw string) string {
	s := leadingNumbering.ReplaceAllString(raw, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

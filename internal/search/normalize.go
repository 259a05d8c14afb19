package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Query pairs what the user typed with its comparison form.
type Query struct {
	Raw        string
	Normalized string
}

// NewQuery normalizes raw.
func NewQuery(raw string) Query {
	return Query{Raw: raw, Normalized: Normalize(raw)}
}

// Empty reports whether nothing searchable is left after normalization.
func (q Query) Empty() bool {
	return q.Normalized == ""
}

// Normalize turns a raw query or title into its comparison form: Unicode case
// folded, apostrophes dropped, every other run of punctuation, symbols or
// whitespace collapsed to a single space, and trimmed. Combining marks
// with no letter or digit to attach to are dropped. Normalize is
// idempotent.
func Normalize(raw string) string {
	folded := cases.Fold().String(raw)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	inWord := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			inWord = true
			b.WriteRune(r)
		case unicode.IsMark(r):
			// Combining marks only count attached to a letter or digit.
			if inWord {
				b.WriteRune(r)
			}
		case isApostrophe(r):
			// "Schindler's" and "Schindlers" compare equal.
		default:
			pendingSpace = true
			inWord = false
		}
	}
	return b.String()
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '‘', '’', '`':
		return true
	}
	return false
}

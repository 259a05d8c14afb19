package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "  The   MATRIX ", want: "the matrix"},
		{raw: "Schindler's List", want: "schindlers list"},
		{raw: "Schindler’s  List!", want: "schindlers list"},
		{raw: "Spider-Man: No Way Home", want: "spider man no way home"},
		{raw: "ОДНАЖДЫ в Голливуде", want: "однажды в голливуде"},
		{raw: "Amélie", want: "amélie"},
		{raw: "Se7en", want: "se7en"},
		{raw: "?!...", want: ""},
		{raw: "   ", want: ""},
		{raw: "", want: ""},
		{raw: "\u0301", want: ""},
		{raw: "e\u0301te\u0301", want: "e\u0301te\u0301"},
		{raw: "up \u0301\u0308 down", want: "up down"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"The Matrix", "Schindler's List", "WALL·E", "Ἀχιλλεύς", "İstanbul",
		"Straße", "Leon: The Professional", "  tabs\tand\nnewlines ", "ǅemal", "Ⅻ Monkeys",
		"\u0301leading mark", "x -\u0301y",
	}
	for _, raw := range inputs {
		once := Normalize(raw)
		assert.Equal(t, once, Normalize(once), "normalize(%q) is not idempotent", raw)
	}
}

func TestNewQuery(t *testing.T) {
	q := NewQuery("  The   MATRIX!! ")
	assert.Equal(t, "  The   MATRIX!! ", q.Raw)
	assert.Equal(t, "the matrix", q.Normalized)
	assert.False(t, q.Empty())

	assert.True(t, NewQuery(" ?! ").Empty())
}

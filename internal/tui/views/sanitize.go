package views

import (
	"strings"
	"unicode"
)

// joiners are codepoints that glue emoji sequences together. tcell draws
// each as its own cell, so they are dropped and the base emoji remains.
var joiners = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200d, Hi: 0x200d, Stride: 1}, // zero width joiner
		{Lo: 0xfe00, Hi: 0xfe0f, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1f3fb, Hi: 0x1f3ff, Stride: 1}, // skin tone modifiers
		{Lo: 0xe0100, Hi: 0xe01ef, Stride: 1}, // variation selectors supplement
	},
}

// sanitizeForTerminal removes joiners and control characters, and flattens
// newlines to spaces for single-line cells.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return ' '
		case unicode.Is(joiners, r), unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}

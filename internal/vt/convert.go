package vt

import (
	"github.com/hinshun/vt10x"

	"github.com/termwright/termwright/internal/screen"
)

// Glyph mode bits, matching vt10x's own (unexported) layout as
// cross-checked against its consumers: bit0 reverse, bit1 underline,
// bit2 bold, bit4 italic.
const (
	modeReverse   = 0x01
	modeUnderline = 0x02
	modeBold      = 0x04
	modeItalic    = 0x10
)

// defaultColorThreshold is vt10x's sentinel boundary: any Color value
// at or above this represents "terminal default", not a real palette
// or RGB color.
const defaultColorThreshold = 0x01000000

func glyphToCell(g vt10x.Glyph) screen.Cell {
	ch := g.Char
	if ch == 0 {
		ch = ' '
	}
	return screen.Cell{
		Ch:        ch,
		Fg:        colorToScreen(g.FG),
		Bg:        colorToScreen(g.BG),
		Bold:      g.Mode&modeBold != 0,
		Italic:    g.Mode&modeItalic != 0,
		Underline: g.Mode&modeUnderline != 0,
		Inverse:   g.Mode&modeReverse != 0,
	}
}

// colorToScreen converts a vt10x.Color into the three-way
// {default, indexed, rgb} Color used by the Screen Model.
func colorToScreen(c vt10x.Color) screen.Color {
	n := uint32(c)
	if n >= defaultColorThreshold {
		return screen.DefaultColor
	}
	if n < 256 {
		return screen.Indexed(uint8(n))
	}
	r := uint8((n >> 16) & 0xFF)
	g := uint8((n >> 8) & 0xFF)
	b := uint8(n & 0xFF)
	return screen.RGB(r, g, b)
}

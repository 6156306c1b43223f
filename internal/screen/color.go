package screen

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorKind distinguishes the three ways a Cell's foreground or
// background can be specified.
type ColorKind int

const (
	ColorDefault ColorKind = iota
	ColorIndexed
	ColorRGB
)

// Color is one of {default, palette index 0..255, true-color RGB}.
type Color struct {
	Kind  ColorKind
	Index uint8 // valid when Kind == ColorIndexed
	R, G, B uint8 // valid when Kind == ColorRGB
}

// DefaultColor is the zero value, representing "use the terminal's
// default" for either foreground or background.
var DefaultColor = Color{Kind: ColorDefault}

// Indexed constructs a palette-index color.
func Indexed(i uint8) Color { return Color{Kind: ColorIndexed, Index: i} }

// RGB constructs a true-color RGB color.
func RGB(r, g, b uint8) Color { return Color{Kind: ColorRGB, R: r, G: g, B: b} }

// ansi16 is the standard 16-color ANSI palette (SGR 30-37, 90-97).
var ansi16 = [16]color.RGBA{
	{0, 0, 0, 255}, {205, 0, 0, 255}, {0, 205, 0, 255}, {205, 205, 0, 255},
	{0, 0, 238, 255}, {205, 0, 205, 255}, {0, 205, 205, 255}, {229, 229, 229, 255},
	{127, 127, 127, 255}, {255, 0, 0, 255}, {0, 255, 0, 255}, {255, 255, 0, 255},
	{92, 92, 255, 255}, {255, 0, 255, 255}, {0, 255, 255, 255}, {255, 255, 255, 255},
}

// indexedToRGBA resolves a 0..255 xterm palette index to RGBA, covering
// the 16-color base palette, the 6x6x6 color cube (16-231), and the
// grayscale ramp (232-255).
func indexedToRGBA(i uint8) color.RGBA {
	switch {
	case i < 16:
		return ansi16[i]
	case i < 232:
		n := int(i) - 16
		r := n / 36
		g := (n % 36) / 6
		b := n % 6
		step := func(v int) uint8 {
			if v == 0 {
				return 0
			}
			return uint8(55 + v*40)
		}
		return color.RGBA{R: step(r), G: step(g), B: step(b), A: 255}
	default:
		v := uint8(8 + (int(i)-232)*10)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}
}

// Hex returns a "#rrggbb" hint for this color, or "" for ColorDefault.
// Indexed colors are resolved through the standard xterm palette.
func (c Color) Hex() string {
	var rgba color.RGBA
	switch c.Kind {
	case ColorDefault:
		return ""
	case ColorIndexed:
		rgba = indexedToRGBA(c.Index)
	case ColorRGB:
		rgba = color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
	}
	cc, ok := colorful.MakeColor(rgba)
	if !ok {
		return ""
	}
	return cc.Clamped().Hex()
}

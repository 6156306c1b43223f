package screen

// Cell is one character position on the screen.
type Cell struct {
	Ch rune
	Fg Color
	Bg Color

	Bold      bool
	Italic    bool
	Underline bool
	Inverse   bool

	// Trailer marks this cell as the sentinel second half of a
	// double-width character: an empty glyph that inherits the lead
	// cell's attributes and colors but contributes nothing to Text().
	Trailer bool
}

// WideTrailer builds the sentinel occupying the second cell of a
// double-width character, inheriting lead's attributes and colors.
func WideTrailer(lead Cell) Cell {
	t := lead
	t.Ch = 0
	t.Trailer = true
	return t
}

// blankCell is the default cell: a space with default colors and no
// attributes.
var blankCell = Cell{Ch: ' '}

func (c Cell) rune() rune {
	if c.Ch == 0 {
		return ' '
	}
	return c.Ch
}

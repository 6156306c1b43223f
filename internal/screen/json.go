package screen

import "encoding/json"

// colorJSON mirrors the wire Color schema:
// {"type":"default"} | {"type":"indexed","value":0..255} | {"type":"rgb","r":..,"g":..,"b":..}
type colorJSON struct {
	Type  string `json:"type"`
	Value *int   `json:"value,omitempty"`
	R     *int   `json:"r,omitempty"`
	G     *int   `json:"g,omitempty"`
	B     *int   `json:"b,omitempty"`
	Hex   string `json:"hex,omitempty"`
}

func colorToJSON(c Color) colorJSON {
	switch c.Kind {
	case ColorIndexed:
		v := int(c.Index)
		return colorJSON{Type: "indexed", Value: &v, Hex: c.Hex()}
	case ColorRGB:
		r, g, b := int(c.R), int(c.G), int(c.B)
		return colorJSON{Type: "rgb", R: &r, G: &g, B: &b, Hex: c.Hex()}
	default:
		return colorJSON{Type: "default"}
	}
}

type cellJSON struct {
	Char      string    `json:"char"`
	Fg        colorJSON `json:"fg"`
	Bg        colorJSON `json:"bg"`
	Bold      bool      `json:"bold"`
	Italic    bool      `json:"italic"`
	Underline bool      `json:"underline"`
	Inverse   bool      `json:"inverse"`
}

func cellToJSON(c Cell) cellJSON {
	ch := string(c.rune())
	if c.Ch == 0 {
		ch = ""
	}
	return cellJSON{
		Char:      ch,
		Fg:        colorToJSON(c.Fg),
		Bg:        colorToJSON(c.Bg),
		Bold:      c.Bold,
		Italic:    c.Italic,
		Underline: c.Underline,
		Inverse:   c.Inverse,
	}
}

type screenJSON struct {
	Size   sizeJSON     `json:"size"`
	Cursor cursorJSON   `json:"cursor"`
	Cells  [][]cellJSON `json:"cells"`
}

type sizeJSON struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type cursorJSON struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (s *Screen) toScreenJSON() screenJSON {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cells := make([][]cellJSON, s.rows)
	for r := 0; r < s.rows; r++ {
		row := make([]cellJSON, s.cols)
		for c := 0; c < s.cols; c++ {
			row[c] = cellToJSON(s.cells[r*s.cols+c])
		}
		cells[r] = row
	}
	return screenJSON{
		Size:   sizeJSON{Cols: s.cols, Rows: s.rows},
		Cursor: cursorJSON{Row: s.cursorRow, Col: s.cursorCol},
		Cells:  cells,
	}
}

// ToJSON renders the screen as indented JSON.
func (s *Screen) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s.toScreenJSON(), "", "  ")
}

// ToJSONCompact renders the screen as whitespace-free JSON.
func (s *Screen) ToJSONCompact() ([]byte, error) {
	return json.Marshal(s.toScreenJSON())
}

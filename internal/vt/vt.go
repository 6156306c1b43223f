// Package vt is the VT Consumer: it drives github.com/hinshun/vt10x (the
// VT100/xterm parser, an external collaborator per the terminal
// emulation contract) and mirrors its state into a screen.Screen after
// every write, bumping the Screen's revision counter exactly once per
// batch that changed anything observable.
package vt

import (
	"sync"

	"github.com/hinshun/vt10x"

	"github.com/termwright/termwright/internal/screen"
)

// Consumer owns a vt10x terminal and keeps a screen.Screen in sync with
// it. It is the sole mutator of that Screen, matching the ownership
// rule that the Screen is exclusively mutated by the VT Consumer.
type Consumer struct {
	mu   sync.Mutex
	term vt10x.Terminal
	scr  *screen.Screen
}

// New creates a Consumer with its own vt10x engine sized to match scr.
func New(scr *screen.Screen) *Consumer {
	rows, cols := scr.Size()
	return &Consumer{
		term: vt10x.New(vt10x.WithSize(cols, rows)),
		scr:  scr,
	}
}

// Write feeds raw child output through the VT parser and resyncs the
// Screen. It never returns a non-nil error: vt10x recovers from
// malformed sequences on its own, matching the propagation policy that
// the I/O Pump tolerates transient decode errors.
func (c *Consumer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.term.Write(p)
	c.sync()
	return n, err
}

// Resize changes the underlying terminal's dimensions and resyncs the
// Screen to match.
func (c *Consumer) Resize(rows, cols int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.term.Resize(cols, rows)
	c.sync()
}

// sync copies vt10x's current grid, cursor, and visibility into the
// Screen, marking double-width trailers explicitly since vt10x itself
// does not distinguish them from ordinary cells.
func (c *Consumer) sync() {
	c.term.Lock()
	defer c.term.Unlock()

	cols, rows := c.term.Size()
	cells := make([]screen.Cell, rows*cols)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			cells[y*cols+x] = glyphToCell(c.term.Cell(x, y))
		}
		markWideTrailers(cells[y*cols : (y+1)*cols])
	}

	cur := c.term.Cursor()
	visible := c.term.CursorVisible()
	c.scr.Replace(cells, rows, cols, cur.Y, cur.X, visible)
}

// markWideTrailers walks a single row left to right and turns the cell
// following any double-width glyph into a screen.WideTrailer,
// overwriting whatever vt10x reported there.
func markWideTrailers(row []screen.Cell) {
	for x := 0; x < len(row); x++ {
		ch := row[x].Ch
		if ch == 0 {
			continue
		}
		if screen.RuneWidth(ch) == 2 && x+1 < len(row) {
			row[x+1] = screen.WideTrailer(row[x])
			x++
		}
	}
}

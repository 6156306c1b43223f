package vt

import (
	"testing"

	"github.com/termwright/termwright/internal/screen"
)

func newConsumer(t *testing.T, rows, cols int) (*Consumer, *screen.Screen) {
	t.Helper()
	scr := screen.New(rows, cols)
	return New(scr), scr
}

func TestEchoPrintsPlainText(t *testing.T) {
	c, scr := newConsumer(t, 24, 80)
	if _, err := c.Write([]byte("HELLO")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	line, err := scr.Line(0)
	if err != nil {
		t.Fatalf("Line(0): %v", err)
	}
	if line[:5] != "HELLO" {
		t.Fatalf("Line(0) = %q, want prefix HELLO", line)
	}
}

func TestColorSGRSetsIndexedForeground(t *testing.T) {
	c, scr := newConsumer(t, 1, 10)
	if _, err := c.Write([]byte("\x1b[31mERR\x1b[0m OK")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for col := 0; col < 3; col++ {
		cell, err := scr.Cell(0, col)
		if err != nil {
			t.Fatalf("Cell(0,%d): %v", col, err)
		}
		if cell.Fg.Kind != screen.ColorIndexed || cell.Fg.Index != 1 {
			t.Errorf("cell(0,%d).Fg = %+v, want indexed(1)", col, cell.Fg)
		}
	}
	cell, err := scr.Cell(0, 4)
	if err != nil {
		t.Fatalf("Cell(0,4): %v", err)
	}
	if cell.Fg.Kind != screen.ColorDefault {
		t.Errorf("cell(0,4).Fg = %+v, want default", cell.Fg)
	}
}

func TestWrapAt80Columns(t *testing.T) {
	c, scr := newConsumer(t, 24, 80)
	letters := make([]byte, 100)
	for i := range letters {
		letters[i] = byte('A' + i%26)
	}
	if _, err := c.Write(letters); err != nil {
		t.Fatalf("Write: %v", err)
	}

	row0, _ := scr.Line(0)
	if len([]rune(row0)) < 80 {
		t.Fatalf("row 0 too short: %d runes", len([]rune(row0)))
	}
	_, col, _ := scr.Cursor()
	if col != 20 {
		t.Fatalf("cursor col = %d, want 20", col)
	}
}

func TestResizeUpdatesScreenSize(t *testing.T) {
	c, scr := newConsumer(t, 24, 80)
	c.Resize(10, 40)
	rows, cols := scr.Size()
	if rows != 10 || cols != 40 {
		t.Fatalf("Size() = (%d,%d), want (10,40)", rows, cols)
	}
}

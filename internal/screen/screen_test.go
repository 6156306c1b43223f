package screen

import (
	"encoding/json"
	"regexp"
	"testing"
)

func mustScreen(t *testing.T, rows, cols int) *Screen {
	t.Helper()
	return New(rows, cols)
}

func setLine(t *testing.T, s *Screen, row int, text string) {
	t.Helper()
	rows, cols := s.Size()
	snap := s.Snapshot()
	cells := make([]Cell, len(snap.Cells))
	copy(cells, snap.Cells)
	for i, r := range []rune(text) {
		if i >= cols {
			break
		}
		cells[row*cols+i] = Cell{Ch: r}
	}
	s.Replace(cells, rows, cols, snap.CursorRow, snap.CursorCol, snap.CursorVisible)
}

func TestNewScreenBlank(t *testing.T) {
	s := mustScreen(t, 24, 80)
	rows, cols := s.Size()
	if rows != 24 || cols != 80 {
		t.Fatalf("Size() = (%d,%d), want (24,80)", rows, cols)
	}
	text := s.Text()
	if len(text) == 0 {
		t.Fatalf("expected non-empty blank text")
	}
}

func TestReplaceBumpsRevisionOnlyOnChange(t *testing.T) {
	s := mustScreen(t, 2, 2)
	before := s.Revision()

	snap := s.Snapshot()
	// Replacing with an identical grid must not bump the revision.
	s.Replace(snap.Cells, snap.Rows, snap.Cols, snap.CursorRow, snap.CursorCol, snap.CursorVisible)
	if got := s.Revision(); got != before {
		t.Fatalf("no-op Replace bumped revision: %d -> %d", before, got)
	}

	setLine(t, s, 0, "HI")
	if got := s.Revision(); got != before+1 {
		t.Fatalf("changed Replace did not bump revision by exactly 1: %d -> %d", before, got)
	}
}

func TestContainsAcrossRows(t *testing.T) {
	s := mustScreen(t, 2, 3)
	setLine(t, s, 0, "foo")
	setLine(t, s, 1, "bar")

	if !s.Contains("foo") {
		t.Error("expected Contains(\"foo\") on a single row")
	}
	if !s.Contains("foo\nbar") {
		t.Error("expected Contains to match across row-joined text")
	}
	if s.Contains("nope") {
		t.Error("did not expect Contains(\"nope\")")
	}
}

func TestFindText(t *testing.T) {
	s := mustScreen(t, 3, 5)
	setLine(t, s, 1, "HELLO")

	row, col, ok := s.FindText("HELLO")
	if !ok || row != 1 || col != 0 {
		t.Fatalf("FindText = (%d,%d,%v), want (1,0,true)", row, col, ok)
	}

	if _, _, ok := s.FindText("MISSING"); ok {
		t.Error("expected no match for MISSING")
	}
}

func TestFindPattern(t *testing.T) {
	s := mustScreen(t, 2, 10)
	setLine(t, s, 0, "ERR123")

	re := regexp.MustCompile(`ERR\d+`)
	matched, row, col, ok := s.FindPattern(re)
	if !ok || matched != "ERR123" || row != 0 || col != 0 {
		t.Fatalf("FindPattern = (%q,%d,%d,%v)", matched, row, col, ok)
	}
}

func TestResizeClampsCursor(t *testing.T) {
	s := mustScreen(t, 10, 10)
	snap := s.Snapshot()
	s.Replace(snap.Cells, snap.Rows, snap.Cols, 9, 9, true)

	s.Resize(5, 5)
	rows, cols := s.Size()
	if rows != 5 || cols != 5 {
		t.Fatalf("Size() after Resize = (%d,%d)", rows, cols)
	}
	row, col, _ := s.Cursor()
	if row >= rows || col >= cols {
		t.Fatalf("cursor (%d,%d) not clamped into (%d,%d)", row, col, rows, cols)
	}
}

func TestToJSONRoundTripsDeclaredFields(t *testing.T) {
	s := mustScreen(t, 1, 2)
	setLine(t, s, 0, "A")

	b, err := s.ToJSONCompact()
	if err != nil {
		t.Fatalf("ToJSONCompact: %v", err)
	}

	var decoded screenJSON
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Size.Rows != 1 || decoded.Size.Cols != 2 {
		t.Fatalf("decoded size = %+v", decoded.Size)
	}
	if decoded.Cells[0][0].Char != "A" {
		t.Fatalf("decoded cell char = %q, want %q", decoded.Cells[0][0].Char, "A")
	}
}

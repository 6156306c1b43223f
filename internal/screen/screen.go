// Package screen holds the fixed-size grid of cells a terminal would
// display: pure data, no I/O. It is mutated exclusively by a VT
// Consumer and read by everything else through snapshots or a
// short-lived read lock.
package screen

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

// Screen is a rectangular grid of Cells with a cursor and a
// monotonically increasing revision counter. There is no scrollback:
// lines that scroll off the top are discarded by the VT Consumer
// before it calls back into Screen.
type Screen struct {
	mu sync.RWMutex

	rows, cols int
	cells      []Cell // row-major, len == rows*cols

	cursorRow, cursorCol int
	cursorVisible         bool

	revision uint64
	changed  chan struct{} // closed and replaced on every revision bump
}

// New creates a Screen of the given size, filled with blank cells and
// the cursor at the origin.
func New(rows, cols int) *Screen {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	s := &Screen{
		rows:          rows,
		cols:          cols,
		cells:         make([]Cell, rows*cols),
		cursorVisible: true,
		changed:       make(chan struct{}),
	}
	for i := range s.cells {
		s.cells[i] = blankCell
	}
	return s
}

// ErrOutOfBounds is returned by Cell/Line when the coordinates fall
// outside the current grid.
type ErrOutOfBounds struct {
	Row, Col, Rows, Cols int
}

func (e *ErrOutOfBounds) Error() string {
	return fmt.Sprintf("out of bounds: (%d,%d) not in %dx%d grid", e.Row, e.Col, e.Rows, e.Cols)
}

// Size returns (rows, cols).
func (s *Screen) Size() (rows, cols int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows, s.cols
}

// Revision returns the current revision counter.
func (s *Screen) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Subscribe returns the current revision and a channel that is closed
// the next time the revision advances past it. Callers must re-call
// Subscribe after each wakeup: the broadcast channel is single-shot,
// matching the revision-counter design note that waiters must tolerate
// spurious wakeups and re-evaluate their predicate each time.
func (s *Screen) Subscribe() (revision uint64, ch <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, s.changed
}

// Cell returns the cell at (r, c).
func (s *Screen) Cell(r, c int) (Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r < 0 || r >= s.rows || c < 0 || c >= s.cols {
		return Cell{}, &ErrOutOfBounds{r, c, s.rows, s.cols}
	}
	return s.cells[r*s.cols+c], nil
}

// Cursor returns the cursor's row, column, and visibility.
func (s *Screen) Cursor() (row, col int, visible bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursorRow, s.cursorCol, s.cursorVisible
}

// Line returns row r as a string, trailing spaces retained.
func (s *Screen) Line(r int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r < 0 || r >= s.rows {
		return "", &ErrOutOfBounds{Row: r, Rows: s.rows, Cols: s.cols}
	}
	return s.lineLocked(r), nil
}

func (s *Screen) lineLocked(r int) string {
	var b strings.Builder
	row := s.cells[r*s.cols : (r+1)*s.cols]
	for _, c := range row {
		if c.Trailer {
			continue // wide-char trailer sentinel, no glyph of its own
		}
		b.WriteRune(c.rune())
	}
	return b.String()
}

// Text returns the full screen as rows joined by LF, trailing spaces
// on each row retained.
func (s *Screen) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := make([]string, s.rows)
	for r := 0; r < s.rows; r++ {
		lines[r] = s.lineLocked(r)
	}
	return strings.Join(lines, "\n")
}

// RegionCell is one cell within a Region result, tagged with its
// absolute grid coordinates.
type RegionCell struct {
	Row, Col int
	Cell     Cell
}

// Region returns the sub-grid over the half-open ranges
// [r0,r1) x [c0,c1).
func (s *Screen) Region(r0, r1, c0, c1 int) ([][]Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r0 < 0 || c0 < 0 || r1 > s.rows || c1 > s.cols || r0 > r1 || c0 > c1 {
		return nil, &ErrOutOfBounds{Row: r0, Col: c0, Rows: s.rows, Cols: s.cols}
	}
	out := make([][]Cell, r1-r0)
	for r := r0; r < r1; r++ {
		row := make([]Cell, c1-c0)
		copy(row, s.cells[r*s.cols+c0:r*s.cols+c1])
		out[r-r0] = row
	}
	return out, nil
}

// Contains reports whether needle appears within any single row or in
// the row-joined text, matching both single-line and cross-row
// occurrences.
func (s *Screen) Contains(needle string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for r := 0; r < s.rows; r++ {
		if strings.Contains(s.lineLocked(r), needle) {
			return true
		}
	}
	return strings.Contains(s.textLocked(), needle)
}

func (s *Screen) textLocked() string {
	lines := make([]string, s.rows)
	for r := 0; r < s.rows; r++ {
		lines[r] = s.lineLocked(r)
	}
	return strings.Join(lines, "\n")
}

// FindText returns the first (row, col) at which needle occurs in the
// row-joined text, scanning row by row.
func (s *Screen) FindText(needle string) (row, col int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if needle == "" {
		return 0, 0, false
	}
	for r := 0; r < s.rows; r++ {
		line := s.lineLocked(r)
		if idx := strings.Index(line, needle); idx >= 0 {
			return r, runeIndex(line, idx), true
		}
	}
	// Fall back to the cross-row occurrence (needle spans a line break).
	text := s.textLocked()
	idx := strings.Index(text, needle)
	if idx < 0 {
		return 0, 0, false
	}
	return positionOf(text, idx)
}

// FindPattern returns the first regex match in the row-joined text and
// its starting (row, col).
func (s *Screen) FindPattern(re *regexp.Regexp) (matched string, row, col int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text := s.textLocked()
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", 0, 0, false
	}
	row, col, _ = positionOf(text, loc[0])
	return text[loc[0]:loc[1]], row, col, true
}

func runeIndex(s string, byteIdx int) int {
	return len([]rune(s[:byteIdx]))
}

func positionOf(text string, byteIdx int) (row, col int, ok bool) {
	lines := strings.Split(text[:byteIdx], "\n")
	row = len(lines) - 1
	col = runeIndex(lines[row], len(lines[row]))
	return row, col, true
}

// Snapshot is an immutable, cheap-to-copy view of the screen at a
// point in time, usable by waiters without holding the Screen's lock.
type Snapshot struct {
	Rows, Cols int
	Cells      []Cell // row-major copy
	CursorRow  int
	CursorCol  int
	CursorVisible bool
	Revision   uint64
}

// Text reconstructs the row-joined text of a snapshot.
func (snap *Snapshot) Text() string {
	lines := make([]string, snap.Rows)
	for r := 0; r < snap.Rows; r++ {
		var b strings.Builder
		for c := 0; c < snap.Cols; c++ {
			cell := snap.Cells[r*snap.Cols+c]
			if cell.Trailer {
				continue
			}
			b.WriteRune(cell.rune())
		}
		lines[r] = b.String()
	}
	return strings.Join(lines, "\n")
}

// Contains mirrors Screen.Contains over a static snapshot.
func (snap *Snapshot) Contains(needle string) bool {
	text := snap.Text()
	if strings.Contains(text, needle) {
		return true
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, needle) {
			return true
		}
	}
	return false
}

// Snapshot copies the current grid into an immutable Snapshot.
func (s *Screen) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cells := make([]Cell, len(s.cells))
	copy(cells, s.cells)
	return &Snapshot{
		Rows: s.rows, Cols: s.cols,
		Cells:         cells,
		CursorRow:     s.cursorRow,
		CursorCol:     s.cursorCol,
		CursorVisible: s.cursorVisible,
		Revision:      s.revision,
	}
}

// Replace swaps in a full new grid and cursor state, as computed by a
// VT Consumer, bumping the revision exactly once if anything actually
// changed and broadcasting to subscribers. It returns whether the
// revision was bumped.
func (s *Screen) Replace(cells []Cell, rows, cols, cursorRow, cursorCol int, cursorVisible bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sizeChanged := rows != s.rows || cols != s.cols
	cursorChanged := cursorRow != s.cursorRow || cursorCol != s.cursorCol || cursorVisible != s.cursorVisible
	cellsChanged := sizeChanged || !cellsEqual(s.cells, cells)

	if !sizeChanged && !cellsChanged && !cursorChanged {
		return false
	}

	s.rows, s.cols = rows, cols
	s.cells = cells
	s.cursorRow, s.cursorCol, s.cursorVisible = cursorRow, cursorCol, cursorVisible
	s.bumpLocked()
	return true
}

// Resize changes the grid dimensions in place, clamping the cursor
// into the new bounds, and bumps the revision.
func (s *Screen) Resize(rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	newCells := make([]Cell, rows*cols)
	for i := range newCells {
		newCells[i] = blankCell
	}
	for r := 0; r < min(rows, s.rows); r++ {
		for c := 0; c < min(cols, s.cols); c++ {
			newCells[r*cols+c] = s.cells[r*s.cols+c]
		}
	}
	s.rows, s.cols = rows, cols
	s.cells = newCells
	if s.cursorRow >= rows {
		s.cursorRow = rows - 1
	}
	if s.cursorCol >= cols {
		s.cursorCol = cols - 1
	}
	s.bumpLocked()
}

func (s *Screen) bumpLocked() {
	s.revision++
	close(s.changed)
	s.changed = make(chan struct{})
}

func cellsEqual(a, b []Cell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RuneWidth reports the terminal column width of r (0, 1, or 2),
// matching the wide-character handling real terminals perform for
// East Asian wide glyphs and combining marks.
func RuneWidth(r rune) int {
	return runewidth.RuneWidth(r)
}

package session

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/termwright/termwright/internal/screen"
	"github.com/termwright/termwright/internal/termerr"
)

// DefaultTimeout is used by daemon methods when timeout_ms is omitted.
const DefaultTimeout = 30 * time.Second

// TextResult is the outcome of a text/pattern wait.
type TextResult struct {
	Found   bool   `json:"found"`
	Matched string `json:"matched"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
}

// waitUntil shares the one algorithm every waiter in this package
// uses: check the predicate on the current snapshot; if it doesn't
// hold, subscribe to the Screen's revision broadcast and re-check on
// every bump until the predicate holds or ctx is done. Predicates must
// tolerate spurious wakeups since the broadcast channel may fire for
// unrelated changes.
func (s *Session) waitUntil(ctx context.Context, predicate func(*screen.Snapshot) bool) (*screen.Snapshot, error) {
	for {
		snap := s.scr.Snapshot()
		if predicate(snap) {
			return snap, nil
		}
		rev, ch := s.scr.Subscribe()
		if rev != snap.Revision {
			continue // a bump landed between the snapshot and the subscribe
		}
		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return nil, termerr.Timeout(ctx.Err().Error())
		}
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// WaitForText resolves when the screen text contains text (row-joined,
// multi-row allowed).
func (sess *Session) WaitForText(ctx context.Context, text string, timeout time.Duration) (TextResult, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	snap, err := sess.waitUntil(ctx, func(snap *screen.Snapshot) bool {
		return snap.Contains(text)
	})
	if err != nil {
		return TextResult{}, termerr.Timeout("text " + text)
	}
	row, col, _ := findTextInSnapshot(snap, text)
	return TextResult{Found: true, Matched: text, Row: row, Col: col}, nil
}

// WaitForTextGone resolves when the screen no longer contains text.
func (sess *Session) WaitForTextGone(ctx context.Context, text string, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	_, err := sess.waitUntil(ctx, func(snap *screen.Snapshot) bool {
		return !snap.Contains(text)
	})
	if err != nil {
		return termerr.Timeout("text " + text + " to disappear")
	}
	return nil
}

// WaitForPattern resolves when re matches the row-joined text.
func (sess *Session) WaitForPattern(ctx context.Context, re *regexp.Regexp, timeout time.Duration) (TextResult, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	var result TextResult
	snap, err := sess.waitUntil(ctx, func(snap *screen.Snapshot) bool {
		matched, row, col, ok := findPatternInSnapshot(snap, re)
		if ok {
			result = TextResult{Found: true, Matched: matched, Row: row, Col: col}
		}
		return ok
	})
	if err != nil || snap == nil {
		return TextResult{}, termerr.Timeout("pattern " + re.String())
	}
	return result, nil
}

// WaitForPatternGone resolves when re no longer matches.
func (sess *Session) WaitForPatternGone(ctx context.Context, re *regexp.Regexp, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	_, err := sess.waitUntil(ctx, func(snap *screen.Snapshot) bool {
		_, _, _, ok := findPatternInSnapshot(snap, re)
		return !ok
	})
	if err != nil {
		return termerr.Timeout("pattern " + re.String() + " to disappear")
	}
	return nil
}

// WaitForIdle resolves when the revision counter has not advanced for
// a continuous interval of idle, restarting the idle clock on every
// bump.
func (sess *Session) WaitForIdle(ctx context.Context, idle, timeout time.Duration) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	for {
		_, ch := sess.scr.Subscribe()
		timer := time.NewTimer(idle)
		select {
		case <-ch:
			timer.Stop()
			continue
		case <-timer.C:
			return nil
		case <-ctx.Done():
			timer.Stop()
			return termerr.Timeout("idle")
		}
	}
}

// NotExpectText fails fast if text is present on the screen right now,
// performing no wait at all.
func (sess *Session) NotExpectText(text string) error {
	if sess.scr.Contains(text) {
		return termerr.InvalidParams("text " + text + " unexpectedly present")
	}
	return nil
}

// NotExpectPattern fails fast if re matches the screen right now.
func (sess *Session) NotExpectPattern(re *regexp.Regexp) error {
	snap := sess.scr.Snapshot()
	if _, _, _, ok := findPatternInSnapshot(snap, re); ok {
		return termerr.InvalidParams("pattern " + re.String() + " unexpectedly matched")
	}
	return nil
}

func findTextInSnapshot(snap *screen.Snapshot, needle string) (row, col int, ok bool) {
	text := snap.Text()
	idx := strings.Index(text, needle)
	if idx < 0 {
		return 0, 0, false
	}
	return byteOffsetToRowCol(text, idx)
}

func findPatternInSnapshot(snap *screen.Snapshot, re *regexp.Regexp) (matched string, row, col int, ok bool) {
	text := snap.Text()
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", 0, 0, false
	}
	row, col, _ = byteOffsetToRowCol(text, loc[0])
	return text[loc[0]:loc[1]], row, col, true
}

// byteOffsetToRowCol converts a byte offset into text (rows joined by
// LF) into a (row, rune column) pair.
func byteOffsetToRowCol(text string, byteIdx int) (row, col int, ok bool) {
	lines := strings.Split(text[:byteIdx], "\n")
	row = len(lines) - 1
	col = len([]rune(lines[row]))
	return row, col, true
}

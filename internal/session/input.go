package session

import (
	"fmt"

	"github.com/termwright/termwright/internal/termerr"
)

// namedKeys maps the press() key grammar to the xterm byte sequence a
// real terminal would emit.
var namedKeys = map[string]string{
	"Enter":     "\r",
	"Tab":       "\t",
	"Escape":    "\x1b",
	"Backspace": "\x7f",
	"Delete":    "\x1b[3~",
	"Insert":    "\x1b[2~",
	"Up":        "\x1b[A",
	"Down":      "\x1b[B",
	"Right":     "\x1b[C",
	"Left":      "\x1b[D",
	"Home":      "\x1b[H",
	"End":       "\x1b[F",
	"PageUp":    "\x1b[5~",
	"PageDown":  "\x1b[6~",
	"F1":        "\x1bOP",
	"F2":        "\x1bOQ",
	"F3":        "\x1bOR",
	"F4":        "\x1bOS",
	"F5":        "\x1b[15~",
	"F6":        "\x1b[17~",
	"F7":        "\x1b[18~",
	"F8":        "\x1b[19~",
	"F9":        "\x1b[20~",
	"F10":       "\x1b[21~",
	"F11":       "\x1b[23~",
	"F12":       "\x1b[24~",
}

// EncodeKey translates a press() key name into the bytes a real
// terminal would emit: one of the named keys, or a single Unicode
// scalar encoded as UTF-8.
func EncodeKey(key string) ([]byte, error) {
	if seq, ok := namedKeys[key]; ok {
		return []byte(seq), nil
	}
	runes := []rune(key)
	if len(runes) == 1 {
		return []byte(string(runes[0])), nil
	}
	return nil, termerr.InvalidParams(fmt.Sprintf("unknown key %q", key))
}

// EncodeHotkey translates a hotkey() combination into bytes:
// ctrl maps ch into its control-code range, alt prefixes ESC.
func EncodeHotkey(ctrl, alt bool, ch rune) ([]byte, error) {
	if ch == 0 {
		return nil, termerr.InvalidParams("hotkey: empty character")
	}
	b := []byte(string(ch))
	if ctrl {
		if len(b) != 1 {
			return nil, termerr.InvalidParams("ctrl hotkey requires a single ASCII character")
		}
		b = []byte{b[0] & 0x1f}
	}
	if alt {
		b = append([]byte{0x1b}, b...)
	}
	return b, nil
}

// MouseButton identifies the button in a mouse_click request.
type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseMiddle
	MouseRight
)

func parseMouseButton(s string) (MouseButton, error) {
	switch s {
	case "", "left":
		return MouseLeft, nil
	case "middle":
		return MouseMiddle, nil
	case "right":
		return MouseRight, nil
	default:
		return 0, termerr.InvalidParams(fmt.Sprintf("unknown mouse button %q", s))
	}
}

// EncodeMouseMove emits an SGR (1006) motion report at (row, col),
// 0-indexed in the API and 1-indexed on the wire.
func EncodeMouseMove(row, col int) []byte {
	const noButtonMotion = 35 // button=3 (none) | motion bit (32)
	return sgrSequence(noButtonMotion, row, col, true)
}

// EncodeMouseClick emits an SGR press followed by a release at
// (row, col) for the given button.
func EncodeMouseClick(row, col int, button string) ([]byte, error) {
	b, err := parseMouseButton(button)
	if err != nil {
		return nil, err
	}
	press := sgrSequence(int(b), row, col, true)
	release := sgrSequence(int(b), row, col, false)
	return append(press, release...), nil
}

// EncodeMouseScroll emits count repeated SGR wheel reports at
// (row, col). direction is "up" or "down".
func EncodeMouseScroll(row, col int, direction string, count int) ([]byte, error) {
	var code int
	switch direction {
	case "up":
		code = 64
	case "down":
		code = 65
	default:
		return nil, termerr.InvalidParams(fmt.Sprintf("unknown scroll direction %q", direction))
	}
	if count <= 0 {
		count = 1
	}
	var out []byte
	for i := 0; i < count; i++ {
		out = append(out, sgrSequence(code, row, col, true)...)
	}
	return out, nil
}

// sgrSequence builds one SGR (1006) mouse report: ESC [ < b ; col ; row M|m
func sgrSequence(b, row, col int, press bool) []byte {
	suffix := byte('M')
	if !press {
		suffix = 'm'
	}
	return []byte(fmt.Sprintf("\x1b[<%d;%d;%d%c", b, col+1, row+1, suffix))
}

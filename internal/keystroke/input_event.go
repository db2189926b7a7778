package keystroke

import (
	"strings"
	"time"
)

// Key categorizes a physical key.
type Key int

const (
	KeyUnknown    Key = iota
	KeyCharacter      // Regular character keys (a-z, 0-9, symbols)
	KeyBackspace      // Backspace/Delete backward
	KeyDelete         // Delete forward
	KeyNavigation     // Arrow keys, Home, End, Page Up/Down
	KeyModifier       // Shift, Ctrl, Alt, Cmd
	KeyFunction       // F1-F12
	KeyReturn         // Enter/Return
	KeyTab            // Tab
	KeyEscape         // Escape
	KeySpace          // Space bar
)

var keyNames = map[Key]string{
	KeyUnknown:    "unknown",
	KeyCharacter:  "character",
	KeyBackspace:  "backspace",
	KeyDelete:     "delete",
	KeyNavigation: "navigation",
	KeyModifier:   "modifier",
	KeyFunction:   "function",
	KeyReturn:     "return",
	KeyTab:        "tab",
	KeyEscape:     "escape",
	KeySpace:      "space",
}

func (k Key) String() string {
	if s, ok := keyNames[k]; ok {
		return s
	}
	return "unknown"
}

// Modifiers is a set of held modifier keys. Caps Lock is not tracked.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModCommand // macOS Cmd, Super/Meta elsewhere
)

// Has reports whether all of m2 are held.
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

// String returns the modifiers in binding notation, e.g. "ctrl+shift".
func (m Modifiers) String() string {
	var parts []string
	if m.Has(ModControl) {
		parts = append(parts, "ctrl")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "alt")
	}
	if m.Has(ModShift) {
		parts = append(parts, "shift")
	}
	if m.Has(ModCommand) {
		parts = append(parts, "cmd")
	}
	return strings.Join(parts, "+")
}

// RawEvent is a key-down event as delivered by a Hook.
type RawEvent struct {
	Key Key
	// Code is the platform key code.
	Code uint16
	// Rune is the character the key produces without modifiers; zero for
	// non-character keys. Bindings match on it.
	Rune rune
	// Text is what the key produces with the current modifiers.
	Text      string
	Modifiers Modifiers
	Timestamp time.Time
	// Injected is set when the event came from our own injector.
	Injected bool

	reply chan bool
}

// Suppressible reports whether the hook waits for a consume decision.
func (e RawEvent) Suppressible() bool {
	return e.reply != nil
}

// Reply sends the consume decision back to a waiting hook. It never blocks
// and is a no-op for events that cannot be suppressed.
func (e RawEvent) Reply(consume bool) {
	if e.reply == nil {
		return
	}
	select {
	case e.reply <- consume:
	default:
	}
}

// ClassifyKeyCode converts a macOS virtual key code to a Key.
func ClassifyKeyCode(keyCode uint16) Key {
	switch keyCode {
	case 51:
		return KeyBackspace
	case 117:
		return KeyDelete
	case 36, 76: // return, keypad enter
		return KeyReturn
	case 48:
		return KeyTab
	case 53:
		return KeyEscape
	case 49:
		return KeySpace
	case 123, 124, 125, 126, 115, 116, 119, 121: // arrows, home, end, page up/down
		return KeyNavigation
	case 56, 57, 58, 59, 55, 54, 60, 61, 62, 63: // shift, caps, option, control, cmd, fn
		return KeyModifier
	case 122, 120, 99, 118, 96, 97, 98, 100, 101, 109, 103, 111: // F1-F12
		return KeyFunction
	default:
		return KeyCharacter
	}
}

// macKeyRunes maps ANSI macOS virtual key codes to the unshifted character.
var macKeyRunes = map[uint16]rune{
	0: 'a', 1: 's', 2: 'd', 3: 'f', 4: 'h', 5: 'g', 6: 'z', 7: 'x', 8: 'c',
	9: 'v', 11: 'b', 12: 'q', 13: 'w', 14: 'e', 15: 'r', 16: 'y', 17: 't',
	18: '1', 19: '2', 20: '3', 21: '4', 22: '6', 23: '5', 24: '=', 25: '9',
	26: '7', 27: '-', 28: '8', 29: '0', 30: ']', 31: 'o', 32: 'u', 33: '[',
	34: 'i', 35: 'p', 37: 'l', 38: 'j', 39: '\'', 40: 'k', 41: ';', 42: '\\',
	43: ',', 44: '/', 45: 'n', 46: 'm', 47: '.', 50: '`', 49: ' ',
}

// MacKeyRune returns the unshifted character of a macOS virtual key code.
func MacKeyRune(keyCode uint16) rune {
	return macKeyRunes[keyCode]
}

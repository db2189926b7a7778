package keystroke

import (
	"time"
	"unicode"
)

// Linux evdev key codes (linux/input-event-codes.h) for the keys we
// classify specially.
const (
	evdevEsc        = 1
	evdevBackspace  = 14
	evdevTab        = 15
	evdevEnter      = 28
	evdevLeftCtrl   = 29
	evdevLeftShift  = 42
	evdevRightShift = 54
	evdevLeftAlt    = 56
	evdevSpace      = 57
	evdevKPEnter    = 96
	evdevRightCtrl  = 97
	evdevRightAlt   = 100
	evdevDelete     = 111
	evdevLeftMeta   = 125
	evdevRightMeta  = 126
)

var evdevModifiers = map[uint16]Modifiers{
	evdevLeftShift:  ModShift,
	evdevRightShift: ModShift,
	evdevLeftCtrl:   ModControl,
	evdevRightCtrl:  ModControl,
	evdevLeftAlt:    ModAlt,
	evdevRightAlt:   ModAlt,
	evdevLeftMeta:   ModCommand,
	evdevRightMeta:  ModCommand,
}

// evdevRunes is the US layout, unshifted.
var evdevRunes = map[uint16]rune{
	2: '1', 3: '2', 4: '3', 5: '4', 6: '5', 7: '6', 8: '7', 9: '8', 10: '9', 11: '0',
	12: '-', 13: '=',
	16: 'q', 17: 'w', 18: 'e', 19: 'r', 20: 't', 21: 'y', 22: 'u', 23: 'i', 24: 'o', 25: 'p',
	26: '[', 27: ']',
	30: 'a', 31: 's', 32: 'd', 33: 'f', 34: 'g', 35: 'h', 36: 'j', 37: 'k', 38: 'l',
	39: ';', 40: '\'', 41: '`', 43: '\\',
	44: 'z', 45: 'x', 46: 'c', 47: 'v', 48: 'b', 49: 'n', 50: 'm',
	51: ',', 52: '.', 53: '/',
}

var usShifted = map[rune]rune{
	'1': '!', '2': '@', '3': '#', '4': '$', '5': '%', '6': '^', '7': '&', '8': '*', '9': '(', '0': ')',
	'-': '_', '=': '+', '[': '{', ']': '}', ';': ':', '\'': '"', '`': '~', '\\': '|',
	',': '<', '.': '>', '/': '?',
}

// EvdevRune returns the unshifted US-layout character of an evdev key code.
func EvdevRune(code uint16) rune {
	return evdevRunes[code]
}

// ClassifyEvdevCode converts a Linux evdev key code to a Key.
func ClassifyEvdevCode(code uint16) Key {
	switch code {
	case evdevBackspace:
		return KeyBackspace
	case evdevDelete:
		return KeyDelete
	case evdevEnter, evdevKPEnter:
		return KeyReturn
	case evdevTab:
		return KeyTab
	case evdevEsc:
		return KeyEscape
	case evdevSpace:
		return KeySpace
	case 102, 103, 104, 105, 106, 107, 108, 109, 110: // home, arrows, page up/down, end, insert
		return KeyNavigation
	case 58: // caps lock
		return KeyModifier
	case 59, 60, 61, 62, 63, 64, 65, 66, 67, 68, 87, 88: // F1-F12
		return KeyFunction
	}
	if _, ok := evdevModifiers[code]; ok {
		return KeyModifier
	}
	if _, ok := evdevRunes[code]; ok {
		return KeyCharacter
	}
	return KeyUnknown
}

// evdevEvent builds a RawEvent, producing text with the US layout.
func evdevEvent(code uint16, mods Modifiers, now time.Time) RawEvent {
	ev := RawEvent{
		Key:       ClassifyEvdevCode(code),
		Code:      code,
		Rune:      EvdevRune(code),
		Modifiers: mods,
		Timestamp: now,
	}
	switch ev.Key {
	case KeySpace:
		ev.Rune = ' '
		ev.Text = " "
	case KeyTab:
		ev.Text = "\t"
	case KeyCharacter:
		r := ev.Rune
		if mods.Has(ModShift) {
			if s, ok := usShifted[r]; ok {
				r = s
			} else {
				r = unicode.ToUpper(r)
			}
		}
		ev.Text = string(r)
	}
	return ev
}

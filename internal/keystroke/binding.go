package keystroke

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Command is an action a key binding triggers.
type Command int

const (
	CommandNone Command = iota
	CommandAccept
	CommandAcceptAlt
	CommandNext
	CommandPrevious
	CommandTogglePopover
	CommandToggleService
)

func (c Command) String() string {
	switch c {
	case CommandAccept:
		return "accept"
	case CommandAcceptAlt:
		return "accept_alt"
	case CommandNext:
		return "next"
	case CommandPrevious:
		return "previous"
	case CommandTogglePopover:
		return "toggle_popover"
	case CommandToggleService:
		return "toggle_service"
	default:
		return "none"
	}
}

// SessionOnly reports whether the command only applies while an
// autocomplete session is active.
func (c Command) SessionOnly() bool {
	switch c {
	case CommandAccept, CommandAcceptAlt, CommandNext, CommandPrevious:
		return true
	default:
		return false
	}
}

// Binding is a key plus an exact modifier set. The zero Binding is unbound.
type Binding struct {
	Key       Key
	Rune      rune // for KeyCharacter, lower case
	Modifiers Modifiers
}

var bindingKeys = map[string]Key{
	"tab":       KeyTab,
	"return":    KeyReturn,
	"enter":     KeyReturn,
	"escape":    KeyEscape,
	"esc":       KeyEscape,
	"space":     KeySpace,
	"backspace": KeyBackspace,
}

var bindingMods = map[string]Modifiers{
	"ctrl":    ModControl,
	"control": ModControl,
	"shift":   ModShift,
	"alt":     ModAlt,
	"opt":     ModAlt,
	"option":  ModAlt,
	"cmd":     ModCommand,
	"command": ModCommand,
	"super":   ModCommand,
	"meta":    ModCommand,
}

// ParseBinding parses "ctrl+shift+t", "tab" or "ctrl+return". The empty
// string parses to the zero (unbound) Binding.
func ParseBinding(s string) (Binding, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Binding{}, nil
	}

	parts := strings.Split(s, "+")
	keyName := strings.TrimSpace(parts[len(parts)-1])
	if keyName == "" {
		// "ctrl++" binds the plus key.
		if strings.HasSuffix(s, "++") {
			keyName = "+"
			parts = parts[:len(parts)-1]
		} else {
			return Binding{}, fmt.Errorf("invalid binding %q: missing key", s)
		}
	}

	var b Binding
	for _, m := range parts[:len(parts)-1] {
		mod, ok := bindingMods[strings.ToLower(strings.TrimSpace(m))]
		if !ok {
			return Binding{}, fmt.Errorf("invalid binding %q: unknown modifier %q", s, m)
		}
		b.Modifiers |= mod
	}

	if k, ok := bindingKeys[strings.ToLower(keyName)]; ok {
		b.Key = k
		return b, nil
	}
	if utf8.RuneCountInString(keyName) != 1 {
		return Binding{}, fmt.Errorf("invalid binding %q: unknown key %q", s, keyName)
	}
	r, _ := utf8.DecodeRuneInString(keyName)
	b.Key = KeyCharacter
	b.Rune = unicode.ToLower(r)
	return b, nil
}

// MustParseBinding is ParseBinding for static tables.
func MustParseBinding(s string) Binding {
	b, err := ParseBinding(s)
	if err != nil {
		panic(err)
	}
	return b
}

// IsZero reports whether the binding is unbound.
func (b Binding) IsZero() bool {
	return b.Key == KeyUnknown
}

// String returns the binding in ParseBinding notation.
func (b Binding) String() string {
	if b.IsZero() {
		return ""
	}
	var key string
	if b.Key == KeyCharacter {
		key = string(b.Rune)
	} else {
		key = b.Key.String()
	}
	if b.Modifiers == 0 {
		return key
	}
	return b.Modifiers.String() + "+" + key
}

// Matches reports whether ev triggers the binding. Modifiers must match
// exactly, so ctrl+n does not fire on ctrl+shift+n.
func (b Binding) Matches(ev RawEvent) bool {
	if b.IsZero() || ev.Key != b.Key || ev.Modifiers != b.Modifiers {
		return false
	}
	if b.Key == KeyCharacter {
		return unicode.ToLower(ev.Rune) == b.Rune
	}
	return true
}

// MarshalText implements encoding.TextMarshaler so bindings persist as
// strings in config files.
func (b Binding) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Binding) UnmarshalText(text []byte) error {
	parsed, err := ParseBinding(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Bindings maps every command to its key binding.
type Bindings struct {
	Accept        Binding `toml:"accept" json:"accept" yaml:"accept"`
	AcceptAlt     Binding `toml:"accept_alt" json:"accept_alt" yaml:"accept_alt"`
	Next          Binding `toml:"next" json:"next" yaml:"next"`
	Previous      Binding `toml:"previous" json:"previous" yaml:"previous"`
	TogglePopover Binding `toml:"toggle_popover" json:"toggle_popover" yaml:"toggle_popover"`
	ToggleService Binding `toml:"toggle_service" json:"toggle_service" yaml:"toggle_service"`
}

// DefaultBindings returns the stock bindings.
func DefaultBindings() Bindings {
	return Bindings{
		Accept:        MustParseBinding("tab"),
		AcceptAlt:     MustParseBinding("ctrl+return"),
		Next:          MustParseBinding("ctrl+n"),
		Previous:      MustParseBinding("ctrl+p"),
		TogglePopover: MustParseBinding("ctrl+shift+h"),
		ToggleService: MustParseBinding("ctrl+shift+t"),
	}
}

func (bs Bindings) ordered() []struct {
	cmd Command
	b   Binding
} {
	return []struct {
		cmd Command
		b   Binding
	}{
		{CommandToggleService, bs.ToggleService},
		{CommandTogglePopover, bs.TogglePopover},
		{CommandAccept, bs.Accept},
		{CommandAcceptAlt, bs.AcceptAlt},
		{CommandNext, bs.Next},
		{CommandPrevious, bs.Previous},
	}
}

// Lookup returns the command bound to ev. Toggles are checked first.
func (bs Bindings) Lookup(ev RawEvent) (Command, bool) {
	for _, e := range bs.ordered() {
		if e.b.Matches(ev) {
			return e.cmd, true
		}
	}
	return CommandNone, false
}

// Validate rejects two commands sharing one binding.
func (bs Bindings) Validate() error {
	seen := make(map[Binding]Command)
	for _, e := range bs.ordered() {
		if e.b.IsZero() {
			continue
		}
		if prev, ok := seen[e.b]; ok {
			return fmt.Errorf("binding %q is used by both %s and %s", e.b, prev, e.cmd)
		}
		seen[e.b] = e.cmd
	}
	return nil
}

// Set rebinds the command named name ("accept", "next", ...).
func (bs *Bindings) Set(name string, b Binding) error {
	switch name {
	case "accept":
		bs.Accept = b
	case "accept_alt":
		bs.AcceptAlt = b
	case "next":
		bs.Next = b
	case "previous":
		bs.Previous = b
	case "toggle_popover":
		bs.TogglePopover = b
	case "toggle_service":
		bs.ToggleService = b
	default:
		return fmt.Errorf("unknown command %q", name)
	}
	return nil
}

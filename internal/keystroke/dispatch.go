package keystroke

// Kind is the logical meaning of a key event.
type Kind int

const (
	KindIgnored Kind = iota
	KindCharacter
	KindReturn
	KindBackspace
	KindEscape
	KindSpace
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindCharacter:
		return "character"
	case KindReturn:
		return "return"
	case KindBackspace:
		return "backspace"
	case KindEscape:
		return "escape"
	case KindSpace:
		return "space"
	case KindCommand:
		return "command"
	default:
		return "ignored"
	}
}

// LogicalEvent is a RawEvent after binding resolution.
type LogicalEvent struct {
	Kind    Kind
	Text    string  // KindCharacter and KindSpace
	Command Command // KindCommand
	Raw     RawEvent
}

// Dispatcher translates raw events into logical events. It is owned by the
// engine goroutine.
type Dispatcher struct {
	bindings Bindings
}

// NewDispatcher creates a dispatcher with the given bindings.
func NewDispatcher(bindings Bindings) *Dispatcher {
	return &Dispatcher{bindings: bindings}
}

// Bindings returns the active bindings.
func (d *Dispatcher) Bindings() Bindings {
	return d.bindings
}

// SetBindings replaces the active bindings.
func (d *Dispatcher) SetBindings(b Bindings) {
	d.bindings = b
}

// Translate resolves raw. Session-only commands (accept, next, ...) resolve
// only while a session is active; otherwise the key falls through to its
// plain meaning, so Tab still types a tab.
func (d *Dispatcher) Translate(raw RawEvent, sessionActive bool) LogicalEvent {
	if cmd, ok := d.bindings.Lookup(raw); ok && (sessionActive || !cmd.SessionOnly()) {
		return LogicalEvent{Kind: KindCommand, Command: cmd, Raw: raw}
	}

	switch raw.Key {
	case KeyReturn:
		return LogicalEvent{Kind: KindReturn, Raw: raw}
	case KeyBackspace:
		return LogicalEvent{Kind: KindBackspace, Raw: raw}
	case KeyEscape:
		return LogicalEvent{Kind: KindEscape, Raw: raw}
	case KeySpace:
		if chord(raw.Modifiers) {
			return LogicalEvent{Kind: KindIgnored, Raw: raw}
		}
		return LogicalEvent{Kind: KindSpace, Text: " ", Raw: raw}
	case KeyTab:
		if chord(raw.Modifiers) {
			return LogicalEvent{Kind: KindIgnored, Raw: raw}
		}
		return LogicalEvent{Kind: KindCharacter, Text: "\t", Raw: raw}
	case KeyCharacter:
		if chord(raw.Modifiers) || raw.Text == "" {
			return LogicalEvent{Kind: KindIgnored, Raw: raw}
		}
		return LogicalEvent{Kind: KindCharacter, Text: raw.Text, Raw: raw}
	default:
		return LogicalEvent{Kind: KindIgnored, Raw: raw}
	}
}

// chord reports whether the modifiers turn a key into a shortcut that types
// nothing.
func chord(m Modifiers) bool {
	return m.Has(ModControl) || m.Has(ModCommand)
}

package engine

import (
	"time"

	"emojid/internal/autocomplete"
	"emojid/internal/store"
)

// EventType identifies an engine notification.
type EventType int

const (
	// EventSessionStarted: the marker opened a completion session.
	EventSessionStarted EventType = iota
	// EventSessionUpdated: the prefix or candidate list changed.
	EventSessionUpdated
	// EventSelectionChanged: Next or Previous moved the selection.
	EventSelectionChanged
	// EventCancelled: a session ended without a substitution.
	EventCancelled
	// EventMatched: a substitution was planned. Source says why.
	EventMatched
	// EventToggled: expansion was switched on or off.
	EventToggled
	// EventPopoverToggled: the popover binding was pressed.
	EventPopoverToggled
)

func (t EventType) String() string {
	switch t {
	case EventSessionStarted:
		return "session_started"
	case EventSessionUpdated:
		return "session_updated"
	case EventSelectionChanged:
		return "selection_changed"
	case EventCancelled:
		return "cancelled"
	case EventMatched:
		return "matched"
	case EventToggled:
		return "toggled"
	case EventPopoverToggled:
		return "popover_toggled"
	default:
		return "unknown"
	}
}

// Event is published to subscribers after each key event is handled.
type Event struct {
	Type EventType
	Time time.Time

	// Session is a snapshot for session events, and for matches that closed
	// a session.
	Session autocomplete.Session

	// Set on EventMatched.
	Shortcut    string
	Replacement string
	Source      store.Source

	// Set on EventCancelled.
	Reason autocomplete.CancelReason

	// Set on EventToggled.
	Enabled bool
}

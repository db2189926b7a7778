// Package autocomplete implements the autocomplete session state machine.
//
// A session starts when the marker character is typed, or when typing
// extends a marker run that is still unterminated and has candidates again
// (after a typo was backspaced, say), and follows the buffer from the
// marker's logical position. Each buffer change refreshes
// the prefix and the candidate list; the session ends on whitespace, on an
// explicit cancel, when no candidate remains, or when a candidate is
// accepted.
//
// The machine is driven from a single goroutine and keeps no locks.
package autocomplete

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"emojid/internal/buffer"
	"emojid/internal/registry"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMarker = ":"
	DefaultLimit  = 10
)

// Candidate is one suggestion shown to the user.
type Candidate struct {
	Shortcut    string `json:"shortcut"`
	Replacement string `json:"replacement"`
}

// Session is the state of a live autocomplete session.
type Session struct {
	// TriggerIndex is the logical buffer index of the marker.
	TriggerIndex int
	// Prefix is the text typed since (and including) the marker.
	Prefix string
	// PrefixLen is len(Prefix) in grapheme clusters.
	PrefixLen  int
	Candidates []Candidate
	Selected   int
}

// Selection returns the selected candidate.
func (s Session) Selection() (Candidate, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Candidates) {
		return Candidate{}, false
	}
	return s.Candidates[s.Selected], true
}

func (s *Session) clone() Session {
	c := *s
	c.Candidates = append([]Candidate(nil), s.Candidates...)
	return c
}

// EventType identifies a session lifecycle transition.
type EventType int

const (
	EventStarted EventType = iota
	EventUpdated
	EventSelected
	EventAccepted
	EventCompleted // the prefix became a complete, unambiguous shortcut
	EventCancelled
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventUpdated:
		return "updated"
	case EventSelected:
		return "selected"
	case EventAccepted:
		return "accepted"
	case EventCompleted:
		return "completed"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CancelReason explains why a session ended without a substitution.
type CancelReason int

const (
	ReasonNone CancelReason = iota
	ReasonWhitespace
	ReasonNoCandidates
	ReasonMarkerRemoved
	ReasonExplicit
)

func (r CancelReason) String() string {
	switch r {
	case ReasonWhitespace:
		return "whitespace"
	case ReasonNoCandidates:
		return "no_candidates"
	case ReasonMarkerRemoved:
		return "marker_removed"
	case ReasonExplicit:
		return "explicit"
	default:
		return "none"
	}
}

// Event is emitted on every transition. Session is a snapshot taken after
// the transition (or just before it, for terminal events).
type Event struct {
	Type    EventType
	Session Session
	Reason  CancelReason
}

// Acceptance is a committed candidate together with the number of clusters
// that must be removed to replace the typed prefix.
type Acceptance struct {
	Candidate Candidate
	PrefixLen int
}

// Options configures a Machine.
type Options struct {
	// Marker opens a session. It must be a single grapheme cluster.
	Marker string
	// Limit caps the candidate list.
	Limit int
}

// Machine is the autocomplete state machine: Idle when session is nil,
// Active otherwise.
type Machine struct {
	reg     registry.Provider
	marker  string
	limit   int
	session *Session

	// dismissed is the logical index of the marker whose session was
	// cancelled explicitly; that run never reopens. -1 when none.
	dismissed int
}

// New creates an idle machine.
func New(reg registry.Provider, opts Options) *Machine {
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Machine{reg: reg, marker: opts.Marker, limit: opts.Limit, dismissed: -1}
}

// Marker returns the trigger marker.
func (m *Machine) Marker() string {
	return m.marker
}

// Active reports whether a session is live.
func (m *Machine) Active() bool {
	return m.session != nil
}

// Session returns a snapshot of the live session.
func (m *Machine) Session() (Session, bool) {
	if m.session == nil {
		return Session{}, false
	}
	return m.session.clone(), true
}

// OnAppend updates the machine after char was appended to buf.
func (m *Machine) OnAppend(buf *buffer.Buffer, char string) []Event {
	if m.session == nil {
		switch {
		case char == m.marker:
			return m.start(buf)
		case isWhitespace(char):
			return nil
		default:
			return m.reopen(buf)
		}
	}

	if isWhitespace(char) {
		return m.cancel(ReasonWhitespace)
	}

	events := m.refresh(buf)
	if m.session == nil && char == m.marker {
		// The run died on this marker, so it may open the next one.
		events = append(events, m.start(buf)...)
	}
	return events
}

// OnRemoveLast updates the machine after the last cluster of buf was
// removed.
func (m *Machine) OnRemoveLast(buf *buffer.Buffer) []Event {
	if m.session == nil {
		return nil
	}
	return m.refresh(buf)
}

// Cancel ends the session explicitly (Escape, Return, service toggle).
func (m *Machine) Cancel() []Event {
	if m.session == nil {
		return nil
	}
	return m.cancel(ReasonExplicit)
}

// Next moves the selection forward, wrapping around.
func (m *Machine) Next() []Event {
	return m.move(1)
}

// Previous moves the selection backward, wrapping around.
func (m *Machine) Previous() []Event {
	return m.move(-1)
}

// Accept commits the selected candidate and ends the session.
func (m *Machine) Accept() (Acceptance, []Event, bool) {
	if m.session == nil {
		return Acceptance{}, nil, false
	}
	cand, ok := m.session.Selection()
	if !ok {
		return Acceptance{}, m.cancel(ReasonNoCandidates), false
	}

	acc := Acceptance{Candidate: cand, PrefixLen: m.session.PrefixLen}
	ev := Event{Type: EventAccepted, Session: m.session.clone()}
	m.session = nil
	return acc, []Event{ev}, true
}

// Complete reports whether the session prefix in buf is a registered
// shortcut with no longer candidate sharing it as a prefix. When it is, the
// session ends and the caller substitutes the shortcut exactly as if it had
// been typed outside a session.
func (m *Machine) Complete(buf *buffer.Buffer) (Acceptance, []Event, bool) {
	if m.session == nil {
		return Acceptance{}, nil, false
	}
	prefix, ok := buf.SuffixFrom(m.session.TriggerIndex)
	if !ok {
		return Acceptance{}, nil, false
	}
	repl, ok := m.reg.Lookup(prefix)
	if !ok || len(m.reg.PrefixSearch(prefix, 2)) != 1 {
		return Acceptance{}, nil, false
	}

	acc := Acceptance{
		Candidate: Candidate{Shortcut: prefix, Replacement: repl},
		PrefixLen: buf.LogicalLen() - m.session.TriggerIndex,
	}
	snap := m.session.clone()
	snap.Prefix = prefix
	snap.PrefixLen = acc.PrefixLen
	m.session = nil
	return acc, []Event{{Type: EventCompleted, Session: snap}}, true
}

func (m *Machine) start(buf *buffer.Buffer) []Event {
	if buf.Last() != m.marker {
		return nil
	}
	cands := m.candidates(m.marker)
	if len(cands) == 0 {
		return nil
	}
	m.dismissed = -1
	m.session = &Session{
		TriggerIndex: buf.LogicalLen() - 1,
		Prefix:       m.marker,
		PrefixLen:    1,
		Candidates:   cands,
	}
	return []Event{{Type: EventStarted, Session: m.session.clone()}}
}

// reopen starts a session on the last marker of buf when no whitespace
// follows it and its run has candidates. A run that ended for lack of
// candidates comes back once the typo is gone.
func (m *Machine) reopen(buf *buffer.Buffer) []Event {
	idx := -1
	for i := buf.LogicalLen() - 1; i >= buf.Offset(); i-- {
		c, _ := buf.At(i)
		if c == m.marker {
			idx = i
			break
		}
		if isWhitespace(c) {
			return nil
		}
	}
	if idx < 0 || idx == m.dismissed {
		return nil
	}

	prefix, _ := buf.SuffixFrom(idx)
	cands := m.candidates(prefix)
	if len(cands) == 0 {
		return nil
	}
	m.session = &Session{
		TriggerIndex: idx,
		Prefix:       prefix,
		PrefixLen:    buf.LogicalLen() - idx,
		Candidates:   cands,
	}
	return []Event{{Type: EventStarted, Session: m.session.clone()}}
}

func (m *Machine) refresh(buf *buffer.Buffer) []Event {
	prefix, ok := buf.SuffixFrom(m.session.TriggerIndex)
	if !ok || !strings.HasPrefix(prefix, m.marker) {
		return m.cancel(ReasonMarkerRemoved)
	}

	cands := m.candidates(prefix)
	if len(cands) == 0 {
		return m.cancel(ReasonNoCandidates)
	}

	m.session.Prefix = prefix
	m.session.PrefixLen = buf.LogicalLen() - m.session.TriggerIndex
	m.session.Candidates = cands
	m.session.Selected = 0
	return []Event{{Type: EventUpdated, Session: m.session.clone()}}
}

func (m *Machine) move(delta int) []Event {
	if m.session == nil || len(m.session.Candidates) == 0 {
		return nil
	}
	n := len(m.session.Candidates)
	m.session.Selected = ((m.session.Selected+delta)%n + n) % n
	return []Event{{Type: EventSelected, Session: m.session.clone()}}
}

func (m *Machine) cancel(reason CancelReason) []Event {
	if reason == ReasonExplicit {
		m.dismissed = m.session.TriggerIndex
	}
	ev := Event{Type: EventCancelled, Session: m.session.clone(), Reason: reason}
	m.session = nil
	return []Event{ev}
}

func (m *Machine) candidates(prefix string) []Candidate {
	var shortcuts []string
	if prefix == m.marker {
		shortcuts = m.reg.All()
		if len(shortcuts) > m.limit {
			shortcuts = shortcuts[:m.limit]
		}
	} else {
		shortcuts = m.reg.PrefixSearch(prefix, m.limit)
	}

	cands := make([]Candidate, 0, len(shortcuts))
	for _, s := range shortcuts {
		repl, _ := m.reg.Lookup(s)
		cands = append(cands, Candidate{Shortcut: s, Replacement: repl})
	}
	return cands
}

func isWhitespace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && unicode.IsSpace(r)
}

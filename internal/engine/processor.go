package engine

import (
	"time"

	"emojid/internal/autocomplete"
	"emojid/internal/buffer"
	"emojid/internal/keystroke"
	"emojid/internal/matcher"
	"emojid/internal/planner"
	"emojid/internal/registry"
	"emojid/internal/store"
)

// OverlayOp is what the overlay should do after an event.
type OverlayOp int

const (
	OverlayKeep OverlayOp = iota
	OverlayShow
	OverlayHide
)

// Outcome is the result of handling one raw key event.
type Outcome struct {
	// Consume suppresses the key in the focused application.
	Consume bool
	// Plan is empty unless a substitution was committed.
	Plan planner.Plan
	// Events are in the order they happened.
	Events []Event

	Overlay OverlayOp
	// Session is the state to show when Overlay is OverlayShow.
	Session autocomplete.Session

	// Typed counts clusters appended to the buffer.
	Typed int
	// TogglePopover is set when the popover binding fired.
	TogglePopover bool
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Registry       *registry.Registry
	Policy         matcher.Policy
	Marker         string
	CandidateLimit int
	BufferCapacity int
	Bindings       keystroke.Bindings
}

// Processor owns the buffer and the autocomplete machine and turns raw key
// events into outcomes. It is not safe for concurrent use; the engine calls
// it from its loop goroutine only.
type Processor struct {
	buf     *buffer.Buffer
	matcher *matcher.Matcher
	machine *autocomplete.Machine
	disp    *keystroke.Dispatcher
	enabled bool
	now     func() time.Time
}

// NewProcessor creates an enabled processor with an empty buffer.
func NewProcessor(opts ProcessorOptions) *Processor {
	return &Processor{
		buf:     buffer.New(opts.BufferCapacity),
		matcher: matcher.New(opts.Registry, opts.Policy),
		machine: autocomplete.New(opts.Registry, autocomplete.Options{
			Marker: opts.Marker,
			Limit:  opts.CandidateLimit,
		}),
		disp:    keystroke.NewDispatcher(opts.Bindings),
		enabled: true,
		now:     time.Now,
	}
}

// Handle processes one key event.
func (p *Processor) Handle(raw keystroke.RawEvent) Outcome {
	var out Outcome
	if raw.Injected {
		return out
	}

	le := p.disp.Translate(raw, p.machine.Active())

	if !p.enabled {
		if le.Kind == keystroke.KindCommand && le.Command == keystroke.CommandToggleService {
			p.setEnabled(true, &out)
			out.Consume = true
		}
		return out
	}

	switch le.Kind {
	case keystroke.KindCommand:
		p.command(le, &out)

	case keystroke.KindCharacter, keystroke.KindSpace:
		p.typed(le.Text, &out)

	case keystroke.KindBackspace:
		p.buf.RemoveLast()
		p.session(p.machine.OnRemoveLast(p.buf), &out)

	case keystroke.KindReturn:
		p.buf.Clear()
		p.session(p.machine.Cancel(), &out)

	case keystroke.KindEscape:
		if p.machine.Active() {
			p.session(p.machine.Cancel(), &out)
			out.Consume = true
		}

	case keystroke.KindIgnored:
		// The caret moved; what we tracked no longer precedes it.
		if raw.Key == keystroke.KeyNavigation {
			p.buf.Clear()
			p.session(p.machine.Cancel(), &out)
		}
	}

	return out
}

func (p *Processor) command(le keystroke.LogicalEvent, out *Outcome) {
	out.Consume = true

	switch le.Command {
	case keystroke.CommandToggleService:
		p.setEnabled(!p.enabled, out)

	case keystroke.CommandTogglePopover:
		out.TogglePopover = true
		out.Events = append(out.Events, Event{Type: EventPopoverToggled, Time: p.now()})

	case keystroke.CommandNext:
		p.session(p.machine.Next(), out)

	case keystroke.CommandPrevious:
		p.session(p.machine.Previous(), out)

	case keystroke.CommandAccept, keystroke.CommandAcceptAlt:
		acc, evs, ok := p.machine.Accept()
		p.session(evs, out)
		if !ok {
			return
		}
		p.substitute(acc, store.SourceAccept, evs, out)
		if !le.Raw.Suppressible() && producesText(le.Raw) {
			// The key reached the application anyway.
			out.Plan = out.Plan.WithExtraDelete(1)
		}
	}
}

func (p *Processor) typed(text string, out *Outcome) {
	wasActive := p.machine.Active()
	p.buf.Append(text)
	out.Typed = 1

	if wasActive {
		if acc, evs, ok := p.machine.Complete(p.buf); ok {
			p.session(evs, out)
			p.substitute(acc, store.SourceComplete, evs, out)
			return
		}
		p.session(p.machine.OnAppend(p.buf, text), out)
		if p.machine.Active() {
			return
		}
		// The session died on this key; the tail may still be a shortcut.
	}

	// Matching runs before a marker may open a session, so a shortcut
	// ending in the marker expands instead.
	if m, ok := p.matcher.Match(p.buf); ok {
		acc := autocomplete.Acceptance{
			Candidate: autocomplete.Candidate{Shortcut: m.Shortcut, Replacement: m.Replacement},
			PrefixLen: m.Length,
		}
		p.substitute(acc, store.SourceMatch, nil, out)
		return
	}

	if !wasActive {
		p.session(p.machine.OnAppend(p.buf, text), out)
	}
}

func (p *Processor) substitute(acc autocomplete.Acceptance, src store.Source, evs []autocomplete.Event, out *Outcome) {
	out.Plan = planner.Substitute(p.buf, acc.PrefixLen, acc.Candidate.Replacement)

	ev := Event{
		Type:        EventMatched,
		Time:        p.now(),
		Shortcut:    acc.Candidate.Shortcut,
		Replacement: acc.Candidate.Replacement,
		Source:      src,
	}
	if len(evs) > 0 {
		ev.Session = evs[len(evs)-1].Session
	}
	out.Events = append(out.Events, ev)
}

// session converts machine events and decides the overlay operation from
// the last one.
func (p *Processor) session(evs []autocomplete.Event, out *Outcome) {
	for _, ev := range evs {
		switch ev.Type {
		case autocomplete.EventStarted:
			out.Events = append(out.Events, Event{Type: EventSessionStarted, Time: p.now(), Session: ev.Session})
		case autocomplete.EventUpdated:
			out.Events = append(out.Events, Event{Type: EventSessionUpdated, Time: p.now(), Session: ev.Session})
		case autocomplete.EventSelected:
			out.Events = append(out.Events, Event{Type: EventSelectionChanged, Time: p.now(), Session: ev.Session})
		case autocomplete.EventCancelled:
			out.Events = append(out.Events, Event{Type: EventCancelled, Time: p.now(), Session: ev.Session, Reason: ev.Reason})
		}
	}

	if len(evs) == 0 {
		return
	}
	switch last := evs[len(evs)-1]; last.Type {
	case autocomplete.EventStarted, autocomplete.EventUpdated, autocomplete.EventSelected:
		out.Overlay = OverlayShow
		out.Session = last.Session
	default:
		out.Overlay = OverlayHide
	}
}

func (p *Processor) setEnabled(v bool, out *Outcome) {
	if v == p.enabled {
		return
	}
	if !v {
		p.session(p.machine.Cancel(), out)
		p.buf.Clear()
	}
	p.enabled = v
	out.Events = append(out.Events, Event{Type: EventToggled, Time: p.now(), Enabled: v})
}

// SetEnabled switches expansion on or off. Disabling drops the buffer and
// any session.
func (p *Processor) SetEnabled(v bool) Outcome {
	var out Outcome
	p.setEnabled(v, &out)
	return out
}

// Enabled reports whether expansion is on.
func (p *Processor) Enabled() bool {
	return p.enabled
}

// SetBindings replaces the key bindings.
func (p *Processor) SetBindings(b keystroke.Bindings) {
	p.disp.SetBindings(b)
}

// Bindings returns the active key bindings.
func (p *Processor) Bindings() keystroke.Bindings {
	return p.disp.Bindings()
}

// Reset clears the buffer and cancels any session.
func (p *Processor) Reset() Outcome {
	var out Outcome
	p.session(p.machine.Cancel(), &out)
	p.buf.Clear()
	return out
}

// Buffer returns the tracked text.
func (p *Processor) Buffer() string {
	return p.buf.String()
}

// Session returns the live session, if any.
func (p *Processor) Session() (autocomplete.Session, bool) {
	return p.machine.Session()
}

// producesText reports whether raw types something in a typical text field.
func producesText(raw keystroke.RawEvent) bool {
	if raw.Modifiers.Has(keystroke.ModControl) || raw.Modifiers.Has(keystroke.ModCommand) {
		return false
	}
	switch raw.Key {
	case keystroke.KeyTab, keystroke.KeyReturn, keystroke.KeySpace:
		return true
	case keystroke.KeyCharacter:
		return raw.Text != ""
	}
	return false
}

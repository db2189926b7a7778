// Package overlay shows autocomplete candidates to the user.
//
// The engine never waits on an overlay: it talks to one through Async,
// which coalesces updates so only the latest state is rendered.
package overlay

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"emojid/internal/autocomplete"
	"emojid/internal/logging"
)

// ErrNotAvailable is returned when a backend can't run on this platform.
var ErrNotAvailable = errors.New("overlay backend not available on this platform")

// Overlay renders the candidate list of the active session.
type Overlay interface {
	// Show displays candidates with selected highlighted.
	Show(candidates []autocomplete.Candidate, selected int)

	// Hide removes the overlay.
	Hide()
}

// Backend names an Overlay implementation.
type Backend string

const (
	BackendLog    Backend = "log"
	BackendNotify Backend = "notify"
	BackendNone   Backend = "none"
)

// ParseBackend parses a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendLog, BackendNotify, BackendNone:
		return b, nil
	case "":
		return BackendLog, nil
	default:
		return "", fmt.Errorf("unknown overlay backend %q (want log, notify or none)", s)
	}
}

// New creates the overlay for backend.
func New(backend Backend, logger *logging.Logger) (Overlay, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch backend {
	case BackendNone:
		return Nop{}, nil
	case BackendLog, "":
		return NewLog(logger), nil
	case BackendNotify:
		return newNotifier(logger)
	default:
		return nil, fmt.Errorf("unknown overlay backend %q", backend)
	}
}

// Nop ignores every update.
type Nop struct{}

func (Nop) Show([]autocomplete.Candidate, int) {}
func (Nop) Hide()                              {}

// Log writes overlay updates to the log at debug level.
type Log struct {
	logger *logging.Logger
}

// NewLog creates a logging overlay.
func NewLog(logger *logging.Logger) *Log {
	return &Log{logger: logger.WithComponent("overlay")}
}

func (l *Log) Show(candidates []autocomplete.Candidate, selected int) {
	l.logger.Debug("overlay show",
		"candidates", len(candidates),
		"selected", Render(candidates, selected))
}

func (l *Log) Hide() {
	l.logger.Debug("overlay hide")
}

// Render formats candidates as one line, marking the selection.
func Render(candidates []autocomplete.Candidate, selected int) string {
	var sb strings.Builder
	for i, c := range candidates {
		if i > 0 {
			sb.WriteString("  ")
		}
		if i == selected {
			sb.WriteString("[")
		}
		sb.WriteString(c.Replacement)
		sb.WriteString(" ")
		sb.WriteString(c.Shortcut)
		if i == selected {
			sb.WriteString("]")
		}
	}
	return sb.String()
}

// Update is one recorded overlay call.
type Update struct {
	Visible    bool
	Candidates []autocomplete.Candidate
	Selected   int
}

// Recorder records overlay calls, for tests.
type Recorder struct {
	mu      sync.Mutex
	updates []Update
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Show(candidates []autocomplete.Candidate, selected int) {
	r.add(Update{
		Visible:    true,
		Candidates: append([]autocomplete.Candidate(nil), candidates...),
		Selected:   selected,
	})
}

func (r *Recorder) Hide() {
	r.add(Update{})
}

func (r *Recorder) add(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

// Updates returns a copy of the recorded calls.
func (r *Recorder) Updates() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

// Hides counts Hide calls.
func (r *Recorder) Hides() int {
	n := 0
	for _, u := range r.Updates() {
		if !u.Visible {
			n++
		}
	}
	return n
}

// Last returns the most recent update.
func (r *Recorder) Last() (Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return Update{}, false
	}
	return r.updates[len(r.updates)-1], true
}

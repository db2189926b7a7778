// Package inject synthesizes the key events and clipboard pastes that carry
// out a substitution plan in the focused application.
//
// Platform support:
// - macOS: CGEventPost, tagged so the keystroke hook skips its own events
// - Linux: a uinput virtual keyboard plus wl-copy, xclip or xsel
// - Other: not available
package inject

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"emojid/internal/logging"
)

// DefaultSettleDelay is how long the pasted text is left on the clipboard
// before the previous contents are restored.
const DefaultSettleDelay = 100 * time.Millisecond

// ErrNotAvailable is returned when injection isn't available.
var ErrNotAvailable = errors.New("text injection not available on this platform")

// ErrNoClipboard is returned when no clipboard tool could be found.
var ErrNoClipboard = errors.New("no clipboard access available")

// Injector performs the primitive editing actions of a plan.
type Injector interface {
	// DeleteBackward sends n backspaces.
	DeleteBackward(n int) error

	// InsertText inserts s at the cursor.
	InsertText(s string) error
}

// Closer is implemented by injectors that hold OS resources.
type Closer interface {
	Close() error
}

// Clipboard is the platform-specific text clipboard.
type Clipboard interface {
	// GetText returns the current text clipboard content.
	GetText() (string, error)

	// SetText replaces the clipboard content with text.
	SetText(text string) error
}

// Config configures a platform injector.
type Config struct {
	// SettleDelay is the wait between paste and clipboard restore.
	SettleDelay time.Duration

	Logger *logging.Logger
}

// New creates the Injector for the current platform.
func New(cfg Config) (Injector, error) {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return newPlatformInjector(cfg)
}

// keySender emits the raw key strokes an injector needs.
type keySender interface {
	backspace(n int) error
	paste() error
}

// pasteInjector deletes with backspaces and inserts through the clipboard,
// since synthesized key codes cannot produce arbitrary emoji.
type pasteInjector struct {
	keys   keySender
	clip   Clipboard
	settle time.Duration
	logger *logging.Logger
	sleep  func(time.Duration)
}

func newPasteInjector(keys keySender, clip Clipboard, cfg Config) *pasteInjector {
	return &pasteInjector{
		keys:   keys,
		clip:   clip,
		settle: cfg.SettleDelay,
		logger: cfg.Logger,
		sleep:  time.Sleep,
	}
}

func (p *pasteInjector) DeleteBackward(n int) error {
	if n <= 0 {
		return nil
	}
	if err := p.keys.backspace(n); err != nil {
		return fmt.Errorf("send %d backspaces: %w", n, err)
	}
	return nil
}

func (p *pasteInjector) InsertText(s string) error {
	if s == "" {
		return nil
	}

	// An unreadable clipboard (an image, say) cannot be put back, so it
	// is cleared instead of left holding the emoji.
	previous, getErr := p.clip.GetText()
	if getErr != nil {
		p.logger.Debug("clipboard not readable, it will be cleared", "error", getErr)
		previous = ""
	}
	if err := p.clip.SetText(s); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	if err := p.keys.paste(); err != nil {
		p.restore(previous)
		return fmt.Errorf("send paste: %w", err)
	}

	// The target app reads the clipboard asynchronously after the paste
	// chord; restoring too early pastes the old contents.
	p.sleep(p.settle)

	return p.restore(previous)
}

func (p *pasteInjector) restore(previous string) error {
	if err := p.clip.SetText(previous); err != nil {
		return fmt.Errorf("restore clipboard: %w", err)
	}
	return nil
}

// Op is one recorded injector call.
type Op struct {
	Delete int
	Insert string
}

// Recorder is an Injector that records calls, for tests.
type Recorder struct {
	mu  sync.Mutex
	ops []Op
	// Fail, if set, is returned by every call.
	Fail error
	// Delay is slept before each call returns.
	Delay time.Duration
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) DeleteBackward(n int) error {
	return r.record(Op{Delete: n})
}

func (r *Recorder) InsertText(s string) error {
	return r.record(Op{Insert: s})
}

func (r *Recorder) record(op Op) error {
	if r.Delay > 0 {
		time.Sleep(r.Delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.ops = append(r.ops, op)
	return nil
}

// Ops returns a copy of the recorded calls.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Op(nil), r.ops...)
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.ops = nil
	r.mu.Unlock()
}

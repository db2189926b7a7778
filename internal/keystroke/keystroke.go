// Package keystroke captures system-wide key events and translates them
// into logical editing events for the expansion engine.
//
// Hooks hand every key-down to a bounded channel. Hooks that can suppress
// events wait a short, bounded time for the consumer's decision; when the
// queue is full or the decision is late the event passes through untouched.
//
// Platform support:
// - macOS: Uses CGEventTap (requires Accessibility permission); can consume
// - Linux: Uses /dev/input/event* (requires input group or root); observe only
// - Other: not available
package keystroke

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for Config fields left zero.
const (
	DefaultQueueSize       = 256
	DefaultDecisionTimeout = 20 * time.Millisecond
)

// InjectedTag marks events posted by our own injector so hooks can skip
// them. It is written to the event source user-data field on macOS.
const InjectedTag int64 = 0x656d6a64 // "emjd"

// VirtualDeviceName is the name of the uinput keyboard the Linux injector
// creates; the Linux hook never reads from it.
const VirtualDeviceName = "emojid virtual keyboard"

// ErrNotAvailable is returned when key capture isn't available.
var ErrNotAvailable = errors.New("key capture not available on this platform")

// ErrPermissionDenied is returned when permissions are insufficient.
var ErrPermissionDenied = errors.New("insufficient permissions for key capture")

// ErrAlreadyRunning is returned when Start is called while already running.
var ErrAlreadyRunning = errors.New("hook already running")

// ErrHookInstall is returned when the platform hook could not be installed.
var ErrHookInstall = errors.New("failed to install key hook")

// Hook delivers key-down events.
type Hook interface {
	// Start installs the hook. Events() is valid until Stop.
	Start(ctx context.Context) error

	// Stop removes the hook and closes the event channel.
	Stop() error

	// Events returns the channel events are delivered on.
	Events() <-chan RawEvent

	// Available returns true if key capture is available on this
	// platform with current permissions.
	Available() (bool, string)

	// Stats returns delivery counters.
	Stats() HookStats
}

// HookStats counts events that never reached a decision.
type HookStats struct {
	Delivered uint64
	Dropped   uint64 // queue full
	TimedOut  uint64 // decision arrived too late
	Disabled  uint64 // times the platform switched the hook off
}

// Config configures a Hook.
type Config struct {
	QueueSize       int
	DecisionTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = DefaultDecisionTimeout
	}
	return c
}

// BaseHook provides common functionality for platform implementations.
type BaseHook struct {
	mu      sync.RWMutex
	cfg     Config
	running bool
	events  chan RawEvent

	delivered atomic.Uint64
	dropped   atomic.Uint64
	timedOut  atomic.Uint64
	disabled  atomic.Uint64
}

func (b *BaseHook) configure(cfg Config) {
	b.cfg = cfg.withDefaults()
}

// Events returns the current event channel.
func (b *BaseHook) Events() <-chan RawEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.events
}

// Stats returns delivery counters.
func (b *BaseHook) Stats() HookStats {
	return HookStats{
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		TimedOut:  b.timedOut.Load(),
		Disabled:  b.disabled.Load(),
	}
}

// noteDisabled records that the platform disabled the hook, usually
// because a decision took too long.
func (b *BaseHook) noteDisabled() {
	b.disabled.Add(1)
}

// IsRunning returns the running state.
func (b *BaseHook) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// open marks the hook running with a fresh channel.
func (b *BaseHook) open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrAlreadyRunning
	}
	b.events = make(chan RawEvent, b.cfg.QueueSize)
	b.running = true
	return nil
}

// close marks the hook stopped and closes the channel. Deliveries racing
// with close see running == false and pass through.
func (b *BaseHook) close() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return false
	}
	b.running = false
	close(b.events)
	return true
}

// Deliver enqueues ev without waiting for a decision.
func (b *BaseHook) Deliver(ev RawEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return false
	}
	select {
	case b.events <- ev:
		b.delivered.Add(1)
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// DeliverAndWait enqueues ev and waits up to the decision timeout for the
// consumer's verdict. It returns false (pass through) on any failure.
func (b *BaseHook) DeliverAndWait(ev RawEvent) bool {
	reply := make(chan bool, 1)
	ev.reply = reply
	if !b.Deliver(ev) {
		return false
	}

	timer := time.NewTimer(b.cfg.DecisionTimeout)
	defer timer.Stop()
	select {
	case consume := <-reply:
		return consume
	case <-timer.C:
		b.timedOut.Add(1)
		return false
	}
}

// New creates a Hook for the current platform.
func New(cfg Config) Hook {
	return newPlatformHook(cfg)
}

// Gate reports and requests the permission key capture needs.
type Gate interface {
	IsTrusted() bool
	RequestPermission()
}

// NewGate returns the permission gate for the current platform.
func NewGate() Gate {
	return newPlatformGate()
}

// SimulatedHook is a hook for testing that doesn't hook the real keyboard.
type SimulatedHook struct {
	BaseHook
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSimulated creates a hook for testing.
func NewSimulated(cfg Config) *SimulatedHook {
	s := &SimulatedHook{}
	s.configure(cfg)
	return s
}

// Start begins the simulated hook.
func (s *SimulatedHook) Start(ctx context.Context) error {
	if err := s.open(); err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	return nil
}

// Stop stops the simulated hook.
func (s *SimulatedHook) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.close()
	return nil
}

// Press delivers ev and returns the consume decision, like a suppressing
// platform hook would.
func (s *SimulatedHook) Press(ev RawEvent) bool {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return s.DeliverAndWait(ev)
}

// Disable acts like the platform switching the hook off once.
func (s *SimulatedHook) Disable() {
	s.noteDisabled()
}

// Type presses one character event per rune of text.
func (s *SimulatedHook) Type(text string) {
	for _, r := range text {
		s.Press(Char(string(r)))
	}
}

// Available returns true (simulated is always available).
func (s *SimulatedHook) Available() (bool, string) {
	return true, "simulated hook (for testing)"
}

// SimulatedGate is a Gate with a settable answer.
type SimulatedGate struct {
	trusted   atomic.Bool
	requested atomic.Int32
	// GrantOnRequest makes RequestPermission grant trust.
	GrantOnRequest bool
}

// NewSimulatedGate creates a gate with the given initial state.
func NewSimulatedGate(trusted bool) *SimulatedGate {
	g := &SimulatedGate{}
	g.trusted.Store(trusted)
	return g
}

func (g *SimulatedGate) IsTrusted() bool { return g.trusted.Load() }

func (g *SimulatedGate) RequestPermission() {
	g.requested.Add(1)
	if g.GrantOnRequest {
		g.trusted.Store(true)
	}
}

// SetTrusted changes the answer.
func (g *SimulatedGate) SetTrusted(v bool) { g.trusted.Store(v) }

// Requests returns how often permission was requested.
func (g *SimulatedGate) Requests() int { return int(g.requested.Load()) }

// Char builds a character key event.
func Char(text string) RawEvent {
	ev := RawEvent{Key: KeyCharacter, Text: text}
	for _, r := range text {
		ev.Rune = r
		break
	}
	switch text {
	case " ":
		ev.Key = KeySpace
	case "\t":
		ev.Key = KeyTab
	}
	return ev
}

// Special builds an event for a non-character key.
func Special(k Key) RawEvent {
	return RawEvent{Key: k}
}

// Chord builds an event that triggers b.
func Chord(b Binding) RawEvent {
	ev := RawEvent{Key: b.Key, Rune: b.Rune, Modifiers: b.Modifiers}
	if b.Key == KeyCharacter && b.Modifiers&(ModControl|ModCommand) == 0 {
		ev.Text = string(b.Rune)
	}
	return ev
}

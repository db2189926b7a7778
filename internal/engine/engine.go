// Package engine runs the expansion engine: it consumes key events from a
// hook on a single goroutine, keeps the typed buffer and the autocomplete
// session, and hands substitutions to the injector and session state to
// the overlay without waiting on either.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"emojid/internal/autocomplete"
	"emojid/internal/inject"
	"emojid/internal/keystroke"
	"emojid/internal/logging"
	"emojid/internal/matcher"
	"emojid/internal/metrics"
	"emojid/internal/overlay"
	"emojid/internal/planner"
	"emojid/internal/registry"
	"emojid/internal/store"
)

var (
	// ErrNotRunning is returned by operations that need a running engine.
	ErrNotRunning = errors.New("engine not running")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")
)

// History receives committed expansions.
type History interface {
	Record(ctx context.Context, e store.Expansion) (int64, error)
}

// Options configures an Engine. Registry, Hook and Injector are required.
type Options struct {
	Registry       *registry.Registry
	Policy         matcher.Policy
	Marker         string
	CandidateLimit int
	BufferCapacity int
	// Bindings defaults to keystroke.DefaultBindings when zero.
	Bindings keystroke.Bindings

	Hook keystroke.Hook
	// Gate is consulted by Start. Nil means always trusted.
	Gate keystroke.Gate

	// Injector performs substitutions on a dedicated executor goroutine.
	Injector      inject.Injector
	InjectorQueue int

	// Overlay is driven through overlay.Async. Nil means no overlay.
	Overlay overlay.Overlay

	History History
	Metrics *metrics.EngineMetrics
	Crash   *logging.CrashHandler
	Logger  *logging.Logger

	// OnTogglePopover runs on its own goroutine when the popover binding
	// fires.
	OnTogglePopover func()
}

// Engine is the expansion engine handle. Start and Stop may be called any
// number of times; Close releases it for good.
type Engine struct {
	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	calls   chan func()

	proc    *Processor
	hook    keystroke.Hook
	gate    keystroke.Gate
	exec    *inject.Executor
	overlay *overlay.Async
	history *historyWriter
	metrics *metrics.EngineMetrics
	crash   *logging.CrashHandler
	logger  *logging.Logger

	onTogglePopover func()

	// owned by the loop goroutine, or by the caller while stopped
	visible bool

	subMu       sync.Mutex
	subscribers []chan Event
}

// New creates a stopped engine.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	if opts.Hook == nil {
		return nil, errors.New("engine: hook is required")
	}
	if opts.Injector == nil {
		return nil, errors.New("engine: injector is required")
	}
	if opts.Bindings == (keystroke.Bindings{}) {
		opts.Bindings = keystroke.DefaultBindings()
	}
	if err := opts.Bindings.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Overlay == nil {
		opts.Overlay = overlay.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewEngineMetrics(metrics.NewRegistry("emojid", ""))
	}

	e := &Engine{
		calls: make(chan func()),
		proc: NewProcessor(ProcessorOptions{
			Registry:       opts.Registry,
			Policy:         opts.Policy,
			Marker:         opts.Marker,
			CandidateLimit: opts.CandidateLimit,
			BufferCapacity: opts.BufferCapacity,
			Bindings:       opts.Bindings,
		}),
		hook:            opts.Hook,
		gate:            opts.Gate,
		overlay:         overlay.NewAsync(opts.Overlay),
		metrics:         opts.Metrics,
		crash:           opts.Crash,
		logger:          opts.Logger.WithComponent("engine"),
		onTogglePopover: opts.OnTogglePopover,
	}
	e.exec = inject.NewExecutor(opts.Injector, inject.ExecutorOptions{
		Logger:    opts.Logger,
		QueueSize: opts.InjectorQueue,
		OnError: func(planner.Action, error) {
			e.metrics.InjectionErrorsTotal.Inc()
		},
	})
	if opts.History != nil {
		e.history = newHistoryWriter(opts.History, e.logger)
	}
	return e, nil
}

// Start installs the hook and starts the loop. It is a no-op when already
// running. When the permission gate does not trust the process it asks
// for permission and returns keystroke.ErrPermissionDenied; the caller is
// expected to poll and retry.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.running {
		if !e.loopExited() {
			return nil
		}
		// The loop ended on its own (caller context cancelled or the hook
		// closed its channel); tear it down before starting again.
		e.stopLocked()
	}

	if e.gate != nil && !e.gate.IsTrusted() {
		e.gate.RequestPermission()
		e.logger.Warn("key capture not permitted, permission requested")
		return keystroke.ErrPermissionDenied
	}

	loopCtx, cancel := context.WithCancel(ctx)
	if err := e.hook.Start(loopCtx); err != nil {
		cancel()
		e.logger.Error("hook start failed", "error", err)
		return err
	}

	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	e.metrics.Started()

	go e.loop(loopCtx, e.hook.Events(), e.done)

	e.logger.Info("engine started",
		"policy", e.proc.matcher.Policy().String(),
		"marker", e.proc.machine.Marker(),
	)
	return nil
}

// Stop removes the hook, waits for the loop to exit and clears the buffer
// and session. Calling it on a stopped engine does nothing.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	e.cancel()
	err := e.hook.Stop()
	<-e.done

	e.running = false
	e.apply(e.proc.Reset())
	e.hideOverlay()
	e.metrics.Stopped()

	if err != nil {
		e.logger.Warn("hook stop failed", "error", err)
		return fmt.Errorf("stop hook: %w", err)
	}
	e.logger.Info("engine stopped")
	return nil
}

// IsRunning reports whether the hook is installed and the loop is still
// consuming its events.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running && !e.loopExited()
}

// loopExited reports whether the loop of the current run has returned.
// Callers hold e.mu.
func (e *Engine) loopExited() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Close stops the engine, drains pending substitutions and history
// records, and closes subscriber channels.
func (e *Engine) Close() error {
	err := e.Stop()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return err
	}
	e.closed = true
	e.mu.Unlock()

	if cerr := e.exec.Close(); cerr != nil && err == nil {
		err = cerr
	}
	e.overlay.Close()
	if e.history != nil {
		e.history.close()
	}

	e.subMu.Lock()
	for _, ch := range e.subscribers {
		close(ch)
	}
	e.subscribers = nil
	e.subMu.Unlock()
	return err
}

// Subscribe returns a channel of engine events. Events are dropped for a
// subscriber that falls behind. The channel is closed by Close.
func (e *Engine) Subscribe() <-chan Event {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	ch := make(chan Event, 100)
	e.subscribers = append(e.subscribers, ch)
	return ch
}

// SetEnabled turns expansion on or off without removing the hook.
func (e *Engine) SetEnabled(v bool) {
	e.do(func() { e.apply(e.proc.SetEnabled(v)) })
}

// Toggle flips expansion on or off and returns the new state.
func (e *Engine) Toggle() bool {
	var v bool
	e.do(func() {
		v = !e.proc.Enabled()
		e.apply(e.proc.SetEnabled(v))
	})
	return v
}

// Enabled reports whether expansion is on.
func (e *Engine) Enabled() bool {
	var v bool
	e.do(func() { v = e.proc.Enabled() })
	return v
}

// UpdateBindings replaces the key bindings. It takes effect from the next
// key event.
func (e *Engine) UpdateBindings(b keystroke.Bindings) error {
	if err := b.Validate(); err != nil {
		return err
	}
	e.do(func() { e.proc.SetBindings(b) })
	e.logger.Info("keybindings updated")
	return nil
}

// Bindings returns the active key bindings.
func (e *Engine) Bindings() keystroke.Bindings {
	var b keystroke.Bindings
	e.do(func() { b = e.proc.Bindings() })
	return b
}

// Session returns the live autocomplete session. It fails with
// ErrNotRunning while the engine is stopped.
func (e *Engine) Session() (autocomplete.Session, bool, error) {
	var (
		s       autocomplete.Session
		ok      bool
		running bool
	)
	e.do(func() {
		running = e.running && !e.loopExited()
		s, ok = e.proc.Session()
	})
	if !running {
		return autocomplete.Session{}, false, ErrNotRunning
	}
	return s, ok, nil
}

// Stats returns the hook and injector counters.
func (e *Engine) Stats() (keystroke.HookStats, inject.ExecutorStats) {
	return e.hook.Stats(), e.exec.Stats()
}

// do runs fn on the loop goroutine when running, or inline while stopped.
func (e *Engine) do(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		fn()
		return
	}
	finished := make(chan struct{})
	select {
	case e.calls <- func() { fn(); close(finished) }:
		<-finished
	case <-e.done:
		fn()
	}
}

func (e *Engine) loop(ctx context.Context, events <-chan keystroke.RawEvent, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.calls:
			fn()
		case raw, ok := <-events:
			if !ok {
				e.logger.Warn("hook closed its event channel, key capture stopped")
				return
			}
			e.dispatch(raw)
		}
	}
}

// dispatch handles one event. The consume decision is replied before any
// side effect runs so the hook is released as early as possible.
func (e *Engine) dispatch(raw keystroke.RawEvent) {
	timer := e.metrics.DispatchDuration.Timer()
	defer timer.Stop()
	e.metrics.EventsTotal.Inc()
	e.metrics.HookDropped.Set(int64(e.hook.Stats().Dropped))

	var out Outcome
	handle := func() { out = e.proc.Handle(raw) }

	if e.recoverPanic(handle) {
		raw.Reply(false)
		e.apply(e.proc.Reset())
		return
	}
	raw.Reply(out.Consume)
	e.apply(out)
}

func (e *Engine) recoverPanic(fn func()) (panicked bool) {
	if e.crash != nil {
		return e.crash.Recover(map[string]any{"stage": "dispatch"}, fn)
	}
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			e.logger.Error("panic while handling key event", "panic", fmt.Sprint(r))
		}
	}()
	fn()
	return false
}

// apply performs the side effects of an outcome.
func (e *Engine) apply(out Outcome) {
	if out.Typed > 0 {
		e.metrics.CharactersTotal.Add(uint64(out.Typed))
	}

	if !out.Plan.Empty() && !e.exec.Submit(out.Plan) {
		e.logger.Warn("substitution dropped", "deletes", out.Plan.DeleteCount())
	}

	switch out.Overlay {
	case OverlayShow:
		e.overlay.Show(out.Session.Candidates, out.Session.Selected)
		e.visible = true
	case OverlayHide:
		e.hideOverlay()
	}

	if out.TogglePopover && e.onTogglePopover != nil {
		go e.onTogglePopover()
	}

	for _, ev := range out.Events {
		e.observe(ev)
		e.publish(ev)
	}
}

func (e *Engine) hideOverlay() {
	if e.visible {
		e.overlay.Hide()
		e.visible = false
	}
}

func (e *Engine) observe(ev Event) {
	switch ev.Type {
	case EventSessionStarted:
		e.metrics.SessionOpened()
		e.logger.Debug("session started", "candidates", len(ev.Session.Candidates))
	case EventCancelled:
		e.metrics.SessionClosed("cancel")
		e.logger.Debug("session cancelled", "reason", ev.Reason.String())
	case EventMatched:
		switch ev.Source {
		case store.SourceMatch:
			e.metrics.MatchesTotal.Inc()
		default:
			e.metrics.SessionClosed(string(ev.Source))
		}
		e.logger.Debug("expansion", "shortcut", ev.Shortcut, "source", string(ev.Source))
		if e.history != nil {
			e.history.add(store.Expansion{
				Shortcut:    ev.Shortcut,
				Replacement: ev.Replacement,
				Source:      ev.Source,
				At:          ev.Time,
			})
		}
	case EventToggled:
		if !ev.Enabled {
			e.metrics.SessionActive.Set(0)
		}
		e.logger.Info("expansion toggled", "enabled", ev.Enabled)
	}
}

func (e *Engine) publish(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// historyWriter records expansions off the loop goroutine.
type historyWriter struct {
	h      History
	logger *logging.Logger
	queue  chan store.Expansion
	done   chan struct{}
	once   sync.Once
}

const historyQueue = 64

func newHistoryWriter(h History, logger *logging.Logger) *historyWriter {
	w := &historyWriter{
		h:      h,
		logger: logger,
		queue:  make(chan store.Expansion, historyQueue),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *historyWriter) add(x store.Expansion) {
	select {
	case w.queue <- x:
	default:
		w.logger.Debug("history queue full, expansion not recorded")
	}
}

func (w *historyWriter) run() {
	defer close(w.done)
	for x := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := w.h.Record(ctx, x); err != nil {
			w.logger.Warn("record expansion failed", "error", err)
		}
		cancel()
	}
}

func (w *historyWriter) close() {
	w.once.Do(func() { close(w.queue) })
	<-w.done
}

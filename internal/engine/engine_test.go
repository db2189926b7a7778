package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emojid/internal/inject"
	"emojid/internal/keystroke"
	"emojid/internal/logging"
	"emojid/internal/metrics"
	"emojid/internal/overlay"
	"emojid/internal/registry"
	"emojid/internal/store"
)

type fakeHistory struct {
	mu      sync.Mutex
	records []store.Expansion
}

func (h *fakeHistory) Record(_ context.Context, e store.Expansion) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, e)
	return int64(len(h.records)), nil
}

func (h *fakeHistory) all() []store.Expansion {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]store.Expansion(nil), h.records...)
}

type harness struct {
	engine  *Engine
	hook    *keystroke.SimulatedHook
	gate    *keystroke.SimulatedGate
	inj     *inject.Recorder
	overlay *overlay.Recorder
	history *fakeHistory
	metrics *metrics.EngineMetrics
}

func newHarness(t *testing.T, table map[string]string) *harness {
	t.Helper()
	h := &harness{
		hook:    keystroke.NewSimulated(keystroke.Config{DecisionTimeout: 2 * time.Second}),
		gate:    keystroke.NewSimulatedGate(true),
		inj:     inject.NewRecorder(),
		overlay: overlay.NewRecorder(),
		history: &fakeHistory{},
		metrics: metrics.NewEngineMetrics(metrics.NewRegistry("test", "")),
	}
	e, err := New(Options{
		Registry: registry.MustFromMap(table),
		Hook:     h.hook,
		Gate:     h.gate,
		Injector: h.inj,
		Overlay:  h.overlay,
		History:  h.history,
		Metrics:  h.metrics,
		Logger:   logging.Nop(),
	})
	require.NoError(t, err)
	h.engine = e
	t.Cleanup(func() { e.Close() })
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Start(context.Background()))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	reg := registry.MustFromMap(smileTable)
	hook := keystroke.NewSimulated(keystroke.Config{})
	inj := inject.NewRecorder()

	_, err := New(Options{Hook: hook, Injector: inj})
	assert.Error(t, err)
	_, err = New(Options{Registry: reg, Injector: inj})
	assert.Error(t, err)
	_, err = New(Options{Registry: reg, Hook: hook})
	assert.Error(t, err)

	dup := keystroke.DefaultBindings()
	dup.Next = dup.Accept
	_, err = New(Options{Registry: reg, Hook: hook, Injector: inj, Bindings: dup, Logger: logging.Nop()})
	assert.Error(t, err)
}

func TestEngine_StartStopIdempotent(t *testing.T) {
	h := newHarness(t, smileTable)
	assert.False(t, h.engine.IsRunning())

	h.start(t)
	assert.True(t, h.engine.IsRunning())
	assert.NoError(t, h.engine.Start(context.Background()), "second start is a no-op")
	assert.Equal(t, int64(1), h.metrics.Running.Value())

	assert.NoError(t, h.engine.Stop())
	assert.False(t, h.engine.IsRunning())
	assert.NoError(t, h.engine.Stop())
	assert.False(t, h.engine.IsRunning())
	assert.Equal(t, int64(0), h.metrics.Running.Value())

	// Restart after stop.
	h.start(t)
	assert.True(t, h.engine.IsRunning())
}

func TestEngine_CallerContextCancelled(t *testing.T) {
	h := newHarness(t, smileTable)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.engine.Start(ctx))
	h.hook.Type(":sm")
	cancel()

	assert.Eventually(t, func() bool { return !h.engine.IsRunning() },
		time.Second, 5*time.Millisecond, "loop ended without Stop")
	_, _, err := h.engine.Session()
	assert.ErrorIs(t, err, ErrNotRunning)

	// Start again tears the dead run down and installs a fresh hook.
	h.start(t)
	assert.True(t, h.engine.IsRunning())
	_, ok, err := h.engine.Session()
	require.NoError(t, err)
	assert.False(t, ok, "session of the dead run is gone")

	require.NoError(t, h.engine.Stop())
	assert.False(t, h.engine.IsRunning())
}

func TestEngine_StartUntrusted(t *testing.T) {
	h := newHarness(t, smileTable)
	h.gate.SetTrusted(false)

	err := h.engine.Start(context.Background())
	assert.True(t, errors.Is(err, keystroke.ErrPermissionDenied))
	assert.False(t, h.engine.IsRunning())
	assert.Equal(t, 1, h.gate.Requests())

	h.gate.GrantOnRequest = true
	assert.Error(t, h.engine.Start(context.Background()), "grant takes effect on the next poll")
	assert.NoError(t, h.engine.Start(context.Background()))
	assert.True(t, h.engine.IsRunning())
}

func TestEngine_AcceptScenario(t *testing.T) {
	h := newHarness(t, smileTable)
	h.start(t)
	bs := keystroke.DefaultBindings()

	for _, r := range "hi :sm" {
		assert.False(t, h.hook.Press(keystroke.Char(string(r))), "typing is never consumed")
	}

	s, ok, err := h.engine.Session()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ":sm", s.Prefix)

	assert.True(t, h.hook.Press(keystroke.Chord(bs.Next)))
	assert.True(t, h.hook.Press(keystroke.Chord(bs.Accept)))

	_, ok, err = h.engine.Session()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.engine.Close())

	// The tab was suppressed, so nothing extra is deleted.
	assert.Equal(t, []inject.Op{{Delete: 3}, {Insert: "😏"}}, h.inj.Ops())

	records := h.history.all()
	require.Len(t, records, 1)
	assert.Equal(t, ":smirk:", records[0].Shortcut)
	assert.Equal(t, store.SourceAccept, records[0].Source)

	assert.Equal(t, uint64(1), h.metrics.AcceptsTotal.Value())
	assert.Equal(t, uint64(1), h.metrics.SessionsTotal.Value())
	assert.Equal(t, uint64(6), h.metrics.CharactersTotal.Value())
	assert.Equal(t, uint64(8), h.metrics.EventsTotal.Value())

	last, ok := h.overlay.Last()
	require.True(t, ok)
	assert.False(t, last.Visible, "overlay ends hidden")
}

func TestEngine_ExactMatch(t *testing.T) {
	h := newHarness(t, map[string]string{":)": "🙂"})
	h.start(t)
	events := h.engine.Subscribe()

	h.hook.Type(":)")
	require.NoError(t, h.engine.Close())

	assert.Equal(t, []inject.Op{{Delete: 2}, {Insert: "🙂"}}, h.inj.Ops())

	var matched int
	for ev := range events {
		if ev.Type == EventMatched {
			matched++
			assert.Equal(t, ":)", ev.Shortcut)
			assert.Equal(t, "🙂", ev.Replacement)
		}
	}
	assert.Equal(t, 1, matched)
}

func TestEngine_SpaceCancelHidesOnce(t *testing.T) {
	h := newHarness(t, smileTable)
	h.start(t)

	h.hook.Type(":sm")
	assert.False(t, h.hook.Press(keystroke.Char(" ")))
	require.NoError(t, h.engine.Close())

	assert.Equal(t, 1, h.overlay.Hides())
	assert.Empty(t, h.inj.Ops())
	assert.Empty(t, h.history.all())
	assert.Equal(t, uint64(1), h.metrics.CancelsTotal.Value())
}

func TestEngine_StopClearsState(t *testing.T) {
	h := newHarness(t, smileTable)
	h.start(t)

	h.hook.Type("x :s")
	require.NoError(t, h.engine.Stop())

	_, _, err := h.engine.Session()
	assert.ErrorIs(t, err, ErrNotRunning)

	// The buffer did not survive: ":s" + "mirk:" would not complete.
	h.start(t)
	h.hook.Type("mirk:")
	require.NoError(t, h.engine.Close())
	assert.Empty(t, h.inj.Ops())
	// Once for Stop, once for Close.
	assert.Equal(t, 2, h.overlay.Hides())
}

func TestEngine_SetEnabled(t *testing.T) {
	h := newHarness(t, map[string]string{":)": "🙂"})
	h.start(t)
	events := h.engine.Subscribe()

	h.engine.SetEnabled(false)
	assert.False(t, h.engine.Enabled())
	h.hook.Type(":)")

	h.engine.SetEnabled(true)
	assert.True(t, h.engine.Enabled())
	h.hook.Type(":)")
	require.NoError(t, h.engine.Close())

	assert.Equal(t, []inject.Op{{Delete: 2}, {Insert: "🙂"}}, h.inj.Ops())

	var toggles []bool
	for ev := range events {
		if ev.Type == EventToggled {
			toggles = append(toggles, ev.Enabled)
		}
	}
	assert.Equal(t, []bool{false, true}, toggles)
}

func TestEngine_SetEnabledWhileStopped(t *testing.T) {
	h := newHarness(t, smileTable)
	h.engine.SetEnabled(false)
	assert.False(t, h.engine.Enabled())
	h.engine.SetEnabled(true)
	assert.True(t, h.engine.Enabled())
}

func TestEngine_Toggle(t *testing.T) {
	h := newHarness(t, map[string]string{":)": "🙂"})
	h.start(t)

	assert.False(t, h.engine.Toggle())
	h.hook.Type(":)")
	assert.True(t, h.engine.Toggle())
	h.hook.Type(":)")
	require.NoError(t, h.engine.Close())

	assert.Equal(t, []inject.Op{{Delete: 2}, {Insert: "🙂"}}, h.inj.Ops())
}

func TestEngine_ToggleServiceKey(t *testing.T) {
	h := newHarness(t, map[string]string{":)": "🙂"})
	h.start(t)
	bs := keystroke.DefaultBindings()

	assert.True(t, h.hook.Press(keystroke.Chord(bs.ToggleService)))
	assert.False(t, h.engine.Enabled())
	h.hook.Type(":)")

	require.NoError(t, h.engine.Close())
	assert.Empty(t, h.inj.Ops())
}

func TestEngine_UpdateBindings(t *testing.T) {
	h := newHarness(t, smileTable)
	h.start(t)

	bs := keystroke.DefaultBindings()
	bs.Accept = keystroke.MustParseBinding("ctrl+y")
	require.NoError(t, h.engine.UpdateBindings(bs))
	assert.Equal(t, bs, h.engine.Bindings())

	bad := bs
	bad.Next = bad.Accept
	assert.Error(t, h.engine.UpdateBindings(bad))

	h.hook.Type(":smi")
	assert.True(t, h.hook.Press(keystroke.Chord(bs.Accept)))
	require.NoError(t, h.engine.Close())

	assert.Equal(t, []inject.Op{{Delete: 4}, {Insert: "😄"}}, h.inj.Ops())
}

func TestEngine_TogglePopoverCallback(t *testing.T) {
	called := make(chan struct{}, 1)
	hook := keystroke.NewSimulated(keystroke.Config{DecisionTimeout: 2 * time.Second})
	e, err := New(Options{
		Registry:        registry.MustFromMap(smileTable),
		Hook:            hook,
		Injector:        inject.NewRecorder(),
		Logger:          logging.Nop(),
		OnTogglePopover: func() { called <- struct{}{} },
	})
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Start(context.Background()))

	assert.True(t, hook.Press(keystroke.Chord(keystroke.DefaultBindings().TogglePopover)))
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("popover callback not called")
	}
}

func TestEngine_InjectionErrorsCounted(t *testing.T) {
	h := newHarness(t, map[string]string{":)": "🙂"})
	h.inj.Fail = errors.New("device gone")
	h.start(t)

	h.hook.Type(":)")
	require.NoError(t, h.engine.Close())

	// The delete fails and the insert is abandoned.
	assert.Equal(t, uint64(1), h.metrics.InjectionErrorsTotal.Value())
}

func TestEngine_ClosedCannotStart(t *testing.T) {
	h := newHarness(t, smileTable)
	require.NoError(t, h.engine.Close())
	assert.ErrorIs(t, h.engine.Start(context.Background()), ErrClosed)
	assert.NoError(t, h.engine.Close())
}

package autocomplete

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emojid/internal/buffer"
	"emojid/internal/registry"
)

type harness struct {
	t   *testing.T
	buf *buffer.Buffer
	m   *Machine
}

func newHarness(t *testing.T, mappings map[string]string, opts Options) *harness {
	t.Helper()
	return &harness{
		t:   t,
		buf: buffer.New(50),
		m:   New(registry.MustFromMap(mappings), opts),
	}
}

func (h *harness) typeChar(c string) []Event {
	h.buf.Append(c)
	return h.m.OnAppend(h.buf, c)
}

func (h *harness) typeString(s string) []Event {
	var events []Event
	for _, r := range s {
		events = append(events, h.typeChar(string(r))...)
	}
	return events
}

func (h *harness) backspace() []Event {
	h.buf.RemoveLast()
	return h.m.OnRemoveLast(h.buf)
}

func shortcuts(s Session) []string {
	out := make([]string, len(s.Candidates))
	for i, c := range s.Candidates {
		out[i] = c.Shortcut
	}
	return out
}

var smileys = map[string]string{
	":smile:": "😄",
	":smirk:": "😏",
}

func TestLifecycle_StartAndFilter(t *testing.T) {
	h := newHarness(t, smileys, Options{})

	assert.Empty(t, h.typeString("hi "))
	assert.False(t, h.m.Active())

	events := h.typeChar(":")
	require.Len(t, events, 1)
	assert.Equal(t, EventStarted, events[0].Type)
	s, ok := h.m.Session()
	require.True(t, ok)
	assert.Equal(t, ":", s.Prefix)
	assert.Equal(t, 3, s.TriggerIndex)
	assert.Equal(t, []string{":smile:", ":smirk:"}, shortcuts(s))

	h.typeString("sm")
	s, _ = h.m.Session()
	assert.Equal(t, ":sm", s.Prefix)
	assert.Equal(t, 3, s.PrefixLen)
	assert.Equal(t, []string{":smile:", ":smirk:"}, shortcuts(s))
	assert.Equal(t, 0, s.Selected)
}

func TestAccept_AfterNext(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	h.typeString("hi :sm")

	events := h.m.Next()
	require.Len(t, events, 1)
	assert.Equal(t, EventSelected, events[0].Type)
	assert.Equal(t, 1, events[0].Session.Selected)

	acc, events, ok := h.m.Accept()
	require.True(t, ok)
	assert.Equal(t, Candidate{Shortcut: ":smirk:", Replacement: "😏"}, acc.Candidate)
	assert.Equal(t, 3, acc.PrefixLen)
	require.Len(t, events, 1)
	assert.Equal(t, EventAccepted, events[0].Type)
	assert.False(t, h.m.Active())
}

func TestNavigation_Cyclic(t *testing.T) {
	h := newHarness(t, map[string]string{":a:": "1", ":b:": "2", ":c:": "3"}, Options{})
	h.typeChar(":")

	h.m.Previous()
	s, _ := h.m.Session()
	assert.Equal(t, 2, s.Selected)

	h.m.Next()
	s, _ = h.m.Session()
	assert.Equal(t, 0, s.Selected)
}

func TestNavigation_IdleNoop(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	assert.Nil(t, h.m.Next())
	assert.Nil(t, h.m.Previous())
	assert.Nil(t, h.m.Cancel())
	_, _, ok := h.m.Accept()
	assert.False(t, ok)
	assert.False(t, h.m.Active())
}

func TestRefresh_ResetsSelection(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	h.typeString(":s")
	h.m.Next()
	h.typeChar("m")

	s, _ := h.m.Session()
	assert.Equal(t, 0, s.Selected)
}

func TestCancel_Whitespace(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	h.typeString(":sm")

	events := h.typeChar(" ")
	require.Len(t, events, 1)
	assert.Equal(t, EventCancelled, events[0].Type)
	assert.Equal(t, ReasonWhitespace, events[0].Reason)
	assert.False(t, h.m.Active())

	// Further typing does not reopen the session without a new marker.
	assert.Empty(t, h.typeString("sm"))
}

func TestCancel_NoCandidates(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	h.typeString(":s")

	events := h.typeChar("x")
	require.Len(t, events, 1)
	assert.Equal(t, EventCancelled, events[0].Type)
	assert.Equal(t, ReasonNoCandidates, events[0].Reason)
}

func TestCancel_Explicit(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	h.typeChar(":")

	events := h.m.Cancel()
	require.Len(t, events, 1)
	assert.Equal(t, ReasonExplicit, events[0].Reason)
}

func TestBackspace_RefreshesAndCancels(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	h.typeString(":smx")
	assert.False(t, h.m.Active(), "x kills the run")

	h2 := newHarness(t, smileys, Options{})
	h2.typeString(":smi")

	events := h2.backspace()
	require.Len(t, events, 1)
	assert.Equal(t, EventUpdated, events[0].Type)
	assert.Equal(t, ":sm", events[0].Session.Prefix)

	h2.backspace()
	events = h2.backspace()
	require.Len(t, events, 1)
	assert.Equal(t, ":", events[0].Session.Prefix, "bare marker lists everything")

	events = h2.backspace()
	require.Len(t, events, 1)
	assert.Equal(t, EventCancelled, events[0].Type)
	assert.Equal(t, ReasonMarkerRemoved, events[0].Reason)
}

func TestReopen_AfterTypoBackspaced(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	h.typeString(":smx")
	require.False(t, h.m.Active())

	assert.Empty(t, h.backspace(), "backspace alone does not reopen")

	events := h.typeChar("i")
	require.Len(t, events, 1)
	assert.Equal(t, EventStarted, events[0].Type)

	s, ok := h.m.Session()
	require.True(t, ok)
	assert.Equal(t, 0, s.TriggerIndex)
	assert.Equal(t, ":smi", s.Prefix)
	assert.Equal(t, 4, s.PrefixLen)
	assert.Equal(t, []string{":smile:"}, shortcuts(s))
}

func TestReopen_Skipped(t *testing.T) {
	tests := []struct {
		name string
		run  func(h *harness)
	}{
		{"explicitly cancelled run", func(h *harness) {
			h.typeString(":sm")
			h.m.Cancel()
			h.typeChar("i")
		}},
		{"whitespace after marker", func(h *harness) {
			h.typeString(":s sm")
		}},
		{"still no candidates", func(h *harness) {
			h.typeString(":smx")
			h.typeChar("y")
		}},
		{"no marker", func(h *harness) {
			h.typeString("smile")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, smileys, Options{})
			tt.run(h)
			assert.False(t, h.m.Active())
		})
	}
}

func TestReopen_NewMarkerClearsDismissal(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	h.typeChar(":")
	h.m.Cancel()
	h.backspace()

	// The same logical index now holds a freshly typed marker.
	h.typeString(":sx")
	require.False(t, h.m.Active())
	h.backspace()
	h.typeChar("m")
	assert.True(t, h.m.Active())
}

func TestMarker_RestartsAfterDeadRun(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	h.typeString(":zz")
	assert.False(t, h.m.Active())

	h2 := newHarness(t, smileys, Options{})
	h2.typeString(":s")
	events := h2.typeChar(":")
	// ":s:" has no candidates, and the new marker opens a fresh session.
	require.Len(t, events, 2)
	assert.Equal(t, EventCancelled, events[0].Type)
	assert.Equal(t, EventStarted, events[1].Type)
	s, _ := h2.m.Session()
	assert.Equal(t, 2, s.TriggerIndex)
}

func TestLimit_CapsCandidates(t *testing.T) {
	mappings := make(map[string]string)
	for i := 0; i < 25; i++ {
		mappings[fmt.Sprintf(":e%02d:", i)] = "x"
	}
	h := newHarness(t, mappings, Options{})

	h.typeChar(":")
	s, _ := h.m.Session()
	assert.Len(t, s.Candidates, DefaultLimit)
	assert.Equal(t, ":e00:", s.Candidates[0].Shortcut)

	h.typeString("e1")
	s, _ = h.m.Session()
	assert.Len(t, s.Candidates, 10)

	h3 := newHarness(t, mappings, Options{Limit: 3})
	h3.typeChar(":")
	s, _ = h3.m.Session()
	assert.Len(t, s.Candidates, 3)
}

func TestCustomMarker(t *testing.T) {
	h := newHarness(t, map[string]string{";wave": "👋"}, Options{Marker: ";"})
	assert.Empty(t, h.typeChar(":"))
	events := h.typeChar(";")
	require.Len(t, events, 1)
	assert.Equal(t, EventStarted, events[0].Type)
}

func TestComplete_UniqueExactShortcut(t *testing.T) {
	h := newHarness(t, map[string]string{":)": "🙂"}, Options{})
	h.typeChar(":")
	require.True(t, h.m.Active())

	h.buf.Append(")")
	acc, events, ok := h.m.Complete(h.buf)
	require.True(t, ok)
	assert.Equal(t, Candidate{Shortcut: ":)", Replacement: "🙂"}, acc.Candidate)
	assert.Equal(t, 2, acc.PrefixLen)
	require.Len(t, events, 1)
	assert.Equal(t, EventCompleted, events[0].Type)
	assert.False(t, h.m.Active())
}

func TestComplete_AmbiguousKeepsSession(t *testing.T) {
	h := newHarness(t, map[string]string{":)": "🙂", ":))": "😄"}, Options{})
	h.typeChar(":")
	h.buf.Append(")")

	_, _, ok := h.m.Complete(h.buf)
	assert.False(t, ok)
	assert.True(t, h.m.Active())
}

func TestEvictedMarkerCancels(t *testing.T) {
	h := &harness{
		t:   t,
		buf: buffer.New(3),
		m:   New(registry.MustFromMap(map[string]string{":abcdef:": "x"}), Options{}),
	}
	h.typeString(":ab")
	require.True(t, h.m.Active())

	events := h.typeChar("c")
	require.Len(t, events, 1)
	assert.Equal(t, ReasonMarkerRemoved, events[0].Reason)
}

func TestSessionSnapshotIsolated(t *testing.T) {
	h := newHarness(t, smileys, Options{})
	h.typeChar(":")

	s, _ := h.m.Session()
	s.Candidates[0].Shortcut = "mutated"

	s2, _ := h.m.Session()
	assert.Equal(t, ":smile:", s2.Candidates[0].Shortcut)
}

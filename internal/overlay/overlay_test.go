package overlay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emojid/internal/autocomplete"
	"emojid/internal/logging"
)

var cands = []autocomplete.Candidate{
	{Shortcut: ":smile:", Replacement: "😄"},
	{Shortcut: ":smirk:", Replacement: "😏"},
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"log", BackendLog, false},
		{"NOTIFY", BackendNotify, false},
		{" none ", BackendNone, false},
		{"", BackendLog, false},
		{"window", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	o, err := New(BackendNone, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, Nop{}, o)

	o, err = New(BackendLog, logging.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Log{}, o)

	_, err = New("bogus", logging.Nop())
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "😄 :smile:  [😏 :smirk:]", Render(cands, 1))
	assert.Equal(t, "", Render(nil, 0))
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Show(cands, 0)
	r.Hide()

	ups := r.Updates()
	require.Len(t, ups, 2)
	assert.True(t, ups[0].Visible)
	assert.Equal(t, cands, ups[0].Candidates)
	assert.Equal(t, 1, r.Hides())

	last, ok := r.Last()
	require.True(t, ok)
	assert.False(t, last.Visible)
}

// slowOverlay blocks in Show until released.
type slowOverlay struct {
	*Recorder
	release chan struct{}
	once    sync.Once
	entered chan struct{}
}

func (s *slowOverlay) Show(c []autocomplete.Candidate, sel int) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	s.Recorder.Show(c, sel)
}

func TestAsyncNeverBlocks(t *testing.T) {
	slow := &slowOverlay{Recorder: NewRecorder(), release: make(chan struct{}), entered: make(chan struct{})}
	a := NewAsync(slow)

	a.Show(cands, 0)
	<-slow.entered

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			a.Show(cands, i%2)
		}
		a.Hide()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Async blocked on a slow overlay")
	}

	close(slow.release)
	a.Close()

	ups := slow.Updates()
	assert.Less(t, len(ups), 10, "intermediate updates should be coalesced")
	last, _ := slow.Last()
	assert.False(t, last.Visible, "latest state wins")
}

func TestAsyncCopiesCandidates(t *testing.T) {
	r := NewRecorder()
	a := NewAsync(r)

	local := append([]autocomplete.Candidate(nil), cands...)
	a.Show(local, 0)
	local[0].Replacement = "changed"
	a.Close()

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, "😄", last.Candidates[0].Replacement)
}

func TestAsyncCloseIdempotent(t *testing.T) {
	r := NewRecorder()
	a := NewAsync(r)
	a.Close()
	a.Close()
	a.Show(cands, 0)
	assert.Empty(t, r.Updates())
}

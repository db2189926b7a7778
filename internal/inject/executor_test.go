package inject

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emojid/internal/buffer"
	"emojid/internal/logging"
	"emojid/internal/planner"
)

func plan(tokenLen int, token, replacement string) planner.Plan {
	b := buffer.New(50)
	b.AppendText(token)
	return planner.Substitute(b, tokenLen, replacement)
}

func TestExecutorRunsPlansInOrder(t *testing.T) {
	rec := NewRecorder()
	rec.Delay = time.Millisecond
	e := NewExecutor(rec, ExecutorOptions{Logger: logging.Nop()})

	require.True(t, e.Submit(plan(3, ":sm", "😏")))
	require.True(t, e.Submit(plan(2, ":)", "😊")))
	require.NoError(t, e.Close())

	assert.Equal(t, []Op{
		{Delete: 3}, {Insert: "😏"},
		{Delete: 2}, {Insert: "😊"},
	}, rec.Ops())
	assert.Equal(t, uint64(2), e.Stats().Executed)
}

func TestExecutorErrorAbandonsPlan(t *testing.T) {
	rec := NewRecorder()
	rec.Fail = errors.New("no permission")

	var mu sync.Mutex
	var failed []planner.Action
	e := NewExecutor(rec, ExecutorOptions{
		Logger: logging.Nop(),
		OnError: func(a planner.Action, err error) {
			mu.Lock()
			failed = append(failed, a)
			mu.Unlock()
		},
	})

	e.Submit(plan(3, ":sm", "😏"))
	require.NoError(t, e.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1, "insert is skipped after a failed delete")
	assert.Equal(t, planner.DeleteBackward, failed[0].Kind)
	assert.Equal(t, uint64(1), e.Stats().Failed)
}

func TestExecutorSubmitAfterClose(t *testing.T) {
	e := NewExecutor(NewRecorder(), ExecutorOptions{Logger: logging.Nop()})
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.False(t, e.Submit(plan(1, "x", "y")))
}

func TestExecutorEmptyPlan(t *testing.T) {
	rec := NewRecorder()
	e := NewExecutor(rec, ExecutorOptions{Logger: logging.Nop()})
	assert.True(t, e.Submit(planner.Plan{}))
	require.NoError(t, e.Close())
	assert.Empty(t, rec.Ops())
}

func TestExecutorQueueFull(t *testing.T) {
	rec := NewRecorder()
	rec.Delay = 20 * time.Millisecond
	e := NewExecutor(rec, ExecutorOptions{Logger: logging.Nop(), QueueSize: 1})

	accepted := 0
	for i := 0; i < 5; i++ {
		if e.Submit(plan(1, "x", "y")) {
			accepted++
		}
	}
	require.NoError(t, e.Close())

	assert.Less(t, accepted, 5)
	assert.Equal(t, uint64(5-accepted), e.Stats().Dropped)
}

type closingRecorder struct {
	*Recorder
	closed bool
}

func (c *closingRecorder) Close() error {
	c.closed = true
	return nil
}

func TestExecutorClosesInjector(t *testing.T) {
	inj := &closingRecorder{Recorder: NewRecorder()}
	e := NewExecutor(inj, ExecutorOptions{Logger: logging.Nop()})
	require.NoError(t, e.Close())
	assert.True(t, inj.closed)
}

func TestExecutorOnDone(t *testing.T) {
	done := make(chan planner.Plan, 1)
	e := NewExecutor(NewRecorder(), ExecutorOptions{
		Logger: logging.Nop(),
		OnDone: func(p planner.Plan) { done <- p },
	})
	defer e.Close()

	e.Submit(plan(2, ":)", "😊"))
	select {
	case p := <-done:
		assert.Equal(t, 2, p.DeleteCount())
	case <-time.After(time.Second):
		t.Fatal("plan did not complete")
	}
}

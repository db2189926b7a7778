package inject

import (
	"sync"
	"sync/atomic"

	"emojid/internal/logging"
	"emojid/internal/planner"
)

// DefaultExecutorQueue is the number of plans that may wait for execution.
const DefaultExecutorQueue = 64

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Logger    *logging.Logger
	QueueSize int

	// OnError is called on the executor goroutine for every failed action.
	OnError func(planner.Action, error)

	// OnDone is called after each plan finished, successfully or not.
	OnDone func(planner.Plan)
}

// Executor runs plans against an Injector on its own goroutine, one plan
// at a time in submission order. A plan is never interrupted once started;
// a failed action abandons the rest of that plan only.
type Executor struct {
	inj    Injector
	logger *logging.Logger
	opts   ExecutorOptions

	mu     sync.Mutex
	closed bool
	queue  chan planner.Plan
	done   chan struct{}

	executed atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// NewExecutor starts an executor for inj.
func NewExecutor(inj Injector, opts ExecutorOptions) *Executor {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultExecutorQueue
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	e := &Executor{
		inj:    inj,
		logger: opts.Logger.WithComponent("inject"),
		opts:   opts,
		queue:  make(chan planner.Plan, opts.QueueSize),
		done:   make(chan struct{}),
	}
	go e.loop()
	return e
}

// Submit enqueues p. It never blocks: it returns false when the executor
// is closed or its queue is full.
func (e *Executor) Submit(p planner.Plan) bool {
	if p.Empty() {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	select {
	case e.queue <- p:
		return true
	default:
		e.dropped.Add(1)
		e.logger.Warn("injection queue full, plan dropped", "actions", len(p.Actions))
		return false
	}
}

func (e *Executor) loop() {
	defer close(e.done)
	for p := range e.queue {
		e.run(p)
	}
}

func (e *Executor) run(p planner.Plan) {
	defer func() {
		if e.opts.OnDone != nil {
			e.opts.OnDone(p)
		}
	}()

	for _, a := range p.Actions {
		var err error
		switch a.Kind {
		case planner.DeleteBackward:
			err = e.inj.DeleteBackward(a.Count)
		case planner.InsertText:
			err = e.inj.InsertText(a.Text)
		}
		if err != nil {
			e.failed.Add(1)
			e.logger.Error("injection failed", "action", a.String(), "error", err)
			if e.opts.OnError != nil {
				e.opts.OnError(a, err)
			}
			return
		}
	}
	e.executed.Add(1)
}

// Close stops accepting plans, waits for queued plans to finish and closes
// the injector if it holds resources. Close is idempotent.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	<-e.done
	if c, ok := e.inj.(Closer); ok {
		return c.Close()
	}
	return nil
}

// ExecutorStats counts plan outcomes.
type ExecutorStats struct {
	Executed uint64
	Failed   uint64
	Dropped  uint64
}

// Stats returns plan counters.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Executed: e.executed.Load(),
		Failed:   e.failed.Load(),
		Dropped:  e.dropped.Load(),
	}
}

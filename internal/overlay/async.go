package overlay

import (
	"sync"

	"emojid/internal/autocomplete"
)

// Async forwards updates to an Overlay on its own goroutine. Show and Hide
// never block; when updates arrive faster than the overlay renders, only
// the latest one is delivered.
type Async struct {
	target Overlay

	mu      sync.Mutex
	pending *Update
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewAsync starts forwarding to target.
func NewAsync(target Overlay) *Async {
	a := &Async{
		target: target,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) Show(candidates []autocomplete.Candidate, selected int) {
	a.post(Update{
		Visible:    true,
		Candidates: append([]autocomplete.Candidate(nil), candidates...),
		Selected:   selected,
	})
}

func (a *Async) Hide() {
	a.post(Update{})
}

func (a *Async) post(u Update) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.pending = &u
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Async) loop() {
	defer close(a.done)
	for range a.wake {
		a.mu.Lock()
		u := a.pending
		a.pending = nil
		a.mu.Unlock()

		if u == nil {
			continue
		}
		if u.Visible {
			a.target.Show(u.Candidates, u.Selected)
		} else {
			a.target.Hide()
		}
	}
}

// Close delivers the pending update, if any, and stops the goroutine.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	close(a.wake)
	a.mu.Unlock()
	<-a.done

	a.mu.Lock()
	u := a.pending
	a.pending = nil
	a.mu.Unlock()
	if u != nil {
		if u.Visible {
			a.target.Show(u.Candidates, u.Selected)
		} else {
			a.target.Hide()
		}
	}
	if c, ok := a.target.(interface{ Close() error }); ok {
		c.Close()
	}
}

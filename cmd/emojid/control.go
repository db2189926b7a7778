package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"emojid/internal/engine"
	"emojid/internal/health"
	"emojid/internal/ipc"
	"emojid/internal/metrics"
)

// daemonControl exposes the running engine on the control socket.
type daemonControl struct {
	eng       *engine.Engine
	metrics   *metrics.EngineMetrics
	health    *health.Checker
	shortcuts int
	started   time.Time
}

func (d *daemonControl) Status() (*ipc.StatusResponse, error) {
	st := &ipc.StatusResponse{
		Version:   version,
		PID:       os.Getpid(),
		StartedAt: d.started,
		Uptime:    time.Since(d.started).Round(time.Second),
		Running:   d.eng.IsRunning(),
		Enabled:   d.eng.Enabled(),
		Shortcuts: d.shortcuts,
		Metrics:   d.metrics.Snapshot(),
	}

	if d.health != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		report := d.health.Report(ctx)
		cancel()
		st.Health = string(report.Status)
		for _, name := range d.health.Names() {
			if r := report.Components[name]; r.Status != health.StatusHealthy {
				st.Problems = append(st.Problems, fmt.Sprintf("%s: %s", name, r.Message))
			}
		}
	}

	if s, ok, err := d.eng.Session(); err == nil && ok {
		st.SessionActive = true
		st.Candidates = len(s.Candidates)
	}

	bs := d.eng.Bindings()
	st.Bindings = map[string]string{
		"accept":         bs.Accept.String(),
		"accept_alt":     bs.AcceptAlt.String(),
		"next":           bs.Next.String(),
		"previous":       bs.Previous.String(),
		"toggle_popover": bs.TogglePopover.String(),
		"toggle_service": bs.ToggleService.String(),
	}
	return st, nil
}

func (d *daemonControl) SetEnabled(enabled *bool) (bool, error) {
	if enabled == nil {
		return d.eng.Toggle(), nil
	}
	d.eng.SetEnabled(*enabled)
	return *enabled, nil
}

// forwardEvents relays engine events to control socket subscribers until
// the engine closes its channel or ctx ends.
func forwardEvents(ctx context.Context, events <-chan engine.Event, srv *ipc.Server) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			srv.Broadcast(toWire(ev))
		}
	}
}

// toWire converts an engine event. The session prefix is typed text and is
// never sent.
func toWire(ev engine.Event) *ipc.Event {
	out := &ipc.Event{
		Type:       ev.Type.String(),
		Timestamp:  ev.Time,
		Candidates: len(ev.Session.Candidates),
	}
	switch ev.Type {
	case engine.EventMatched:
		out.Shortcut = ev.Shortcut
		out.Replacement = ev.Replacement
		out.Source = string(ev.Source)
	case engine.EventCancelled:
		out.Reason = ev.Reason.String()
	case engine.EventToggled:
		enabled := ev.Enabled
		out.Enabled = &enabled
	}
	return out
}

package metrics

import (
	"time"
)

// EngineMetrics holds the counters the expansion engine updates.
type EngineMetrics struct {
	EventsTotal          *Counter
	CharactersTotal      *Counter
	MatchesTotal         *Counter
	AcceptsTotal         *Counter
	CompletesTotal       *Counter
	CancelsTotal         *Counter
	SessionsTotal        *Counter
	InjectionErrorsTotal *Counter

	Running       *Gauge
	HookDropped   *Gauge
	SessionActive *Gauge
	UptimeSeconds *Gauge

	DispatchDuration *Histogram

	started time.Time
}

// NewEngineMetrics registers the engine metrics on registry.
func NewEngineMetrics(registry *Registry) *EngineMetrics {
	return &EngineMetrics{
		EventsTotal: registry.RegisterCounter(
			"events_total",
			"Key events delivered by the hook",
			nil,
		),
		CharactersTotal: registry.RegisterCounter(
			"characters_total",
			"Printable characters appended to the buffer",
			nil,
		),
		MatchesTotal: registry.RegisterCounter(
			"matches_total",
			"Exact shortcut matches expanded without a popover",
			nil,
		),
		AcceptsTotal: registry.RegisterCounter(
			"accepts_total",
			"Candidates accepted from the popover",
			nil,
		),
		CompletesTotal: registry.RegisterCounter(
			"completes_total",
			"Sessions closed by typing a full shortcut",
			nil,
		),
		CancelsTotal: registry.RegisterCounter(
			"cancels_total",
			"Sessions cancelled without an expansion",
			nil,
		),
		SessionsTotal: registry.RegisterCounter(
			"sessions_total",
			"Completion sessions opened",
			nil,
		),
		InjectionErrorsTotal: registry.RegisterCounter(
			"injection_errors_total",
			"Delete or insert actions that failed",
			nil,
		),

		Running: registry.RegisterGauge(
			"running",
			"1 while the engine is listening",
			nil,
		),
		HookDropped: registry.RegisterGauge(
			"hook_dropped_events",
			"Key events the hook dropped because the engine queue was full",
			nil,
		),
		SessionActive: registry.RegisterGauge(
			"session_active",
			"1 while a completion session is open",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Seconds since the engine started",
			nil,
		),

		DispatchDuration: registry.RegisterHistogram(
			"dispatch_seconds",
			"Time spent deciding a single key event",
			nil,
			LatencyBuckets,
		),
	}
}

// Started marks the engine as listening.
func (m *EngineMetrics) Started() {
	m.started = time.Now()
	m.Running.Set(1)
}

// Stopped marks the engine as idle.
func (m *EngineMetrics) Stopped() {
	m.Running.Set(0)
	m.SessionActive.Set(0)
}

// SessionOpened records a new completion session.
func (m *EngineMetrics) SessionOpened() {
	m.SessionsTotal.Inc()
	m.SessionActive.Set(1)
}

// SessionClosed records the end of a session and how it ended.
func (m *EngineMetrics) SessionClosed(reason string) {
	m.SessionActive.Set(0)
	switch reason {
	case "accept":
		m.AcceptsTotal.Inc()
	case "complete":
		m.CompletesTotal.Inc()
	default:
		m.CancelsTotal.Inc()
	}
}

// UpdateUptime refreshes the uptime gauge.
func (m *EngineMetrics) UpdateUptime() {
	if m.started.IsZero() {
		m.UptimeSeconds.Set(0)
		return
	}
	m.UptimeSeconds.Set(int64(time.Since(m.started).Seconds()))
}

// Snapshot returns the headline numbers for status output.
func (m *EngineMetrics) Snapshot() map[string]interface{} {
	m.UpdateUptime()
	return map[string]interface{}{
		"events_total":           m.EventsTotal.Value(),
		"characters_total":       m.CharactersTotal.Value(),
		"matches_total":          m.MatchesTotal.Value(),
		"accepts_total":          m.AcceptsTotal.Value(),
		"completes_total":        m.CompletesTotal.Value(),
		"cancels_total":          m.CancelsTotal.Value(),
		"sessions_total":         m.SessionsTotal.Value(),
		"injection_errors_total": m.InjectionErrorsTotal.Value(),
		"hook_dropped_events":    m.HookDropped.Value(),
		"running":                m.Running.Value(),
		"uptime_seconds":         m.UptimeSeconds.Value(),
		"dispatch_avg_seconds":   m.DispatchDuration.Mean(),
	}
}

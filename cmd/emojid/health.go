package main

import (
	"context"
	"fmt"

	"emojid/internal/config"
	"emojid/internal/engine"
	"emojid/internal/health"
	"emojid/internal/inject"
	"emojid/internal/ipc"
	"emojid/internal/keystroke"
	"emojid/internal/metrics"
	"emojid/internal/overlay"
	"emojid/internal/store"
)

// daemonChecks registers the health checks of a running daemon. db and
// socketPath are optional.
func daemonChecks(eng *engine.Engine, db *store.Store, socketPath string) *health.Checker {
	c := health.NewChecker()

	c.RegisterFunc("key_capture", true, func(ctx context.Context) health.CheckResult {
		if eng.IsRunning() {
			return health.CheckResult{Status: health.StatusHealthy, Message: "listening"}
		}
		return health.CheckResult{Status: health.StatusUnhealthy, Message: "waiting for permission"}
	})

	c.RegisterFunc("hook_queue", false, func(ctx context.Context) health.CheckResult {
		hs, _ := eng.Stats()
		r := health.CheckResult{
			Status:  health.StatusHealthy,
			Message: fmt.Sprintf("%d events delivered", hs.Delivered),
			Details: map[string]any{"dropped": hs.Dropped, "timed_out": hs.TimedOut, "disabled": hs.Disabled},
		}
		if hs.Dropped > 0 || hs.TimedOut > 0 {
			r.Status = health.StatusDegraded
			r.Message = fmt.Sprintf("%d dropped, %d late decisions", hs.Dropped, hs.TimedOut)
		}
		if hs.Disabled > 0 {
			r.Status = health.StatusDegraded
			r.Message = fmt.Sprintf("disabled by the system %d times", hs.Disabled)
		}
		return r
	})

	c.RegisterFunc("injection", false, func(ctx context.Context) health.CheckResult {
		_, xs := eng.Stats()
		r := health.CheckResult{
			Status:  health.StatusHealthy,
			Message: fmt.Sprintf("%d plans executed", xs.Executed),
			Details: map[string]any{"failed": xs.Failed, "dropped": xs.Dropped},
		}
		if xs.Failed > 0 || xs.Dropped > 0 {
			r.Status = health.StatusDegraded
			r.Message = fmt.Sprintf("%d failed, %d dropped", xs.Failed, xs.Dropped)
		}
		return r
	})

	if db != nil {
		c.RegisterFunc("history", false, health.PingCheck(db.Ping))
	}

	if socketPath != "" {
		c.RegisterFunc("control_socket", false, health.CustomCheck(func() (string, error) {
			if !ipc.IsSocketListening(socketPath) {
				return socketPath, fmt.Errorf("not accepting connections")
			}
			return socketPath, nil
		}))
	}

	return c
}

// healthRoutes exposes c on the metrics listener.
func healthRoutes(c *health.Checker) []metrics.Route {
	return []metrics.Route{
		{Pattern: "/healthz", Handler: c.HealthHandler()},
		{Pattern: "/readyz", Handler: c.ReadinessHandler()},
	}
}

// preflightChecks reports whether this machine can run the daemon. Missing
// permission, hook or injector make it unhealthy; the rest is informational.
func preflightChecks(cfg *config.Config, gate keystroke.Gate) *health.Checker {
	c := health.NewChecker()

	c.RegisterFunc("permission", true, func(ctx context.Context) health.CheckResult {
		if gate.IsTrusted() {
			return health.CheckResult{Status: health.StatusHealthy, Message: "granted"}
		}
		return health.CheckResult{Status: health.StatusUnhealthy, Message: "missing; run 'emojid check -request'"}
	})

	c.RegisterFunc("keyboard_hook", true, func(ctx context.Context) health.CheckResult {
		if ok, reason := keystroke.New(keystroke.Config{}).Available(); !ok {
			return health.CheckResult{Status: health.StatusUnhealthy, Message: reason}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: "available"}
	})

	c.RegisterFunc("injection", true, health.CustomCheck(func() (string, error) {
		inj, err := inject.New(inject.Config{SettleDelay: cfg.Engine.SettleDelay()})
		if err != nil {
			return "unavailable", err
		}
		if cl, ok := inj.(inject.Closer); ok {
			cl.Close()
		}
		return "available", nil
	}))

	c.RegisterFunc("registry", true, health.CustomCheck(func() (string, error) {
		reg, err := loadRegistry(cfg)
		if err != nil {
			return "invalid", err
		}
		return fmt.Sprintf("%d shortcuts", reg.Len()), nil
	}))

	c.RegisterFunc("overlay", false, func(ctx context.Context) health.CheckResult {
		if _, err := overlay.ParseBackend(cfg.Overlay.Backend); err != nil {
			return health.CheckResult{Status: health.StatusUnhealthy, Message: cfg.Overlay.Backend, Error: err.Error()}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: cfg.Overlay.Backend}
	})

	c.RegisterFunc("history", false, func(ctx context.Context) health.CheckResult {
		if !cfg.History.Enabled {
			return health.CheckResult{Status: health.StatusHealthy, Message: "disabled"}
		}
		db, err := store.Open(cfg.History.Path)
		if err != nil {
			return health.CheckResult{Status: health.StatusUnhealthy, Message: cfg.History.Path, Error: err.Error()}
		}
		defer db.Close()
		r := health.PingCheck(db.Ping)(ctx)
		r.Message = cfg.History.Path
		return r
	})

	c.RegisterFunc("daemon", false, func(ctx context.Context) health.CheckResult {
		if cfg.Control.Enabled && ipc.IsSocketListening(cfg.Control.SocketPath) {
			return health.CheckResult{Status: health.StatusHealthy, Message: "running"}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: "not running"}
	})

	return c
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emojid/internal/config"
	"emojid/internal/engine"
	"emojid/internal/inject"
	"emojid/internal/ipc"
	"emojid/internal/keystroke"
	"emojid/internal/logging"
	"emojid/internal/matcher"
	"emojid/internal/metrics"
	"emojid/internal/overlay"
	"emojid/internal/store"
)

func cmdRun(args []string) {
	fs, cfgPath := newFlagSet("run")
	debug := fs.Bool("debug", false, "log at debug level to stderr")
	fs.Parse(args)

	cfg, loader := loadConfig(*cfgPath)
	defer loader.Close()
	if *debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Output = "stderr"
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fatalf("%v", err)
	}

	logger := newLogger(cfg)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, loader, logger); err != nil {
		logger.Error("emojid stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, loader *config.Loader, logger *logging.Logger) error {
	reg, err := loadRegistry(cfg)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	policy, err := matcher.ParsePolicy(cfg.Engine.MatchPolicy)
	if err != nil {
		return err
	}
	logger.Info("registry loaded", "shortcuts", reg.Len(), "policy", policy.String())

	hook := keystroke.New(keystroke.Config{
		QueueSize:       cfg.Engine.EventQueueSize,
		DecisionTimeout: cfg.Engine.DecisionTimeout(),
	})
	if ok, reason := hook.Available(); !ok {
		logger.Warn("key capture not ready", "reason", reason)
	}

	inj, err := inject.New(inject.Config{
		SettleDelay: cfg.Engine.SettleDelay(),
		Logger:      logger.WithComponent("inject"),
	})
	if err != nil {
		return fmt.Errorf("injector: %w", err)
	}

	backend, err := overlay.ParseBackend(cfg.Overlay.Backend)
	if err != nil {
		return err
	}
	ov, err := overlay.New(backend, logger.WithComponent("overlay"))
	if err != nil {
		logger.Warn("overlay unavailable, falling back to log", "backend", backend, "error", err)
		ov = overlay.NewLog(logger.WithComponent("overlay"))
	}

	var (
		history engine.History
		db      *store.Store
	)
	if cfg.History.Enabled {
		db, err = store.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		defer db.Close()
		if n, err := db.PruneRetention(ctx, cfg.History.RetentionDays); err != nil {
			logger.Warn("history prune failed", "error", err)
		} else if n > 0 {
			logger.Info("history pruned", "removed", n, "retention_days", cfg.History.RetentionDays)
		}
		history = db
	}

	em := metrics.NewEngineMetrics(metrics.Default())

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		CrashDir:  crashDir(cfg),
		Version:   version,
		Component: "engine",
		Logger:    logger,
	})
	reviewCrashReports(crash, crashRetention, logger)

	gate := keystroke.NewGate()

	eng, err := engine.New(engine.Options{
		Registry:       reg,
		Policy:         policy,
		Marker:         cfg.Engine.Marker,
		CandidateLimit: cfg.Engine.CandidateLimit,
		BufferCapacity: cfg.Engine.BufferCapacity,
		Bindings:       cfg.Keybindings,
		Hook:           hook,
		Gate:           gate,
		Injector:       inj,
		Overlay:        ov,
		History:        history,
		Metrics:        em,
		Crash:          crash,
		Logger:         logger.WithComponent("engine"),
		OnTogglePopover: func() {
			logger.Info("popover toggled")
		},
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	var socketPath string
	if cfg.Control.Enabled {
		socketPath = cfg.Control.SocketPath
	}
	checker := daemonChecks(eng, db, socketPath)

	if cfg.Control.Enabled {
		srv := ipc.NewServer(ipc.ServerConfig{
			SocketPath: socketPath,
			Logger:     logger,
		}, ipc.NewControlHandler(&daemonControl{
			eng:       eng,
			metrics:   em,
			health:    checker,
			shortcuts: reg.Len(),
			started:   time.Now(),
		}))
		if err := srv.Start(); err != nil {
			return fmt.Errorf("control socket: %w", err)
		}
		defer srv.Stop()
		go forwardEvents(ctx, eng.Subscribe(), srv)
	}

	if cfg.Metrics.Enabled {
		addr, serveErr, err := metrics.Serve(ctx, cfg.Metrics.ListenAddr, metrics.Default(), healthRoutes(checker)...)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		logger.Info("metrics listening", "addr", addr.String())
		go func() {
			if err := <-serveErr; err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	loader.OnChange(func(c *config.Config) {
		if err := eng.UpdateBindings(c.Keybindings); err != nil {
			logger.Warn("keybindings not applied", "error", err)
			return
		}
		logger.Info("keybindings reloaded")
		if c.Engine != cfg.Engine || c.Registry != cfg.Registry || c.Overlay != cfg.Overlay {
			logger.Info("engine, registry and overlay changes apply after a restart")
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload disabled", "error", err)
	} else {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case err := <-loader.Errors():
					logger.Warn("config reload failed", "error", err)
				}
			}
		}()
	}

	if err := startWhenPermitted(ctx, eng, gate, cfg.Engine.PermissionPoll(), logger); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	checker.SetReady(true)
	logger.Info("emojid running", "version", version, "overlay", backend)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return eng.Close()
		case <-ticker.C:
			em.UpdateUptime()
		}
	}
}

// startWhenPermitted starts eng, waiting for key capture permission if it
// is missing. The first Start asks for permission; after that the gate is
// only polled so the user is prompted once.
func startWhenPermitted(ctx context.Context, eng *engine.Engine, gate keystroke.Gate, poll time.Duration, logger *logging.Logger) error {
	err := eng.Start(ctx)
	if !errors.Is(err, keystroke.ErrPermissionDenied) {
		return err
	}
	logger.Warn("waiting for key capture permission", "poll", poll)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !gate.IsTrusted() {
				continue
			}
			logger.Info("key capture permission granted")
			return eng.Start(ctx)
		}
	}
}

// crashRetention is how long crash reports are kept.
const crashRetention = 30 * 24 * time.Hour

// reviewCrashReports drops crash reports older than maxAge and logs the
// rest. It returns the number of reports kept.
func reviewCrashReports(crash *logging.CrashHandler, maxAge time.Duration, logger *logging.Logger) int {
	if err := crash.CleanupOldCrashReports(maxAge); err != nil {
		logger.Warn("crash report cleanup failed", "error", err)
	}
	reports, err := crash.GetCrashReports()
	if err != nil {
		logger.Warn("reading crash reports failed", "error", err)
		return 0
	}
	for _, r := range reports {
		logger.Warn("previous crash", "time", r.Timestamp, "component", r.Component, "panic", r.PanicValue)
	}
	return len(reports)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"emojid/internal/autocomplete"
	"emojid/internal/config"
	"emojid/internal/engine"
	"emojid/internal/health"
	"emojid/internal/inject"
	"emojid/internal/keystroke"
	"emojid/internal/logging"
	"emojid/internal/registry"
	"emojid/internal/store"
)

func writeTable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.toml")
	data := "[shortcuts]\n\":smile:\" = \"🙃\"\n\":tada:\" = \"🎉\"\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write table: %v", err)
	}
	return path
}

func TestLoadRegistryBuiltin(t *testing.T) {
	cfg := config.DefaultConfig()
	reg, err := loadRegistry(cfg)
	if err != nil {
		t.Fatalf("loadRegistry: %v", err)
	}
	if reg.Len() != registry.Default().Len() {
		t.Errorf("got %d shortcuts, want the built-in %d", reg.Len(), registry.Default().Len())
	}
}

func TestLoadRegistryMerged(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Registry.Path = writeTable(t)

	reg, err := loadRegistry(cfg)
	if err != nil {
		t.Fatalf("loadRegistry: %v", err)
	}
	if got, _ := reg.Lookup(":smile:"); got != "🙃" {
		t.Errorf(":smile: = %q, want the user entry", got)
	}
	if _, ok := reg.Lookup(":)"); !ok {
		t.Error("built-in :) missing from merged table")
	}
}

func TestLoadRegistryUserOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Registry.Path = writeTable(t)
	cfg.Registry.IncludeBuiltin = false

	reg, err := loadRegistry(cfg)
	if err != nil {
		t.Fatalf("loadRegistry: %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("got %d shortcuts, want 2", reg.Len())
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Registry.Path = filepath.Join(t.TempDir(), "absent.toml")
	if _, err := loadRegistry(cfg); err == nil {
		t.Error("expected an error for a missing table")
	}
}

func newTestEngine(t *testing.T, gate keystroke.Gate) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.Options{
		Registry: registry.MustFromMap(map[string]string{":)": "🙂"}),
		Hook:     keystroke.NewSimulated(keystroke.Config{}),
		Gate:     gate,
		Injector: inject.NewRecorder(),
		Logger:   logging.Nop(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestStartWhenPermittedWaitsForGrant(t *testing.T) {
	gate := keystroke.NewSimulatedGate(false)
	eng := newTestEngine(t, gate)

	// Several poll intervals pass before the user grants access.
	grant := time.AfterFunc(80*time.Millisecond, func() { gate.SetTrusted(true) })
	defer grant.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := startWhenPermitted(ctx, eng, gate, 10*time.Millisecond, logging.Nop()); err != nil {
		t.Fatalf("startWhenPermitted: %v", err)
	}
	if !eng.IsRunning() {
		t.Error("engine not running after permission was granted")
	}
	if got := gate.Requests(); got != 1 {
		t.Errorf("permission requested %d times, want 1", got)
	}
}

func TestStartWhenPermittedCancelled(t *testing.T) {
	gate := keystroke.NewSimulatedGate(false)
	eng := newTestEngine(t, gate)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := startWhenPermitted(ctx, eng, gate, 10*time.Millisecond, logging.Nop())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if eng.IsRunning() {
		t.Error("engine started without permission")
	}
	if got := gate.Requests(); got != 1 {
		t.Errorf("permission requested %d times while waiting, want 1", got)
	}
}

func TestReviewCrashReports(t *testing.T) {
	dir := t.TempDir()
	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		CrashDir: dir,
		Logger:   logging.Nop(),
	})
	crash.Recover(nil, func() { panic("first") })
	crash.Recover(nil, func() { panic("second") })

	files, err := filepath.Glob(filepath.Join(dir, "crash-*.json"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no crash dumps written: %v", err)
	}
	if n := reviewCrashReports(crash, time.Hour, logging.Nop()); n != len(files) {
		t.Errorf("kept %d reports, want %d", n, len(files))
	}

	old := time.Now().Add(-48 * time.Hour)
	for _, f := range files {
		if err := os.Chtimes(f, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if n := reviewCrashReports(crash, time.Hour, logging.Nop()); n != 0 {
		t.Errorf("kept %d expired reports", n)
	}
}

func TestDaemonChecksFollowEngine(t *testing.T) {
	eng := newTestEngine(t, keystroke.NewSimulatedGate(true))
	c := daemonChecks(eng, nil, "")

	if got := c.Names(); len(got) != 3 {
		t.Fatalf("registered %v, want key_capture, hook_queue and injection", got)
	}

	c.Check(context.Background())
	if got := c.OverallStatus(); got != health.StatusUnhealthy {
		t.Errorf("stopped engine reported %s", got)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Check(context.Background())
	if got := c.OverallStatus(); got != health.StatusHealthy {
		t.Errorf("running engine reported %s: %+v", got, c.Results())
	}
}

func TestDaemonChecksReportDisabledHook(t *testing.T) {
	hook := keystroke.NewSimulated(keystroke.Config{})
	eng, err := engine.New(engine.Options{
		Registry: registry.MustFromMap(map[string]string{":)": "🙂"}),
		Hook:     hook,
		Gate:     keystroke.NewSimulatedGate(true),
		Injector: inject.NewRecorder(),
		Logger:   logging.Nop(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	hook.Disable()
	results := daemonChecks(eng, nil, "").Check(context.Background())

	r := results["hook_queue"]
	if r.Status != health.StatusDegraded {
		t.Errorf("hook_queue = %s, want degraded", r.Status)
	}
	if r.Details["disabled"] != uint64(1) {
		t.Errorf("disabled detail = %v", r.Details["disabled"])
	}
}

func TestPreflightChecksInvalidRegistry(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Registry.Path = filepath.Join(t.TempDir(), "absent.toml")
	cfg.History.Enabled = false

	c := preflightChecks(cfg, keystroke.NewSimulatedGate(true))
	results := c.Check(context.Background())

	if r := results["registry"]; r.Status != health.StatusUnhealthy {
		t.Errorf("registry = %s, want unhealthy", r.Status)
	}
	if r := results["permission"]; r.Status != health.StatusHealthy {
		t.Errorf("permission = %s, want healthy", r.Status)
	}
	if r := results["history"]; r.Message != "disabled" {
		t.Errorf("history message = %q", r.Message)
	}
	if c.OverallStatus() != health.StatusUnhealthy {
		t.Error("a broken registry must block the daemon")
	}
}

func TestToWireOmitsTypedText(t *testing.T) {
	ev := engine.Event{
		Type: engine.EventMatched,
		Time: time.Now(),
		Session: autocomplete.Session{
			Prefix:     ":smi",
			Candidates: []autocomplete.Candidate{{Shortcut: ":smile:", Replacement: "😄"}},
		},
		Shortcut:    ":smile:",
		Replacement: "😄",
		Source:      store.SourceAccept,
	}

	w := toWire(ev)
	if w.Shortcut != ":smile:" || w.Replacement != "😄" || w.Source != "accept" {
		t.Errorf("unexpected wire event %+v", w)
	}
	if w.Candidates != 1 {
		t.Errorf("candidates = %d, want 1", w.Candidates)
	}
	data, err := json.Marshal(w)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), ":smi\"") {
		t.Errorf("typed prefix leaked: %s", data)
	}
}

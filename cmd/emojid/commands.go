package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"emojid/internal/config"
	"emojid/internal/health"
	"emojid/internal/ipc"
	"emojid/internal/keystroke"
	"emojid/internal/store"
)

func cmdList(args []string) {
	fs, cfgPath := newFlagSet("list")
	fs.Parse(args)

	cfg, loader := loadConfig(*cfgPath)
	loader.Close()

	reg, err := loadRegistry(cfg)
	if err != nil {
		fatalf("%v", err)
	}

	query := strings.Join(fs.Args(), " ")
	entries := reg.Search(query)
	if len(entries) == 0 {
		fmt.Printf("No shortcuts match %q.\n", query)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Shortcut, e.Replacement)
	}
	w.Flush()
	fmt.Printf("\n%d of %d shortcuts\n", len(entries), reg.Len())
}

func cmdCheck(args []string) {
	fs, cfgPath := newFlagSet("check")
	request := fs.Bool("request", false, "ask the system for permission if it is missing")
	fs.Parse(args)

	cfg, loader := loadConfig(*cfgPath)
	loader.Close()

	gate := keystroke.NewGate()
	if *request && !gate.IsTrusted() {
		gate.RequestPermission()
		fmt.Println("Permission requested. Run 'emojid check' again once granted.")
		fmt.Println()
	}

	c := preflightChecks(cfg, gate)
	results := c.Check(context.Background())

	fmt.Println("=== emojid Check ===")
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, name := range c.Names() {
		r := results[name]
		line := r.Message
		if r.Error != "" {
			line += " (" + r.Error + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, r.Status, line)
	}
	w.Flush()

	fmt.Println()
	if c.OverallStatus() == health.StatusUnhealthy {
		fmt.Println("emojid cannot run yet.")
		os.Exit(1)
	}
	fmt.Println("Ready.")
}

func cmdStats(args []string) {
	fs, cfgPath := newFlagSet("stats")
	top := fs.Int("top", 10, "number of most used shortcuts to show")
	recent := fs.Int("recent", 10, "number of recent expansions to show")
	fs.Parse(args)

	cfg, loader := loadConfig(*cfgPath)
	loader.Close()

	if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
		fmt.Println("No history yet.")
		return
	}

	db, err := store.Open(cfg.History.Path)
	if err != nil {
		fatalf("%v", err)
	}
	defer db.Close()

	ctx := context.Background()
	st, err := db.Stats(ctx, *top)
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Println("=== emojid Stats ===")
	fmt.Println()
	fmt.Printf("Expansions (all time): %d\n", st.AllTime)
	fmt.Printf("Expansions (retained): %d\n", st.Retained)
	for _, src := range []store.Source{store.SourceMatch, store.SourceComplete, store.SourceAccept} {
		fmt.Printf("  %-9s %d\n", src+":", st.BySource[src])
	}
	if st.Retained > 0 {
		fmt.Printf("Period: %s to %s\n", st.First.Format(time.DateTime), st.Last.Format(time.DateTime))
	}

	if len(st.Top) > 0 {
		fmt.Println()
		fmt.Println("Most used:")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, u := range st.Top {
			fmt.Fprintf(w, "  %s\t%s\t%d\t%s\n", u.Shortcut, u.Replacement, u.Uses, u.LastUsed.Format(time.DateOnly))
		}
		w.Flush()
	}

	if *recent > 0 {
		rows, err := db.Recent(ctx, *recent)
		if err != nil {
			fatalf("%v", err)
		}
		if len(rows) > 0 {
			fmt.Println()
			fmt.Println("Recent:")
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, e := range rows {
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", e.At.Format(time.DateTime), e.Shortcut, e.Replacement, e.Source)
			}
			w.Flush()
		}
	}
}

func cmdConfig(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: emojid config <init|show|bind> [options]")
		os.Exit(1)
	}

	switch args[0] {
	case "init":
		configInit(args[1:])
	case "show":
		configShow(args[1:])
	case "bind":
		configBind(args[1:])
	default:
		fatalf("unknown config action: %s", args[0])
	}
}

func configInit(args []string) {
	fs, cfgPath := newFlagSet("config init")
	fs.Parse(args)

	path := *cfgPath
	if path == "" {
		path = config.ConfigPath()
	}
	_, created, err := config.LoadOrCreate(path)
	if err != nil {
		fatalf("%v", err)
	}
	if created {
		fmt.Printf("Wrote %s\n", path)
	} else {
		fmt.Printf("%s already exists\n", path)
	}
}

func configShow(args []string) {
	fs, cfgPath := newFlagSet("config show")
	format := fs.String("format", "toml", "output format: toml, json or yaml")
	fs.Parse(args)

	cfg, loader := loadConfig(*cfgPath)
	loader.Close()

	data, err := config.Encode(cfg, "."+*format)
	if err != nil {
		fatalf("%v", err)
	}
	os.Stdout.Write(data)
}

// configBind persists a new chord for one command. A running daemon picks
// it up through its config watcher.
func configBind(args []string) {
	fs, cfgPath := newFlagSet("config bind")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fatalf("usage: emojid config bind <command> <chord|none>")
	}
	name, chord := fs.Arg(0), fs.Arg(1)

	var b keystroke.Binding
	if chord != "none" {
		var err error
		if b, err = keystroke.ParseBinding(chord); err != nil {
			fatalf("%v", err)
		}
	}

	cfg, loader := loadConfig(*cfgPath)
	loader.Close()

	if err := cfg.Keybindings.Set(name, b); err != nil {
		fatalf("%v", err)
	}
	if err := cfg.Keybindings.Validate(); err != nil {
		fatalf("%v", err)
	}

	path := loader.Path()
	if err := config.SaveConfig(cfg, path); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("%s = %q saved to %s\n", name, chord, filepath.Clean(path))
}

func dialDaemon(cfg *config.Config) *ipc.Conn {
	if !cfg.Control.Enabled {
		fatalf("the control socket is disabled in the configuration")
	}
	c, err := ipc.Dial(ipc.ClientConfig{SocketPath: cfg.Control.SocketPath})
	if errors.Is(err, ipc.ErrDaemonNotRunning) {
		fatalf("emojid is not running. Start it with 'emojid run'.")
	}
	if err != nil {
		fatalf("%v", err)
	}
	return c
}

func cmdStatus(args []string) {
	fs, cfgPath := newFlagSet("status")
	asJSON := fs.Bool("json", false, "print the raw status as JSON")
	fs.Parse(args)

	cfg, loader := loadConfig(*cfgPath)
	loader.Close()

	c := dialDaemon(cfg)
	defer c.Close()

	st, err := c.Status(context.Background())
	if err != nil {
		fatalf("%v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(st)
		return
	}

	fmt.Println("=== emojid Status ===")
	fmt.Println()
	fmt.Printf("Version: %s (pid %d)\n", st.Version, st.PID)
	fmt.Printf("Uptime: %s\n", st.Uptime)
	fmt.Printf("Key capture: %s\n", onOff(st.Running, "listening", "waiting for permission"))
	fmt.Printf("Expansion: %s\n", onOff(st.Enabled, "enabled", "disabled"))
	if st.SessionActive {
		fmt.Printf("Session: active, %d candidates\n", st.Candidates)
	}
	fmt.Printf("Shortcuts: %d\n", st.Shortcuts)
	if st.Health != "" {
		fmt.Printf("Health: %s\n", st.Health)
		for _, p := range st.Problems {
			fmt.Printf("  %s\n", p)
		}
	}

	if len(st.Metrics) > 0 {
		fmt.Println()
		for _, k := range []string{"events_total", "matches_total", "accepts_total", "completes_total", "cancels_total", "injection_errors_total"} {
			if v, ok := st.Metrics[k]; ok {
				fmt.Printf("  %-24s %v\n", k, v)
			}
		}
	}

	if len(st.Bindings) > 0 {
		fmt.Println()
		fmt.Println("Keybindings:")
		for _, k := range []string{"accept", "accept_alt", "next", "previous", "toggle_popover", "toggle_service"} {
			fmt.Printf("  %-16s %s\n", k, st.Bindings[k])
		}
	}
}

func onOff(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func cmdToggle(args []string) {
	fs, cfgPath := newFlagSet("toggle")
	fs.Parse(args)

	var want *bool
	switch fs.Arg(0) {
	case "":
	case "on":
		v := true
		want = &v
	case "off":
		v := false
		want = &v
	default:
		fatalf("usage: emojid toggle [on|off]")
	}

	cfg, loader := loadConfig(*cfgPath)
	loader.Close()

	c := dialDaemon(cfg)
	defer c.Close()

	enabled, err := c.SetEnabled(context.Background(), want)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Expansion %s\n", onOff(enabled, "enabled", "disabled"))
}

// cmdWatch prints expansion events until interrupted.
func cmdWatch(args []string) {
	fs, cfgPath := newFlagSet("watch")
	all := fs.Bool("all", false, "include session updates, not only expansions")
	fs.Parse(args)

	cfg, loader := loadConfig(*cfgPath)
	loader.Close()

	c := dialDaemon(cfg)
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var filter []string
	if !*all {
		filter = []string{"matched", "cancelled", "toggled"}
	}
	if err := c.Subscribe(ctx, filter...); err != nil {
		fatalf("%v", err)
	}
	fmt.Println("Watching (Ctrl+C to stop)...")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.Events():
			if !ok {
				fmt.Println("Daemon closed the connection.")
				return
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev *ipc.Event) {
	ts := ev.Timestamp.Local().Format(time.TimeOnly)
	switch ev.Type {
	case "matched":
		fmt.Printf("%s  %s → %s (%s)\n", ts, ev.Shortcut, ev.Replacement, ev.Source)
	case "cancelled":
		fmt.Printf("%s  cancelled (%s)\n", ts, ev.Reason)
	case "toggled":
		if ev.Enabled != nil {
			fmt.Printf("%s  expansion %s\n", ts, onOff(*ev.Enabled, "enabled", "disabled"))
		}
	default:
		fmt.Printf("%s  %s, %d candidates\n", ts, ev.Type, ev.Candidates)
	}
}

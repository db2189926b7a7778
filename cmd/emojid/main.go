// emojid - System-wide emoji shortcut expansion
//
//	emojid run              Watch the keyboard and expand shortcuts
//	emojid list [query]     Browse the shortcut table
//	emojid check            Report key capture permission and platform support
//	emojid status           Query the running daemon
//	emojid toggle [on|off]  Turn expansion on or off in the running daemon
//	emojid watch            Stream expansions from the running daemon
//	emojid stats            Show expansion history
//	emojid config init      Write the default configuration file
//	emojid config show      Print the effective configuration
//	emojid config bind      Rebind a command and save it
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"emojid/internal/config"
	"emojid/internal/logging"
	"emojid/internal/registry"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		cmdRun(args)
	case "list":
		cmdList(args)
	case "check":
		cmdCheck(args)
	case "status":
		cmdStatus(args)
	case "toggle":
		cmdToggle(args)
	case "watch":
		cmdWatch(args)
	case "stats":
		cmdStats(args)
	case "config":
		cmdConfig(args)
	case "version", "--version":
		fmt.Printf("emojid %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`emojid - System-wide emoji shortcut expansion

USAGE:
    emojid <command> [options]

COMMANDS:
    run                 Watch the keyboard and expand shortcuts
    list [query]        List shortcuts, optionally filtered
    check               Report key capture permission and platform support
    status              Query the running daemon
    toggle [on|off]     Turn expansion on or off in the running daemon
    watch               Stream expansions from the running daemon
    stats               Show expansion history
    config init         Write the default configuration file
    config show         Print the effective configuration
    config bind <command> <chord>
                        Rebind a command (accept, accept_alt, next,
                        previous, toggle_popover, toggle_service)
    version             Print the version
    help                Show this help message

Every command accepts -config <path>. The default is:
    ` + config.ConfigPath() + `

TYPING:
    :)              expands as soon as the shortcut is complete
    :sm             opens the candidate list; Ctrl+N / Ctrl+P select,
                    Tab or Ctrl+Return accepts, Esc or Space cancels
    Ctrl+Shift+T    turns expansion on and off

PRIVACY NOTE:
    emojid keeps at most the last few typed characters in memory to find
    shortcuts. It never logs or stores what you type; history records only
    which shortcut was expanded and when.`)
}

// newFlagSet returns a flag set carrying the shared -config flag.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	path := fs.String("config", "", "configuration file (default "+config.ConfigPath()+")")
	return fs, path
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func configPathOr(path string) string {
	if path != "" {
		return path
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

// loadConfig reads the configuration without creating it.
func loadConfig(path string) (*config.Config, *config.Loader) {
	loader := config.NewLoader(configPathOr(path))
	cfg, migrated, err := loader.Load()
	if err != nil {
		fatalf("loading %s: %v", loader.Path(), err)
	}
	if migrated != nil {
		fmt.Fprintf(os.Stderr, "Configuration migrated from v%d to v%d (backup: %s)\n",
			migrated.FromVersion, migrated.ToVersion, migrated.Backup)
		for _, w := range migrated.Warnings {
			fmt.Fprintf(os.Stderr, "  warning: %s\n", w)
		}
	}
	for _, w := range config.Check(cfg).Warnings() {
		fmt.Fprintf(os.Stderr, "Config warning: %s\n", w.Error())
	}
	return cfg, loader
}

// loadRegistry builds the shortcut table the configuration asks for.
func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.Registry.Path == "" {
		return registry.Default(), nil
	}
	user, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return nil, err
	}
	if !cfg.Registry.IncludeBuiltin {
		return user, nil
	}
	return registry.Merge(registry.Default(), user), nil
}

// newLogger builds the process logger from the configuration and installs it
// as the default.
func newLogger(cfg *config.Config) *logging.Logger {
	lcfg, err := cfg.Logging.LoggerConfig()
	if err != nil {
		fatalf("logging: %v", err)
	}
	lcfg.Component = "emojid"
	logger, err := logging.New(lcfg)
	if err != nil {
		fatalf("logging: %v", err)
	}
	logging.SetDefault(logger)
	return logger
}

func crashDir(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.History.Path), "crashes")
}

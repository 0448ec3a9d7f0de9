package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/kpmd/internal/api"
	"github.com/mattjoyce/kpmd/internal/config"
	"github.com/mattjoyce/kpmd/internal/journal"
	"github.com/mattjoyce/kpmd/internal/lock"
	"github.com/mattjoyce/kpmd/internal/log"
	"github.com/mattjoyce/kpmd/internal/storage"
	"github.com/mattjoyce/kpmd/internal/usermem"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

// command is one top-level verb. help is nil for verbs that handle their
// own help, like config with its sub-actions.
type command struct {
	name string
	run  func(args []string) int
	help func()
}

func commandTable() []command {
	return []command{
		{name: "start", run: runStart, help: printStartHelp},
		{name: "config", run: runConfigNoun},
		{name: "call", run: runCall, help: printCallHelp},
		{name: "hooks", run: runHooks, help: printHooksHelp},
		{name: "journal", run: runJournal, help: printJournalHelp},
		{name: "watch", run: runWatch, help: printWatchHelp},
		{name: "version", run: runVersion},
	}
}

func runCLI(argv []string) int {
	if len(argv) == 0 {
		printUsage()
		return 1
	}
	name, args := argv[0], argv[1:]
	switch name {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "--version":
		name = "version"
	}

	for _, c := range commandTable() {
		if c.name != name {
			continue
		}
		if c.help != nil && hasHelpFlag(args) {
			c.help()
			return 0
		}
		return c.run(args)
	}
	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	printUsage()
	return 1
}

func printUsage() {
	fmt.Print(`kpmd - kernel patch module control plane

Usage:
  kpmd <command> [flags]

Daemon:
  start             Run the control plane in the foreground
  watch             Live monitor of hook slots and dispatches (needs the API)

Control:
  call <command>    Run one KPM command in-process (load, unload, num,
                    info, list, control, version)
  hooks             Show which hook slots the configured backend attaches
  journal           Show recent dispatches from the journal

Config:
  config check      Validate syntax, policy, and integrity
  config lock       Authorize current state (update integrity hashes)

General:
  version           Show version information
  help              Show this help message

Use 'kpmd <command> --help' for command flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printStartHelp() {
	fmt.Println("Usage: kpmd start [--config PATH]")
	fmt.Println("Run the control plane in the foreground until SIGINT or SIGTERM.")
}

// resolveConfigPath falls back to the discovered config directory.
func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	discovered, err := config.DiscoverConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to discover config: %w", err)
	}
	return discovered, nil
}

func loadConfig(configPath string) (*config.Config, string, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, path, nil
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log.SetupWith(cfg.Service.LogLevel, cfg.Service.LogFormat, os.Stdout)
	logger := log.WithComponent("main")
	logger.Info("kpmd starting", "version", version, "config", path)
	for _, w := range cfg.Warnings {
		logger.Warn("config integrity warning", "warning", w)
	}

	pidLock, err := lock.Acquire(cfg.Service.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Service.LockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	plane, err := buildControlPlane(cfg, logger)
	if err != nil {
		logger.Error("failed to build control plane", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	if cfg.Journal.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
		if err != nil {
			logger.Error("failed to open journal", "path", cfg.Journal.Path, "error", err)
			return 1
		}
		defer db.Close()
		logger.Info("journal opened", "path", cfg.Journal.Path, "retention", cfg.Journal.Retention)

		recorder := journal.NewRecorder(journal.New(db), plane.hub, cfg.Journal.Retention)
		go func() {
			if err := recorder.Run(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("journal: %w", err)
			}
		}()
	}

	if cfg.API.Enabled {
		apiConfig := api.Config{
			Listen:       cfg.API.Listen,
			APIKey:       cfg.API.Auth.APIKey,
			Tokens:       cfg.TokenConfigs(),
			AddressLimit: usermem.Addr(cfg.Caller.AddressLimit),
			CallTimeout:  callTimeout(cfg),
		}
		apiServer := api.New(apiConfig, plane.mux, plane.registry, plane.hub, plane.metrics, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("kpmd running (press Ctrl+C to stop)", "hooks_attached", plane.registry.Attached())

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		stop()
		return 1
	}

	logger.Info("kpmd stopped")
	return 0
}

// callTimeout bounds one command: the backend timeout plus its kill grace,
// with headroom for staging.
func callTimeout(cfg *config.Config) time.Duration {
	if cfg.Backend.Timeout <= 0 {
		return 0
	}
	return cfg.Backend.Timeout + cfg.Backend.Grace + time.Second
}

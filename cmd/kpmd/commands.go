package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/kpmd/internal/errno"
	"github.com/mattjoyce/kpmd/internal/journal"
	"github.com/mattjoyce/kpmd/internal/kpm"
	"github.com/mattjoyce/kpmd/internal/log"
	"github.com/mattjoyce/kpmd/internal/storage"
	"github.com/mattjoyce/kpmd/internal/tui/watch"
	"github.com/mattjoyce/kpmd/internal/usermem"
)

// callResult is the --json shape of kpmd call.
type callResult struct {
	Command string `json:"command"`
	Result  int32  `json:"result"`
	Errno   string `json:"errno"`
	Output  string `json:"output,omitempty"`
}

// optionalString records whether a string flag was given at all, so
// "--args ''" differs from no --args.
type optionalString struct {
	value string
	set   bool
}

func (o *optionalString) String() string { return o.value }

func (o *optionalString) Set(v string) error {
	o.value, o.set = v, true
	return nil
}

func (o *optionalString) ptr() *string {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

func printCallHelp() {
	fmt.Println("Usage: kpmd call <command> [--config PATH] [--path P] [--name N] [--args A] [--capacity N] [--json]")
	fmt.Println("Run one KPM command against the configured backend without a daemon.")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  load     --path IMAGE [--args ARGS]")
	fmt.Println("  unload   --name MODULE")
	fmt.Println("  num")
	fmt.Println("  info     --name MODULE")
	fmt.Println("  list     [--capacity BYTES]")
	fmt.Println("  control  --name MODULE --args ARGS")
	fmt.Println("  version  [--capacity BYTES]")
}

func runCall(args []string) int {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		printCallHelp()
		return 1
	}
	code, err := kpm.ParseCode(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var cmdArgs optionalString
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	path := fs.String("path", "", "Module image path (load)")
	name := fs.String("name", "", "Module name (unload, info, control)")
	fs.Var(&cmdArgs, "args", "Argument string (load, control)")
	capacity := fs.Int("capacity", 0, "Output buffer size in bytes (list, version)")
	jsonOut := fs.Bool("json", false, "Output the result as JSON")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *capacity < 0 || *capacity > kpm.MaxCapacity {
		fmt.Fprintf(os.Stderr, "Flag error: --capacity must be between 0 and %d\n", kpm.MaxCapacity)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	// Logs go to stderr so stdout carries only the result.
	log.SetupWith(cfg.Service.LogLevel, cfg.Service.LogFormat, os.Stderr)
	logger := log.WithComponent("cli")

	var observers []kpm.Observer
	if cfg.Journal.Enabled {
		db, err := storage.OpenSQLite(context.Background(), cfg.Journal.Path)
		if err != nil {
			logger.Warn("journal unavailable, dispatch not recorded", "path", cfg.Journal.Path, "error", err)
		} else {
			defer db.Close()
			store := journal.New(db)
			observers = append(observers, kpm.ObserverFunc(func(r kpm.Record) {
				if err := store.Append(context.Background(), r); err != nil {
					logger.Warn("journal append failed", "dispatch_id", r.ID, "error", err)
				}
			}))
		}
	}

	plane, err := buildControlPlane(cfg, logger, observers...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	if t := callTimeout(cfg); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	req := kpm.Request{Code: code, Path: *path, Name: *name, Args: cmdArgs.ptr(), Capacity: *capacity}
	oc, err := kpm.Invoke(ctx, plane.mux, "cli", usermem.Addr(cfg.Caller.AddressLimit), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := printCallResult(os.Stdout, code, oc, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if oc.Result < 0 {
		return 1
	}
	return 0
}

func printCallResult(w io.Writer, code kpm.ControlCode, oc kpm.Outcome, jsonOut bool) error {
	out := string(oc.Output)
	if code == kpm.CodeList {
		out = strings.Join(splitNames(oc.Output), "\n")
	}

	if jsonOut {
		data, err := json.MarshalIndent(callResult{Command: code.String(), Result: oc.Result, Errno: oc.Errno, Output: out}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if err := errno.FromResult(oc.Result); err != nil {
		fmt.Fprintf(w, "%s: result=%d (%s: %v)\n", code, oc.Result, oc.Errno, err)
	} else {
		fmt.Fprintf(w, "%s: result=%d (%s)\n", code, oc.Result, oc.Errno)
	}
	if out != "" {
		fmt.Fprintln(w, out)
	}
	return nil
}

// splitNames turns a list buffer of NUL-terminated names into a slice.
func splitNames(buf []byte) []string {
	var names []string
	for _, n := range strings.Split(string(buf), "\x00") {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

func printHooksHelp() {
	fmt.Println("Usage: kpmd hooks [--config PATH] [--json]")
	fmt.Println("Show the hook slot table after attaching the configured backend.")
}

func runHooks(args []string) int {
	fs := flag.NewFlagSet("hooks", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output slots as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log.SetupWith(cfg.Service.LogLevel, cfg.Service.LogFormat, os.Stderr)

	plane, err := buildControlPlane(cfg, log.WithComponent("cli"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	status := plane.registry.Status()
	if *jsonOut {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	for _, st := range status {
		owner := "default"
		if st.Attached {
			owner = st.Owner
		}
		fmt.Printf("%-8s %-22s %s\n", st.Name, st.Symbol, owner)
	}
	return 0
}

func printJournalHelp() {
	fmt.Println("Usage: kpmd journal [--config PATH] [--limit N] [--command NAME] [--caller NAME] [--json]")
	fmt.Println("Show recent dispatches, newest first.")
}

func runJournal(args []string) int {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", journal.DefaultLimit, "Maximum records to show")
	command := fs.String("command", "", "Only show this command")
	caller := fs.String("caller", "", "Only show this caller")
	jsonOut := fs.Bool("json", false, "Output records as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *command != "" {
		code, err := kpm.ParseCode(*command)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		*command = code.String()
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !cfg.Journal.Enabled {
		fmt.Fprintln(os.Stderr, "Error: journal is disabled in config")
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer db.Close()

	records, err := journal.New(db).Recent(ctx, journal.Query{Limit: *limit, Command: *command, Caller: *caller})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read journal: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(records) == 0 {
		fmt.Println("No dispatches recorded.")
		return 0
	}
	for _, r := range records {
		status := r.Errno
		if r.RelayError != "" {
			status += " (" + r.RelayError + ")"
		}
		fmt.Printf("%s  %-8s %6d %-10s %-16s %s\n",
			r.StartedAt.Local().Format(time.RFC3339), r.Command, r.Result, status, r.Caller, r.ID)
	}
	return 0
}

func printWatchHelp() {
	fmt.Println("Usage: kpmd watch [--api-url URL] [--api-key KEY]")
	fmt.Println()
	fmt.Println("Live monitor of hook slots, dispatches and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Daemon API URL (default: http://127.0.0.1:8089)")
	fmt.Println("  --api-key KEY    Bearer token with kpm:ro (or KPMD_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Scroll dispatches")
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8089", "Daemon API URL")
	apiKey := fs.String("api-key", os.Getenv("KPMD_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or KPMD_API_KEY env var.")
		return 1
	}

	p := tea.NewProgram(watch.New(strings.TrimRight(*apiURL, "/"), *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

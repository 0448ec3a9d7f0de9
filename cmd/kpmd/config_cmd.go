package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattjoyce/kpmd/internal/config"
	"github.com/mattjoyce/kpmd/internal/hook"
)

// checkReport is the result of kpmd config check.
type checkReport struct {
	Valid    bool     `json:"valid"`
	Config   string   `json:"config"`
	Backend  string   `json:"backend,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: kpmd config <action>")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: kpmd config check [--config PATH] [--strict] [--json]")
	fmt.Println("Validate configuration syntax, policy, integrity, and the backend selection.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: kpmd config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	strict := fs.Bool("strict", false, "Treat warnings as errors")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	report := checkConfig(path)
	if *strict && len(report.Warnings) > 0 {
		report.Valid = false
	}

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		printCheckReport(os.Stdout, report)
	}

	if !report.Valid {
		return 1
	}
	return 0
}

// checkConfig loads path and resolves the backend against a scratch
// registry, so a bad backend name or hook list fails here rather than at
// start.
func checkConfig(path string) checkReport {
	report := checkReport{Config: path}

	cfg, err := config.Load(path)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	report.Warnings = append(report.Warnings, cfg.Warnings...)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec, err := attachBackend(cfg, hook.NewRegistry(), quiet)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}
	if exec == nil {
		report.Warnings = append(report.Warnings, fmt.Sprintf("no backend attached from %s; every hook returns its default", cfg.Backend.Dir))
	} else {
		report.Backend = exec.Name()
	}

	report.Valid = true
	return report
}

func printCheckReport(w io.Writer, r checkReport) {
	status := "OK"
	if !r.Valid {
		status = "FAILED"
	}
	fmt.Fprintf(w, "Config: %s\n", r.Config)
	if r.Backend != "" {
		fmt.Fprintf(w, "Backend: %s\n", r.Backend)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  ERROR   %s\n", e)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  WARNING %s\n", warn)
	}
	fmt.Fprintf(w, "Result: %s\n", status)
}

func runConfigLock(args []string) int {
	var verbose, verboseShort, dryRun bool
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	files, err := config.ResolveFiles(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config files: %v\n", err)
		return 1
	}

	if isVerbose {
		fmt.Printf("Processing directory: %s\n", files.Root)
		for _, f := range files.AllFiles() {
			tier := "operational"
			if files.FileTier(f) == config.TierHighSecurity {
				tier = "high-security"
			}
			fmt.Printf("  DISCOVER [%s] %s\n", tier, f)
		}
	}

	report, err := config.Lock(files, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate checksums: %v\n", err)
		return 1
	}

	if isVerbose {
		for _, e := range report.Entries {
			fmt.Printf("  HASH %s %s\n", e.Name, e.Digest)
		}
	}
	if dryRun {
		fmt.Printf("Dry run: would write %s (%d files)\n", report.Path, len(report.Entries))
		return 0
	}
	fmt.Printf("Wrote %s (%d files)\n", report.Path, len(report.Entries))
	return 0
}

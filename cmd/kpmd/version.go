package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

// Set with -ldflags "-X main.version=...". Unset values fall back to the VCS
// stamp the go tool embeds.
var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: kpmd version [--json]")
		return 1
	}

	v := resolveVersion(vcsStamp())
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Printf("kpmd %s (commit %s, built %s)\n", v.Version, v.Commit, v.BuildTime)
	return 0
}

// vcsStamp returns the vcs.* build settings, if any were embedded.
func vcsStamp() map[string]string {
	out := map[string]string{}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	for _, s := range bi.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			out[s.Key] = s.Value
		}
	}
	return out
}

func resolveVersion(vcs map[string]string) versionInfo {
	v := versionInfo{Version: "0.0.0-dev", Commit: "unknown", BuildTime: "unknown"}
	if s := strings.TrimSpace(version); s != "" {
		v.Version = s
	}
	if c := known(gitCommit, vcs["vcs.revision"]); c != "" {
		v.Commit = c[:min(len(c), 12)]
	}
	if ts, ok := utcBuildTime(known(buildDate, vcs["vcs.time"])); ok {
		v.BuildTime = ts
	}
	return v
}

// known returns the first value that is neither blank nor "unknown".
func known(values ...string) string {
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" && s != "unknown" {
			return s
		}
	}
	return ""
}

func utcBuildTime(raw string) (string, bool) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

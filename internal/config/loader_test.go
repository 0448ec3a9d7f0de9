package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/usermem"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func lock(t *testing.T, dir string) {
	t.Helper()
	files, err := DiscoverConfigFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Lock(files, false); err != nil {
		t.Fatal(err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, MainFile), `
service:
  name: kpmd-test
  log_level: debug
  log_format: text
caller:
  address_limit: 65536
backend:
  dir: ./mods
  name: exec-loader
  timeout: 3s
  grace: 1s
  hooks: [load, kpm_unload_module, info]
  config:
    verbose: true
journal:
  path: /var/lib/kpmd/journal.db
  retention: 48h
events:
  buffer: 32
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Service.Name != "kpmd-test" {
		t.Errorf("service.name = %q, want kpmd-test", cfg.Service.Name)
	}
	if cfg.Service.LogLevel != "debug" || cfg.Service.LogFormat != "text" {
		t.Errorf("service logging = %s/%s, want debug/text", cfg.Service.LogLevel, cfg.Service.LogFormat)
	}
	if cfg.Caller.AddressLimit != 65536 {
		t.Errorf("caller.address_limit = %d, want 65536", cfg.Caller.AddressLimit)
	}
	if cfg.Backend.Dir != filepath.Join(tmpDir, "mods") {
		t.Errorf("backend.dir = %q, want resolved against config dir", cfg.Backend.Dir)
	}
	if cfg.Backend.Timeout != 3*time.Second || cfg.Backend.Grace != time.Second {
		t.Errorf("backend timeouts = %v/%v", cfg.Backend.Timeout, cfg.Backend.Grace)
	}
	if cfg.Backend.Config["verbose"] != true {
		t.Errorf("backend.config = %v", cfg.Backend.Config)
	}
	if cfg.Journal.Path != "/var/lib/kpmd/journal.db" {
		t.Errorf("journal.path = %q", cfg.Journal.Path)
	}
	if !cfg.Journal.Enabled {
		t.Error("journal.enabled should keep its default")
	}
	if cfg.Journal.Retention != 48*time.Hour {
		t.Errorf("journal.retention = %v", cfg.Journal.Retention)
	}
	if cfg.Events.Buffer != 32 {
		t.Errorf("events.buffer = %d", cfg.Events.Buffer)
	}
	if cfg.Service.LockPath != filepath.Join(tmpDir, "kpmd.lock") {
		t.Errorf("service.lock_path = %q", cfg.Service.LockPath)
	}

	points, err := cfg.HookPoints()
	if err != nil {
		t.Fatal(err)
	}
	want := []hook.Point{hook.PointLoad, hook.PointUnload, hook.PointInfo}
	if len(points) != len(want) {
		t.Fatalf("HookPoints() = %v, want %v", points, want)
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("HookPoints()[%d] = %v, want %v", i, points[i], want[i])
		}
	}

	// No .checksums yet: loading still works with a warning.
	if len(cfg.Warnings) != 1 || !strings.Contains(cfg.Warnings[0], "kpmd config lock") {
		t.Errorf("Warnings = %v", cfg.Warnings)
	}
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, MainFile)
	writeTestFile(t, path, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Service.Name != "kpmd" || cfg.Service.LogLevel != "info" || cfg.Service.LogFormat != "json" {
		t.Errorf("service defaults = %+v", cfg.Service)
	}
	if cfg.Caller.AddressLimit != uint64(usermem.DefaultAddressLimit) {
		t.Errorf("caller.address_limit = %#x", cfg.Caller.AddressLimit)
	}
	if cfg.Backend.Timeout != 10*time.Second || cfg.Backend.Grace != 5*time.Second {
		t.Errorf("backend defaults = %+v", cfg.Backend)
	}
	if cfg.Journal.Path != filepath.Join(tmpDir, "kpmd.db") {
		t.Errorf("journal.path = %q", cfg.Journal.Path)
	}
	if cfg.Events.Buffer != 256 {
		t.Errorf("events.buffer = %d", cfg.Events.Buffer)
	}
	if cfg.API.Enabled || cfg.API.Listen != "127.0.0.1:8089" {
		t.Errorf("api defaults = %+v", cfg.API)
	}
	if cfg.SourceDir != tmpDir {
		t.Errorf("SourceDir = %q, want %q", cfg.SourceDir, tmpDir)
	}
}

func TestLoadEnvInterpolation(t *testing.T) {
	t.Setenv("KPMD_TEST_KEY", "secret-key")

	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, MainFile), `
api:
  enabled: true
  auth:
    api_key: ${KPMD_TEST_KEY}
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.API.Auth.APIKey != "secret-key" {
		t.Errorf("api_key = %q, want secret-key", cfg.API.Auth.APIKey)
	}
}

func TestLoadTokensFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, MainFile), `
api:
  enabled: true
  auth:
    tokens:
      - token: inline
        scopes: ["*"]
`)
	writeTestFile(t, filepath.Join(tmpDir, TokensFile), `
tokens:
  - token: reader
    scopes: ["kpm:ro"]
  - token: writer
    scopes: ["kpm:rw"]
`)
	lock(t, tmpDir)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none after lock", cfg.Warnings)
	}

	tokens := cfg.TokenConfigs()
	if len(tokens) != 2 || tokens[0].Token != "reader" || tokens[1].Token != "writer" {
		t.Fatalf("TokenConfigs() = %+v, want tokens.yaml to replace inline tokens", tokens)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad log level",
			content: "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "bad log format",
			content: "service:\n  log_format: xml\n",
			wantErr: "service.log_format",
		},
		{
			name:    "unknown hook",
			content: "backend:\n  hooks: [load, patch]\n",
			wantErr: "unknown hook point",
		},
		{
			name:    "duplicate hook",
			content: "backend:\n  hooks: [load, kpm_load_module_path]\n",
			wantErr: "listed twice",
		},
		{
			name:    "negative timeout",
			content: "backend:\n  timeout: -1s\n",
			wantErr: "backend.timeout",
		},
		{
			name:    "unknown field",
			content: "service:\n  tick_interval: 1s\n",
			wantErr: "field tick_interval not found",
		},
		{
			name:    "api without credentials",
			content: "api:\n  enabled: true\n",
			wantErr: "no api_key or tokens",
		},
		{
			name:    "unset env var",
			content: "api:\n  enabled: true\n  auth:\n    api_key: ${KPMD_DEFINITELY_UNSET_VAR}\n",
			wantErr: "${KPMD_DEFINITELY_UNSET_VAR} is not set",
		},
		{
			name:    "token without scopes",
			content: "api:\n  enabled: true\n  auth:\n    tokens:\n      - token: t\n",
			wantErr: "scopes must be non-empty",
		},
		{
			name:    "unknown scope",
			content: "api:\n  enabled: true\n  auth:\n    tokens:\n      - token: t\n        scopes: [\"jobs:rw\"]\n",
			wantErr: "unknown scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			writeTestFile(t, filepath.Join(tmpDir, MainFile), tt.content)

			_, err := Load(tmpDir)
			if err == nil {
				t.Fatalf("Load() succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("Load() of a missing path should fail")
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("Load() of a directory without kpmd.yaml should fail")
	}
}

func TestLoadRejectsTamperedTokens(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, MainFile), "api:\n  enabled: true\n")
	writeTestFile(t, filepath.Join(tmpDir, TokensFile), "tokens:\n  - token: a\n    scopes: [\"kpm:ro\"]\n")
	lock(t, tmpDir)

	writeTestFile(t, filepath.Join(tmpDir, TokensFile), "tokens:\n  - token: a\n    scopes: [\"*\"]\n")

	_, err := Load(tmpDir)
	if err == nil || !strings.Contains(err.Error(), "integrity check failed") {
		t.Fatalf("Load() error = %v, want integrity failure", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("KPMD_A", "alpha")

	got := interpolateEnv("a=${KPMD_A} b=${KPMD_UNSET_B} c=$KPMD_A")
	want := "a=alpha b=${KPMD_UNSET_B} c=$KPMD_A"
	if got != want {
		t.Fatalf("interpolateEnv() = %q, want %q", got, want)
	}
}

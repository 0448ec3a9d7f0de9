package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mattjoyce/kpmd/internal/hook"
)

func writeManifest(t *testing.T, dir, manifest string, executable bool) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	mode := os.FileMode(0644)
	if executable {
		mode = 0755
	}
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"), mode); err != nil {
		t.Fatalf("write entrypoint: %v", err)
	}
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name      string
		setupFn   func(t *testing.T) string
		wantCount int
		wantErr   bool
		checkFn   func(t *testing.T, c *Catalog)
	}{
		{
			name: "valid backend discovered",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeManifest(t, filepath.Join(dir, "apatch"), `name: apatch
version: 0.10.7
protocol: 1
entrypoint: run.sh
hooks: [load, kpm_unload_module, num]
`, true)
				return dir
			},
			wantCount: 1,
			checkFn: func(t *testing.T, c *Catalog) {
				d, ok := c.Get("apatch")
				if !ok {
					t.Fatal("apatch not found")
				}
				if !d.Implements(hook.PointUnload) {
					t.Error("should implement unload (declared by symbol)")
				}
				if d.Implements(hook.PointInfo) {
					t.Error("should not implement info")
				}
				if got := d.HookNames(); len(got) != 3 || got[0] != "load" {
					t.Errorf("unexpected hook names %v", got)
				}
			},
		},
		{
			name: "nested backends and duplicates",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				m := "name: dup\nversion: 1\nprotocol: 1\nentrypoint: run.sh\nhooks: [num]\n"
				writeManifest(t, filepath.Join(dir, "a"), m, true)
				writeManifest(t, filepath.Join(dir, "b", "nested"), m, true)
				writeManifest(t, filepath.Join(dir, "c"), "name: other\nversion: 1\nprotocol: 1\nentrypoint: run.sh\nhooks: [list]\n", true)
				return dir
			},
			wantCount: 2,
			checkFn: func(t *testing.T, c *Catalog) {
				d, _ := c.Get("dup")
				if filepath.Base(d.Path) != "a" {
					t.Errorf("expected first discovered backend to win, got %s", d.Path)
				}
				if names := c.Names(); names[0] != "dup" || names[1] != "other" {
					t.Errorf("names not sorted: %v", names)
				}
			},
		},
		{
			name: "unsupported protocol skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeManifest(t, filepath.Join(dir, "x"), "name: x\nprotocol: 9\nentrypoint: run.sh\nhooks: [num]\n", true)
				return dir
			},
		},
		{
			name: "unknown hook skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeManifest(t, filepath.Join(dir, "x"), "name: x\nprotocol: 1\nentrypoint: run.sh\nhooks: [relocate]\n", true)
				return dir
			},
		},
		{
			name: "duplicate hook skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeManifest(t, filepath.Join(dir, "x"), "name: x\nprotocol: 1\nentrypoint: run.sh\nhooks: [num, kpm_num]\n", true)
				return dir
			},
		},
		{
			name: "no hooks skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeManifest(t, filepath.Join(dir, "x"), "name: x\nprotocol: 1\nentrypoint: run.sh\n", true)
				return dir
			},
		},
		{
			name: "non-executable entrypoint skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeManifest(t, filepath.Join(dir, "x"), "name: x\nprotocol: 1\nentrypoint: run.sh\nhooks: [num]\n", false)
				return dir
			},
		},
		{
			name: "path traversal skipped",
			setupFn: func(t *testing.T) string {
				dir := t.TempDir()
				writeManifest(t, filepath.Join(dir, "x"), "name: x\nprotocol: 1\nentrypoint: ../run.sh\nhooks: [num]\n", true)
				return dir
			},
		},
		{
			name: "missing directory",
			setupFn: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "absent")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := tt.setupFn(t)
			c, err := Discover(root, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Discover() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := len(c.Names()); got != tt.wantCount {
				t.Errorf("want %d backends, got %d", tt.wantCount, got)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, c)
			}
		})
	}
}

func TestValidateTrustRejectsWorldWritableDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "x")
	writeManifest(t, dir, "", true)
	if err := os.Chmod(dir, 0777); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := validateTrust(filepath.Join(dir, "run.sh"), dir, root); err == nil {
		t.Error("expected world-writable backend directory to be rejected")
	}
}

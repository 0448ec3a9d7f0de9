package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/kpmd/internal/config"
	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	stderrR, stderrW, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = stdoutW
	os.Stderr = stderrW

	// Drain concurrently so a chatty command cannot fill the pipe.
	stdoutCh := make(chan []byte, 1)
	stderrCh := make(chan []byte, 1)
	go func() { b, _ := io.ReadAll(stdoutR); stdoutCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); stderrCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdout := <-stdoutCh
	stderr := <-stderrCh
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdout), string(stderr)
}

func runCLICaptured(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion, origCommit, origBuildDate := version, gitCommit, buildDate
	version, gitCommit, buildDate = v, commit, built
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origBuildDate
	})
}

// writeConfigDir creates a config directory with kpmd.yaml and, when body is
// non-empty, a "demo" backend that runs body for every hook.
func writeConfigDir(t *testing.T, extraYAML, hooks, body string) string {
	t.Helper()
	dir := t.TempDir()

	cfg := "service:\n  log_level: error\nbackend:\n  dir: backends\n" + extraYAML
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.MainFile), []byte(cfg), 0o644))

	if body != "" {
		bdir := filepath.Join(dir, "backends", "demo")
		require.NoError(t, os.MkdirAll(bdir, 0o755))
		manifest := "name: demo\nversion: 1.0.0\nprotocol: 1\nentrypoint: run.sh\nhooks: " + hooks + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(bdir, "manifest.yaml"), []byte(manifest), 0o644))
		script := "#!/bin/sh\nread -r input\n" + body + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(bdir, "run.sh"), []byte(script), 0o755))
	}
	return dir
}

func TestRunCLIUsage(t *testing.T) {
	code, stdout, _ := runCLICaptured(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "kpmd <command>")

	code, _, stderr := runCLICaptured(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")

	code, _, _ = runCLICaptured(t)
	assert.Equal(t, 1, code)
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef0123", "2026-01-02T03:04:05.999+02:00")

	code, stdout, _ := runCLICaptured(t, "version", "--json")
	require.Equal(t, 0, code)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, versionInfo{Version: "1.2.3", Commit: "0123456789ab", BuildTime: "2026-01-02T01:04:05Z"}, info)

	code, _, _ = runCLICaptured(t, "version", "extra")
	assert.Equal(t, 1, code)
}

func TestRunVersionHuman(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "abc", "not-a-time")
	code, stdout, _ := runCLICaptured(t, "--version")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "kpmd 1.2.3")
	assert.Contains(t, stdout, "commit abc")
	assert.Contains(t, stdout, "built unknown")
}

func TestConfigLockThenCheck(t *testing.T) {
	dir := writeConfigDir(t, "", "", "")

	code, stdout, _ := runCLICaptured(t, "config", "lock", "--config", dir, "--dry-run", "-v")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "DISCOVER [operational]")
	assert.Contains(t, stdout, "Dry run")
	assert.NoFileExists(t, filepath.Join(dir, config.ChecksumsFile))

	code, stdout, _ = runCLICaptured(t, "config", "lock", "--config", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Wrote")
	assert.FileExists(t, filepath.Join(dir, config.ChecksumsFile))

	// No backend directory leaves a warning, which --strict turns into failure.
	code, stdout, _ = runCLICaptured(t, "config", "check", "--config", dir, "--json")
	require.Equal(t, 0, code, stdout)
	var report checkReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.True(t, report.Valid)
	assert.Len(t, report.Warnings, 1)

	code, _, _ = runCLICaptured(t, "config", "check", "--config", dir, "--strict")
	assert.Equal(t, 1, code)
}

func TestConfigCheckDetectsTampering(t *testing.T) {
	dir := writeConfigDir(t, "", "", "")
	code, _, _ := runCLICaptured(t, "config", "lock", "--config", dir)
	require.Equal(t, 0, code)

	tokens := "api_key: secret\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.TokensFile), []byte(tokens), 0o600))

	code, stdout, _ := runCLICaptured(t, "config", "check", "--config", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "Result: FAILED")
	assert.Contains(t, stdout, config.TokensFile)
}

func TestConfigCheckUnknownBackend(t *testing.T) {
	dir := writeConfigDir(t, "  name: missing\n", "[num]", `printf '%s\n' '{"status":"ok","result":1}'`)

	code, stdout, _ := runCLICaptured(t, "config", "check", "--config", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, `backend "missing" not found`)
}

func TestConfigCheckRejectsUndeclaredHook(t *testing.T) {
	dir := writeConfigDir(t, "  hooks: [num, list]\n", "[num]", `printf '%s\n' '{"status":"ok","result":1}'`)

	code, stdout, _ := runCLICaptured(t, "config", "check", "--config", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, `does not implement hook "list"`)
}

func TestHooksWithoutBackend(t *testing.T) {
	dir := writeConfigDir(t, "", "", "")

	code, stdout, _ := runCLICaptured(t, "hooks", "--config", dir, "--json")
	require.Equal(t, 0, code)

	var slots []hook.SlotStatus
	require.NoError(t, json.Unmarshal([]byte(stdout), &slots))
	require.Len(t, slots, len(hook.Points()))
	for _, s := range slots {
		assert.False(t, s.Attached, s.Name)
	}
}

func TestHooksAttachesDeclaredPoints(t *testing.T) {
	dir := writeConfigDir(t, "", "[num, version]", `printf '%s\n' '{"status":"ok","result":1}'`)

	code, stdout, _ := runCLICaptured(t, "hooks", "--config", dir)
	require.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, len(hook.Points()))
	attached := 0
	for _, l := range lines {
		if strings.HasSuffix(l, "demo") {
			attached++
		}
	}
	assert.Equal(t, 2, attached)
	assert.Contains(t, stdout, "kpm_version")
}

func TestCallUnattachedNumIsEPERM(t *testing.T) {
	dir := writeConfigDir(t, "journal:\n  enabled: false\n", "", "")

	code, stdout, _ := runCLICaptured(t, "call", "num", "--config", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "num: result=-1 (EPERM: operation not permitted)")
}

func TestCallRejectsUnknownCommand(t *testing.T) {
	code, _, stderr := runCLICaptured(t, "call", "reboot")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown kpm command")
}

func TestCallRejectsOversizedCapacity(t *testing.T) {
	for _, c := range []string{"-1", "65537", "4294967304"} {
		code, _, stderr := runCLICaptured(t, "call", "list", "--capacity", c)
		assert.Equal(t, 1, code, c)
		assert.Contains(t, stderr, "--capacity must be between 0 and 65536", c)
	}
}

func TestCallRecordsToJournal(t *testing.T) {
	dir := writeConfigDir(t, "", "[num]", `printf '%s\n' '{"status":"ok","result":3}'`)

	code, stdout, stderr := runCLICaptured(t, "call", "num", "--config", dir, "--json")
	require.Equal(t, 0, code, stderr)

	var res callResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, callResult{Command: "num", Result: 3, Errno: res.Errno}, res)

	code, stdout, stderr = runCLICaptured(t, "journal", "--config", dir, "--json", "--command", "NUM")
	require.Equal(t, 0, code, stderr)

	var records []kpm.Record
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "num", records[0].Command)
	assert.Equal(t, "cli", records[0].Caller)
	assert.Equal(t, int32(3), records[0].Result)
	assert.NotEmpty(t, records[0].ID)
}

func TestCallListOutput(t *testing.T) {
	dir := writeConfigDir(t, "journal:\n  enabled: false\n", "[list]", `printf '%s\n' '{"status":"ok","output":"alpha\nbeta\n"}'`)

	code, stdout, stderr := runCLICaptured(t, "call", "list", "--config", dir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "list: result=11")
	assert.Contains(t, stdout, "alpha\nbeta")
}

func TestJournalDisabled(t *testing.T) {
	dir := writeConfigDir(t, "journal:\n  enabled: false\n", "", "")
	code, _, stderr := runCLICaptured(t, "journal", "--config", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "journal is disabled")
}

func TestWatchRequiresKey(t *testing.T) {
	t.Setenv("KPMD_API_KEY", "")
	code, _, stderr := runCLICaptured(t, "watch")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "API key required")
}

func TestSplitNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitNames([]byte("a\x00b\x00")))
	assert.Nil(t, splitNames(nil))
}

func TestResolveVersionFallsBackToVCS(t *testing.T) {
	setVersionMetadataForTest(t, " ", "unknown", "")

	v := resolveVersion(map[string]string{
		"vcs.revision": "fedcba9876543210",
		"vcs.time":     "2026-03-01T10:00:00+10:00",
	})
	assert.Equal(t, versionInfo{Version: "0.0.0-dev", Commit: "fedcba987654", BuildTime: "2026-03-01T00:00:00Z"}, v)

	v = resolveVersion(nil)
	assert.Equal(t, "unknown", v.Commit)
	assert.Equal(t, "unknown", v.BuildTime)
}

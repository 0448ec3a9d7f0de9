package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

const (
	checksumsVersion = 1
	digestPrefix     = "blake3:"
)

// ErrNoChecksums is returned by ReadChecksums when the directory was never
// locked.
var ErrNoChecksums = errors.New("config directory is not locked (run 'kpmd config lock')")

var (
	errNotLocked = errors.New("not covered by .checksums")
	errDrift     = errors.New("changed since last lock")
)

// Checksums is the .checksums manifest. Files maps a base name in the
// config directory to its "blake3:<hex>" digest.
type Checksums struct {
	Version  int               `yaml:"version"`
	LockedAt time.Time         `yaml:"locked_at"`
	Files    map[string]string `yaml:"files"`
}

// DigestFile streams path through BLAKE3.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return digestPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks path against its recorded digest.
func (c *Checksums) Verify(path string) error {
	name := filepath.Base(path)
	want, ok := c.Files[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, errNotLocked)
	}
	got, err := DigestFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("%s: %w", name, errDrift)
	}
	return nil
}

// ReadChecksums loads dir/.checksums.
func ReadChecksums(dir string) (*Checksums, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoChecksums
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ChecksumsFile, err)
	}

	var c Checksums
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ChecksumsFile, err)
	}
	if c.Version != checksumsVersion {
		return nil, fmt.Errorf("%s: unsupported version %d", ChecksumsFile, c.Version)
	}
	for name, d := range c.Files {
		if !strings.HasPrefix(d, digestPrefix) {
			return nil, fmt.Errorf("%s: digest for %s is not %s", ChecksumsFile, name, strings.TrimSuffix(digestPrefix, ":"))
		}
	}
	return &c, nil
}

// LockEntry is one file recorded by Lock.
type LockEntry struct {
	Name   string
	Path   string
	Digest string
}

// LockReport describes what Lock hashed and where it wrote.
type LockReport struct {
	Dir     string
	Path    string
	Written bool
	Entries []LockEntry
}

// Lock records the digest of every file in files into .checksums. The
// manifest is replaced atomically with mode 0600. With dryRun nothing is
// written.
func Lock(files *ConfigFiles, dryRun bool) (*LockReport, error) {
	report := &LockReport{Dir: files.Root, Path: filepath.Join(files.Root, ChecksumsFile)}
	sums := Checksums{
		Version:  checksumsVersion,
		LockedAt: time.Now().UTC().Truncate(time.Second),
		Files:    make(map[string]string),
	}

	for _, path := range files.AllFiles() {
		digest, err := DigestFile(path)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", path, err)
		}
		name := filepath.Base(path)
		sums.Files[name] = digest
		report.Entries = append(report.Entries, LockEntry{Name: name, Path: path, Digest: digest})
	}
	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(sums)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ChecksumsFile, err)
	}
	tmp, err := os.CreateTemp(files.Root, ChecksumsFile+".*")
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", ChecksumsFile, err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return nil, err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write %s: %w", ChecksumsFile, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), report.Path); err != nil {
		return nil, fmt.Errorf("install %s: %w", ChecksumsFile, err)
	}
	report.Written = true
	return report, nil
}

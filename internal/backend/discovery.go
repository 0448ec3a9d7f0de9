package backend

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/kpmd/internal/protocol"
)

const manifestFilename = "manifest.yaml"

// Catalog holds discovered backends indexed by name.
type Catalog struct {
	backends map[string]*Descriptor
}

func NewCatalog() *Catalog {
	return &Catalog{backends: make(map[string]*Descriptor)}
}

func (c *Catalog) Get(name string) (*Descriptor, bool) {
	d, ok := c.backends[name]
	return d, ok
}

// Names returns the registered backend names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.backends))
	for name := range c.backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Add(d *Descriptor) error {
	if _, exists := c.backends[d.Name]; exists {
		return fmt.Errorf("backend %q already registered", d.Name)
	}
	c.backends[d.Name] = d
	return nil
}

// Discover scans root for backends with a manifest.yaml and validates them.
// Invalid backends are logged and skipped; duplicate names keep the first
// one found.
func Discover(root string, logger func(level, msg string, args ...any)) (*Catalog, error) {
	if logger == nil {
		logger = func(level, msg string, args ...any) {}
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("backend directory is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve backend directory %q: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("backend directory does not exist: %s", absRoot)
		}
		return nil, fmt.Errorf("failed to stat backend directory %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backend directory is not a directory: %s", absRoot)
	}

	catalog := NewCatalog()
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != manifestFilename {
			return nil
		}

		dir := filepath.Dir(path)
		desc, err := loadBackend(dir, absRoot)
		if err != nil {
			logger("warn", "failed to load backend", "path", dir, "error", err.Error())
			return nil
		}
		if err := catalog.Add(desc); err != nil {
			existing, _ := catalog.Get(desc.Name)
			logger("warn", "duplicate backend ignored (keeping first discovered)",
				"backend", desc.Name, "ignored_path", desc.Path, "kept_path", existing.Path)
			return nil
		}

		logger("info", "discovered backend", "backend", desc.Name, "path", desc.Path,
			"version", desc.Version, "hooks", strings.Join(desc.HookNames(), ","))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan backend directory %s: %w", absRoot, err)
	}
	return catalog, nil
}

func loadBackend(dir, root string) (*Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := validateManifest(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	entrypoint := filepath.Join(dir, m.Entrypoint)
	if err := validateTrust(entrypoint, dir, root); err != nil {
		return nil, fmt.Errorf("trust validation failed: %w", err)
	}

	return &Descriptor{
		Name:        m.Name,
		Path:        dir,
		Entrypoint:  entrypoint,
		Protocol:    m.Protocol,
		Version:     m.Version,
		Description: m.Description,
		Hooks:       m.Hooks,
	}, nil
}

func validateManifest(m *Manifest) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if m.Protocol == 0 {
		return fmt.Errorf("protocol version is required")
	}
	if m.Protocol != protocol.Version {
		return fmt.Errorf("unsupported protocol version %d (supported: %d)", m.Protocol, protocol.Version)
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	if strings.Contains(m.Entrypoint, "..") {
		return fmt.Errorf("entrypoint contains path traversal: %s", m.Entrypoint)
	}
	if len(m.Hooks) == 0 {
		return fmt.Errorf("at least one hook must be declared")
	}
	return nil
}

// validateTrust requires the entrypoint to resolve inside both the backend
// directory and the configured root, to be executable, and the backend
// directory not to be world-writable.
func validateTrust(entrypoint, dir, root string) error {
	resolvedEntrypoint, err := filepath.EvalSymlinks(entrypoint)
	if err != nil {
		return fmt.Errorf("failed to resolve entrypoint symlink: %w", err)
	}
	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve backend path symlink: %w", err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("failed to resolve backend root symlink %s: %w", root, err)
	}

	sep := string(os.PathSeparator)
	if !strings.HasPrefix(resolvedEntrypoint, resolvedRoot+sep) {
		return fmt.Errorf("entrypoint %s is not under backend root %s", resolvedEntrypoint, resolvedRoot)
	}
	if !strings.HasPrefix(resolvedEntrypoint, resolvedDir+sep) {
		return fmt.Errorf("entrypoint %s is not under backend directory %s", resolvedEntrypoint, resolvedDir)
	}

	info, err := os.Stat(resolvedEntrypoint)
	if err != nil {
		return fmt.Errorf("entrypoint not found: %w", err)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("entrypoint is not executable: %s", resolvedEntrypoint)
	}

	dirInfo, err := os.Stat(resolvedDir)
	if err != nil {
		return fmt.Errorf("backend directory not found: %w", err)
	}
	if dirInfo.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("backend directory is world-writable: %s", resolvedDir)
	}
	return nil
}

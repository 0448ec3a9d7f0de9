package backend

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/kpmd/internal/hook"
)

// Hooks is the list of hook points a backend implements. Entries may be
// short names (load, info, ...) or C symbols (kpm_load_module_path, ...).
type Hooks []hook.Point

func (h *Hooks) UnmarshalYAML(n *yaml.Node) error {
	if n == nil {
		*h = nil
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("hooks must be a sequence")
	}

	out := make([]hook.Point, 0, len(n.Content))
	seen := make(map[hook.Point]bool, len(n.Content))
	for _, item := range n.Content {
		if item.Kind != yaml.ScalarNode {
			return fmt.Errorf("invalid hook entry (must be a string)")
		}
		p, err := hook.ParsePoint(strings.TrimSpace(item.Value))
		if err != nil {
			return err
		}
		if seen[p] {
			return fmt.Errorf("hook %q declared twice", p)
		}
		seen[p] = true
		out = append(out, p)
	}

	*h = out
	return nil
}

// Manifest is the structure of a backend's manifest.yaml.
type Manifest struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Protocol    int    `yaml:"protocol"`
	Entrypoint  string `yaml:"entrypoint"`
	Description string `yaml:"description,omitempty"`
	Hooks       Hooks  `yaml:"hooks"`
}

// Descriptor is a discovered and validated backend.
type Descriptor struct {
	Name        string
	Path        string // absolute backend directory
	Entrypoint  string // absolute path to the executable
	Protocol    int
	Version     string
	Description string
	Hooks       Hooks
}

// Implements reports whether the backend declared p.
func (d *Descriptor) Implements(p hook.Point) bool {
	for _, h := range d.Hooks {
		if h == p {
			return true
		}
	}
	return false
}

// HookNames returns the declared hooks as short names, in manifest order.
func (d *Descriptor) HookNames() []string {
	out := make([]string, 0, len(d.Hooks))
	for _, h := range d.Hooks {
		out = append(out, h.String())
	}
	return out
}

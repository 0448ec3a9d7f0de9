package config

import (
	"time"

	"github.com/mattjoyce/kpmd/internal/usermem"
)

// Config represents the complete kpmd configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Caller  CallerConfig  `yaml:"caller"`
	Backend BackendConfig `yaml:"backend"`
	Journal JournalConfig `yaml:"journal"`
	Events  EventsConfig  `yaml:"events"`
	API     APIConfig     `yaml:"api"`

	// SourceDir is the absolute directory the configuration was loaded from.
	// Relative paths in the config resolve against it.
	SourceDir string `yaml:"-"`

	// Warnings holds non-fatal integrity findings from Load.
	Warnings []string `yaml:"-"`
}

// ServiceConfig contains core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LockPath  string `yaml:"lock_path"`
}

// CallerConfig describes the caller address spaces the control surface builds.
type CallerConfig struct {
	// AddressLimit is the first address a caller may not touch.
	AddressLimit uint64 `yaml:"address_limit"`
}

// BackendConfig selects the loader backend that serves the hook points.
type BackendConfig struct {
	Dir     string         `yaml:"dir"`
	Name    string         `yaml:"name"`
	Timeout time.Duration  `yaml:"timeout"`
	Grace   time.Duration  `yaml:"grace"`
	Hooks   []string       `yaml:"hooks,omitempty"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// JournalConfig controls the SQLite dispatch journal.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// EventsConfig sizes the in-memory event ring.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// APIConfig configures the HTTP control surface.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig holds bearer credentials. tokens.yaml, when present, replaces
// Tokens and may set APIKey.
type APIAuthConfig struct {
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken is a bearer token with its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// tokensFile is the shape of tokens.yaml.
type tokensFile struct {
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens"`
}

// Defaults returns a Config with default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "kpmd",
			LogLevel:  "info",
			LogFormat: "json",
			LockPath:  "kpmd.lock",
		},
		Caller: CallerConfig{
			AddressLimit: uint64(usermem.DefaultAddressLimit),
		},
		Backend: BackendConfig{
			Dir:     "backends",
			Timeout: 10 * time.Second,
			Grace:   5 * time.Second,
		},
		Journal: JournalConfig{
			Enabled:   true,
			Path:      "kpmd.db",
			Retention: 7 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Buffer: 256,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8089",
		},
	}
}

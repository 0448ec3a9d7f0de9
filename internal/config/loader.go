package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/kpmd/internal/auth"
	"github.com/mattjoyce/kpmd/internal/hook"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the configuration at configPath, which may be a config
// directory or a kpmd.yaml file. tokens.yaml next to the main file replaces
// the API tokens. Integrity is checked against .checksums first: a tampered
// tokens.yaml fails the load, other findings land in Config.Warnings.
func Load(configPath string) (*Config, error) {
	files, err := resolveFiles(configPath)
	if err != nil {
		return nil, err
	}

	integrity, err := VerifyIntegrity(files)
	if err != nil {
		return nil, err
	}
	if !integrity.Passed {
		return nil, fmt.Errorf("config integrity check failed: %s\n"+
			"If you edited these files intentionally, run: kpmd config lock --config %s",
			strings.Join(integrity.Errors, "; "), files.Root)
	}

	cfg := Defaults()
	if err := decodeFile(files.Config, cfg); err != nil {
		return nil, err
	}
	if files.Tokens != "" {
		var tf tokensFile
		if err := decodeFile(files.Tokens, &tf); err != nil {
			return nil, err
		}
		if tf.APIKey != "" {
			cfg.API.Auth.APIKey = tf.APIKey
		}
		cfg.API.Auth.Tokens = tf.Tokens
	}

	cfg.SourceDir = files.Root
	cfg.Warnings = integrity.Warnings
	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolveFiles returns the files Load would read for configPath.
func ResolveFiles(configPath string) (*ConfigFiles, error) {
	return resolveFiles(configPath)
}

func resolveFiles(configPath string) (*ConfigFiles, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		return DiscoverConfigFiles(absPath)
	}

	dir := filepath.Dir(absPath)
	files := &ConfigFiles{Root: dir, Config: absPath}
	if path := filepath.Join(dir, TokensFile); fileExists(path) {
		files.Tokens = path
	}
	return files, nil
}

// decodeFile reads path, expands ${VAR} references and decodes it strictly
// into out. An empty file leaves out untouched.
func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// applyConfigDefaults fills zeroed fields and resolves relative paths
// against the config directory.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.LockPath == "" {
		cfg.Service.LockPath = defaults.Service.LockPath
	}
	if cfg.Caller.AddressLimit == 0 {
		cfg.Caller.AddressLimit = defaults.Caller.AddressLimit
	}
	if cfg.Backend.Dir == "" {
		cfg.Backend.Dir = defaults.Backend.Dir
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = defaults.Backend.Timeout
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaults.Journal.Path
	}
	if cfg.Events.Buffer == 0 {
		cfg.Events.Buffer = defaults.Events.Buffer
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	cfg.Service.LockPath = cfg.resolvePath(cfg.Service.LockPath)
	cfg.Backend.Dir = cfg.resolvePath(cfg.Backend.Dir)
	cfg.Journal.Path = cfg.resolvePath(cfg.Journal.Path)
	return cfg
}

func (c *Config) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.SourceDir == "" {
		return p
	}
	return filepath.Join(c.SourceDir, p)
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validate rejects it where a value is required.
		return match
	})
}

func unresolvedEnv(field, value string) error {
	matches := envVarPattern.FindStringSubmatch(value)
	if len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if cfg.Backend.Grace < 0 {
		return fmt.Errorf("backend.grace must not be negative")
	}
	if _, err := cfg.HookPoints(); err != nil {
		return err
	}

	if cfg.Journal.Retention < 0 {
		return fmt.Errorf("journal.retention must not be negative")
	}
	if cfg.Events.Buffer < 0 {
		return fmt.Errorf("events.buffer must be positive")
	}

	if cfg.API.Enabled {
		if err := unresolvedEnv("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api is enabled but api.auth has no api_key or tokens")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			field := fmt.Sprintf("api.auth.tokens[%d]", i)
			if tok.Token == "" {
				return fmt.Errorf("%s.token is required", field)
			}
			if err := unresolvedEnv(field+".token", tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("%s.scopes must be non-empty", field)
			}
			for _, s := range tok.Scopes {
				if !auth.ValidScope(s) {
					return fmt.Errorf("%s.scopes: unknown scope %q (want %s, %s or %s)",
						field, s, auth.ScopeRead, auth.ScopeWrite, auth.ScopeAll)
				}
			}
		}
	}

	return nil
}

// HookPoints parses backend.hooks. An empty list means every point the
// backend declares.
func (c *Config) HookPoints() ([]hook.Point, error) {
	points := make([]hook.Point, 0, len(c.Backend.Hooks))
	seen := make(map[hook.Point]bool, len(c.Backend.Hooks))
	for _, name := range c.Backend.Hooks {
		p, err := hook.ParsePoint(name)
		if err != nil {
			return nil, fmt.Errorf("backend.hooks: %w", err)
		}
		if seen[p] {
			return nil, fmt.Errorf("backend.hooks: %s listed twice", p)
		}
		seen[p] = true
		points = append(points, p)
	}
	return points, nil
}

// TokenConfigs converts the configured API tokens for the auth package.
func (c *Config) TokenConfigs() []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(c.API.Auth.Tokens))
	for _, t := range c.API.Auth.Tokens {
		out = append(out, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	return out
}

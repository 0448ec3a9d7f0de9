package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Well-known file names inside a config directory.
const (
	MainFile      = "kpmd.yaml"
	TokensFile    = "tokens.yaml"
	ChecksumsFile = ".checksums"
)

// Tier classifies how an integrity failure in a file is treated.
type Tier int

const (
	// TierOperational files only warn on mismatch.
	TierOperational Tier = iota
	// TierHighSecurity files fail the load on mismatch.
	TierHighSecurity
)

// ConfigFiles lists the files discovered in a config directory.
type ConfigFiles struct {
	Root   string
	Config string
	Tokens string
}

// AllFiles returns every discovered file.
func (cf *ConfigFiles) AllFiles() []string {
	files := []string{cf.Config}
	if cf.Tokens != "" {
		files = append(files, cf.Tokens)
	}
	return files
}

// HighSecurityFiles returns the discovered files whose tampering is fatal.
func (cf *ConfigFiles) HighSecurityFiles() []string {
	var files []string
	for _, f := range cf.AllFiles() {
		if cf.FileTier(f) == TierHighSecurity {
			files = append(files, f)
		}
	}
	return files
}

// FileTier returns the tier for path.
func (cf *ConfigFiles) FileTier(path string) Tier {
	if path != "" && path == cf.Tokens {
		return TierHighSecurity
	}
	return TierOperational
}

// DiscoverConfigFiles resolves the files of the config directory dir.
// kpmd.yaml is mandatory.
func DiscoverConfigFiles(dir string) (*ConfigFiles, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config dir %q: %w", dir, err)
	}

	cf := &ConfigFiles{Root: absDir}

	configPath := filepath.Join(absDir, MainFile)
	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("%s not found in %s: %w", MainFile, absDir, err)
	}
	cf.Config = configPath

	if path := filepath.Join(absDir, TokensFile); fileExists(path) {
		cf.Tokens = path
	}
	return cf, nil
}

// DiscoverConfigDir finds the config directory by checking standard locations.
// Priority order: $KPMD_CONFIG_DIR, ~/.config/kpmd, /etc/kpmd.
func DiscoverConfigDir() (string, error) {
	var candidates []string
	if dir := os.Getenv("KPMD_CONFIG_DIR"); dir != "" {
		candidates = append(candidates, dir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "kpmd"))
	}
	candidates = append(candidates, "/etc/kpmd")

	for _, dir := range candidates {
		if fileExists(filepath.Join(dir, MainFile)) {
			return dir, nil
		}
	}
	return "", fmt.Errorf("no config directory found (looked in %v)", candidates)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

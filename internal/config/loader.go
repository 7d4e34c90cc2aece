package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/secretguard/internal/binary"
)

const (
	DefaultScanTimeout  = 10 * time.Minute
	DefaultMaxRedirects = 1
	DefaultMode         = "auto"
	DefaultOverlap      = "wait"
	DefaultLogLevel     = "info"
	ConfigFileName      = "secretguard.yaml"
)

// StateDir returns ~/.secretguard.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".secretguard"), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a configuration from the given YAML file path,
// then fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches ./secretguard.yaml, then ~/.secretguard/config.yaml,
// and falls back to Default when neither exists. The returned path is empty
// for the built-in defaults.
func LoadDefault() (*Config, string, error) {
	candidates := []string{ConfigFileName}
	if dir, err := StateDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}
	return Default(), "", nil
}

// applyDefaults fills every unset field. Platform entries from the file
// override the built-in table per key; keys the file does not mention keep
// their built-in descriptor.
func applyDefaults(cfg *Config) {
	s := &cfg.Scanner
	if s.BinaryName == "" {
		s.BinaryName = binary.DefaultName
	}
	if s.Mode == "" {
		s.Mode = DefaultMode
	}
	if s.Timeout == "" {
		s.Timeout = DefaultScanTimeout.String()
	}
	if s.Overlap == "" {
		s.Overlap = DefaultOverlap
	}
	if len(s.GlobalPaths) == 0 {
		s.GlobalPaths = binary.DefaultGlobalPaths(s.BinaryName)
	}
	if len(s.WorkspacePaths) == 0 {
		s.WorkspacePaths = binary.DefaultWorkspacePaths(s.BinaryName)
	}

	d := &cfg.Download
	if d.IdleTimeout == "" {
		d.IdleTimeout = binary.DefaultIdleTimeout.String()
	}
	if d.GlobalBinDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			d.GlobalBinDir = filepath.Join(home, ".local", "bin")
		}
	}

	st := &cfg.Storage
	if st.Dir == "" {
		if dir, err := StateDir(); err == nil {
			st.Dir = dir
		}
	}
	if st.Database == "" && st.Dir != "" {
		st.Database = filepath.Join(st.Dir, "history.db")
	}

	merged := binary.DefaultDescriptors()
	for key, desc := range cfg.Platforms {
		merged[key] = desc
	}
	cfg.Platforms = merged

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

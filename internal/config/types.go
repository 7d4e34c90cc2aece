package config

import (
	"time"

	"github.com/lucasnoah/secretguard/internal/binary"
)

// Config is the top-level secretguard configuration.
type Config struct {
	Scanner   ScannerConfig      `yaml:"scanner"`
	Download  DownloadConfig     `yaml:"download"`
	Storage   StorageConfig      `yaml:"storage"`
	Platforms binary.Descriptors `yaml:"platforms"`
	Log       LogConfig          `yaml:"log"`
}

// ScannerConfig controls binary resolution and process execution.
type ScannerConfig struct {
	BinaryName     string   `yaml:"binary_name"`
	Mode           string   `yaml:"mode"`    // auto | path-only
	Timeout        string   `yaml:"timeout"` // "0" disables
	Overlap        string   `yaml:"overlap"` // wait | reject
	GlobalPaths    []string `yaml:"global_paths"`
	WorkspacePaths []string `yaml:"workspace_paths"`
}

// DownloadConfig controls provisioning of a prebuilt binary.
type DownloadConfig struct {
	IdleTimeout   string `yaml:"idle_timeout"`
	MaxRedirects  *int   `yaml:"max_redirects"`
	InstallGlobal *bool  `yaml:"install_global"`
	GlobalBinDir  string `yaml:"global_bin_dir"`
}

// StorageConfig locates the cache, history database and artifacts.
type StorageConfig struct {
	Dir           string `yaml:"dir"`
	Database      string `yaml:"database"`
	KeepArtifacts bool   `yaml:"keep_artifacts"`
	RedactMatches *bool  `yaml:"redact_matches"`
}

// LogConfig sets the diagnostic log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ScanTimeout returns the parsed scan timeout; zero means none.
func (c *Config) ScanTimeout() time.Duration {
	return parseDuration(c.Scanner.Timeout, DefaultScanTimeout)
}

// IdleTimeout returns the parsed download inactivity timeout.
func (c *Config) IdleTimeout() time.Duration {
	return parseDuration(c.Download.IdleTimeout, binary.DefaultIdleTimeout)
}

// Redirects returns how many redirects a download may follow.
func (c *Config) Redirects() int {
	if c.Download.MaxRedirects == nil {
		return DefaultMaxRedirects
	}
	return *c.Download.MaxRedirects
}

// InstallGlobal reports whether provisioning copies into the global bin dir.
func (c *Config) InstallGlobal() bool {
	return c.Download.InstallGlobal == nil || *c.Download.InstallGlobal
}

// Redact reports whether stored findings have their matches masked.
func (c *Config) Redact() bool {
	return c.Storage.RedactMatches == nil || *c.Storage.RedactMatches
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

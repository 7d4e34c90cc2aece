package config

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var sha256Re = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

var validModes = map[string]bool{
	"auto":      true,
	"path-only": true,
}

var validOverlap = map[string]bool{
	"wait":   true,
	"reject": true,
}

// Validate checks a Config for semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	s := cfg.Scanner
	if s.BinaryName == "" {
		add("scanner.binary_name", "is required")
	} else if strings.ContainsAny(s.BinaryName, `/\`) {
		add("scanner.binary_name", "must be a file name, not a path")
	}
	if !validModes[s.Mode] {
		add("scanner.mode", "unknown mode %q (expected auto or path-only)", s.Mode)
	}
	if s.Timeout != "0" {
		if d, err := time.ParseDuration(s.Timeout); err != nil {
			add("scanner.timeout", "invalid duration %q", s.Timeout)
		} else if d < 0 {
			add("scanner.timeout", "must not be negative")
		}
	}
	if !validOverlap[s.Overlap] {
		add("scanner.overlap", "unknown policy %q (expected wait or reject)", s.Overlap)
	}

	d := cfg.Download
	if dur, err := time.ParseDuration(d.IdleTimeout); err != nil {
		add("download.idle_timeout", "invalid duration %q", d.IdleTimeout)
	} else if dur <= 0 {
		add("download.idle_timeout", "must be positive")
	}
	if d.MaxRedirects != nil && *d.MaxRedirects < 0 {
		add("download.max_redirects", "must not be negative")
	}

	keys := make([]string, 0, len(cfg.Platforms))
	for k := range cfg.Platforms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := cfg.Platforms[k]
		field := "platforms." + k
		if p.DownloadURL == "" && p.ExpectedChecksum == "" {
			// An emptied entry opts the platform out of downloads.
			continue
		}
		if !sha256Re.MatchString(p.ExpectedChecksum) {
			add(field+".sha256", "must be 64 hex characters")
		}
		u, err := url.Parse(p.DownloadURL)
		if err != nil || u.Host == "" {
			add(field+".url", "invalid URL %q", p.DownloadURL)
		} else if u.Scheme != "https" {
			add(field+".url", "must use https")
		}
	}

	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		add("log.level", "unknown level %q", cfg.Log.Level)
	}
	return errs
}

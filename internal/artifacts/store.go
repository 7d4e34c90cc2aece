// Package artifacts keeps the raw scanner output of recorded scans on disk.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lucasnoah/secretguard/internal/fsutil"
	"github.com/lucasnoah/secretguard/internal/report"
	"github.com/lucasnoah/secretguard/internal/scan"
)

const (
	StdoutFile  = "stdout.txt"
	StderrFile  = "stderr.txt"
	OutcomeFile = "outcome.json"
)

// Store writes per-scan artifacts under <root>/scans/<id>/.
type Store struct {
	root   string
	redact bool
}

// NewStore creates a store rooted at dir. With redact set, outcome.json
// carries masked matches; the raw stdout is written as emitted.
func NewStore(dir string, redact bool) *Store {
	return &Store{root: dir, redact: redact}
}

// Dir returns the artifact directory for a scan id.
func (s *Store) Dir(id int64) string {
	return filepath.Join(s.root, "scans", strconv.FormatInt(id, 10))
}

// Save writes stdout, stderr and the outcome for scan id and returns the
// directory used.
func (s *Store) Save(id int64, o *scan.ScanOutcome) (string, error) {
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := fsutil.WriteAtomic(filepath.Join(dir, StdoutFile), []byte(o.RawOutput), 0o600); err != nil {
		return "", fmt.Errorf("write stdout: %w", err)
	}
	if err := fsutil.WriteAtomic(filepath.Join(dir, StderrFile), []byte(o.Stderr), 0o600); err != nil {
		return "", fmt.Errorf("write stderr: %w", err)
	}

	saved := *o
	saved.RawOutput = ""
	if s.redact {
		saved.Findings = report.RedactFindings(o.Findings)
	}
	if err := fsutil.WriteJSON(filepath.Join(dir, OutcomeFile), &saved); err != nil {
		return "", fmt.Errorf("write outcome: %w", err)
	}
	return dir, nil
}

// Load reads the outcome saved for scan id.
func (s *Store) Load(id int64) (*scan.ScanOutcome, error) {
	var o scan.ScanOutcome
	if err := fsutil.ReadJSON(filepath.Join(s.Dir(id), OutcomeFile), &o); err != nil {
		return nil, fmt.Errorf("load outcome %d: %w", id, err)
	}
	raw, err := os.ReadFile(filepath.Join(s.Dir(id), StdoutFile))
	if err != nil {
		return nil, fmt.Errorf("load stdout %d: %w", id, err)
	}
	o.RawOutput = string(raw)
	return &o, nil
}

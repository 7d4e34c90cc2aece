package scan

import (
	"time"

	"github.com/lucasnoah/secretguard/internal/binary"
)

// RawScanResult is what the process runner observed, before parsing.
type RawScanResult struct {
	ExitCode int
	Stderr   string
	Duration time.Duration
}

// ScanOutcome is the result of one completed scan.
type ScanOutcome struct {
	Workspace      string                 `json:"workspace"`
	Binary         binary.Resolved        `json:"binary"`
	ExitCode       int                    `json:"exit_code"`
	Findings       []Finding              `json:"findings"`
	DiagnosticText []string               `json:"diagnostic_text"`
	ParseFailures  []ParseRecoveryFailure `json:"parse_failures,omitempty"`
	RawOutput      string                 `json:"raw_output"`
	Stderr         string                 `json:"stderr,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	Duration       time.Duration          `json:"duration"`
}

// Clean reports whether the scan found nothing.
func (o *ScanOutcome) Clean() bool {
	return len(o.Findings) == 0
}

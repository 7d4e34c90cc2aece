package scan

import (
	"errors"
	"fmt"
	"time"
)

// ErrScanInProgress is returned when the overlap policy rejects a second
// scan of a workspace that is already being scanned.
var ErrScanInProgress = errors.New("a scan is already running for this workspace")

// SpawnError means the OS could not start the scanner process.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to execute scanner %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// NonRecoverableExitError is an exit code other than 0 (clean) or 1
// (findings present).
type NonRecoverableExitError struct {
	ExitCode int
	Stderr   string
}

func (e *NonRecoverableExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("scanner exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("scanner exited with code %d. Error: %s", e.ExitCode, e.Stderr)
}

// TimeoutError means the scanner was killed after exceeding the configured
// scan timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scanner did not finish within %s and was terminated", e.Timeout)
}

// ParseRecoveryFailure records a candidate line that neither the strict nor
// the fallback decoder could turn into a finding. The line is dropped and
// the scan continues.
type ParseRecoveryFailure struct {
	Line string `json:"line"`
}

func (f ParseRecoveryFailure) Error() string {
	return "failed to parse secret data: " + f.Line
}

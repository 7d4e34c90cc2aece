package cli

import (
	"errors"
	"fmt"

	"github.com/lucasnoah/secretguard/internal/binary"
	"github.com/lucasnoah/secretguard/internal/scan"
)

// ExitError carries a process exit status without an error message.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// errFindings is returned by scan when secrets were found.
var errFindings = &ExitError{Code: 2}

// Describe turns an error into operator guidance.
func Describe(err error) string {
	var (
		downloadErr *binary.DownloadError
		verifyErr   *binary.VerificationError
		spawnErr    *scan.SpawnError
		timeoutErr  *scan.TimeoutError
	)
	switch {
	case errors.Is(err, binary.ErrPlatformUnsupported):
		return fmt.Sprintf("%v\nAfter installing it, make sure secret_scanner is on PATH.", err)
	case errors.Is(err, binary.ErrNotFound):
		return fmt.Sprintf("%v\nRun `secretguard binary install` or put secret_scanner on PATH.", err)
	case errors.As(err, &verifyErr):
		return fmt.Sprintf("%v\nThe download was discarded. Retry with `secretguard binary install`.", err)
	case errors.As(err, &downloadErr):
		return fmt.Sprintf("%v\nCheck your network connection and retry with `secretguard binary install`.", err)
	case errors.As(err, &spawnErr):
		return fmt.Sprintf("%v\nCheck that the file exists and is executable.", err)
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("%v\nRaise scanner.timeout or pass --timeout.", err)
	case errors.Is(err, scan.ErrScanInProgress):
		return fmt.Sprintf("%v\nWait for it to finish or set scanner.overlap: wait.", err)
	}
	return err.Error()
}

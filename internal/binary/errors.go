package binary

import (
	"errors"
	"fmt"
)

// ErrNotFound means every acquisition strategy came up empty.
var ErrNotFound = errors.New("secret scanner binary not found")

// ErrPlatformUnsupported is a NotFound for which no download exists, so the
// operator has to install the scanner by hand.
var ErrPlatformUnsupported = fmt.Errorf("%w: no prebuilt binary for this platform (install manually from %s)", ErrNotFound, ReleasesURL)

// DownloadError reports a network or HTTP failure while fetching a binary.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("download %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	}
}

func (e *DownloadError) Unwrap() error { return e.Err }

// VerificationError reports a checksum mismatch. The offending file has
// already been removed when this error is returned.
type VerificationError struct {
	Path     string
	Expected string
	Actual   string
	Detected string // sniffed payload type, e.g. "elf" or "unknown"
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: sha256 %s, want %s (payload type: %s)",
		e.Path, e.Actual, e.Expected, e.Detected)
}

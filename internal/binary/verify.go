package binary

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/h2non/filetype"
)

// FileDigest returns the lowercase hex SHA-256 of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify compares the file's digest against expected. On mismatch the file
// is deleted and a *VerificationError is returned.
func Verify(path, expected string) error {
	actual, err := FileDigest(path)
	if err != nil {
		return err
	}
	if actual == strings.ToLower(strings.TrimSpace(expected)) {
		return nil
	}

	detected := sniff(path)
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("remove unverified binary %s: %w", path, rmErr)
	}
	return &VerificationError{
		Path:     path,
		Expected: strings.ToLower(expected),
		Actual:   actual,
		Detected: detected,
	}
}

// sniff names the payload type from its magic bytes. An HTML error page
// served with status 200 shows up as "unknown" rather than "elf".
func sniff(path string) string {
	kind, err := filetype.MatchFile(path)
	if err != nil || kind == filetype.Unknown {
		return "unknown"
	}
	return kind.Extension
}

//go:build !windows

package binary

import "os"

// MakeExecutable sets the owner/group/other execute bits.
func MakeExecutable(path string) error {
	return os.Chmod(path, 0o755)
}

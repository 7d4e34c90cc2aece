//go:build windows

package binary

// MakeExecutable is a no-op: Windows has no execute permission bit.
func MakeExecutable(path string) error {
	return nil
}

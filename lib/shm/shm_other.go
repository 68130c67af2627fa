//go:build !linux

package shm

import (
	"os"
	"path/filepath"
)

// regionPath returns the backing path for a region name.
func regionPath(name string) string {
	return filepath.Join(os.TempDir(), name)
}

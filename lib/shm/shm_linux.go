package shm

import (
	"os"
	"path/filepath"
)

// regionPath returns the backing path for a region name. /dev/shm gives a
// tmpfs-backed region visible to other processes by name.
func regionPath(name string) string {
	const shmDir = "/dev/shm"
	if fi, err := os.Stat(shmDir); err == nil && fi.IsDir() {
		return filepath.Join(shmDir, name)
	}
	return filepath.Join(os.TempDir(), name)
}

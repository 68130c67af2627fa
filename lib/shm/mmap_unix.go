//go:build linux || darwin || freebsd || netbsd || openbsd

package shm

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapRegion(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func unmapRegion(mem []byte) error {
	if mem == nil {
		return nil
	}
	return unix.Munmap(mem)
}

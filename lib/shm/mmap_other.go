//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package shm

import (
	"errors"
	"os"
)

func mapRegion(f *os.File, size int) ([]byte, error) {
	return nil, errors.New("shared mappings not supported on this platform")
}

func unmapRegion(mem []byte) error {
	return nil
}

// Package diskusage returns the disk usage of the filesystem passed in.
package diskusage

import "errors"

// Info is returned from New showing details about the filesystem.
type Info struct {
	Free      uint64 // total free bytes
	Available uint64 // free bytes available to the current user
	Total     uint64 // total bytes on the filesystem
}

// ErrUnsupported is returned if this platform doesn't support disk usage.
var ErrUnsupported = errors.New("disk usage not supported on this platform")

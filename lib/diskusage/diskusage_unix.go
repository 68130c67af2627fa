//go:build linux || darwin || freebsd || netbsd || openbsd

package diskusage

import "golang.org/x/sys/unix"

// New returns the disk status for dir.
func New(dir string) (info Info, err error) {
	var statfs unix.Statfs_t
	err = unix.Statfs(dir, &statfs)
	if err != nil {
		return info, err
	}
	bs := uint64(statfs.Bsize)
	info.Free = bs * uint64(statfs.Bfree)
	info.Available = bs * uint64(statfs.Bavail)
	info.Total = bs * uint64(statfs.Blocks)
	return info, nil
}

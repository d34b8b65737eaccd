//go:build !windows

package main

import "golang.org/x/sys/unix"

// freeSpace returns the bytes available to the caller under dir, or 0 when
// it cannot be determined.
func freeSpace(dir string) int64 {
	var fs unix.Statfs_t
	if err := unix.Statfs(dir, &fs); err != nil {
		return 0
	}
	return int64(fs.Bavail) * int64(fs.Bsize)
}

//go:build !windows

package filelock

import (
	"os"

	"golang.org/x/sys/unix"
)

// Lock takes an exclusive, advisory, non-blocking lock on f.
func Lock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

//go:build linux

package loader

import (
	"os"

	"golang.org/x/sys/unix"
)

// openSequential opens path and hints the kernel that it will be read once,
// front to back.
func openSequential(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	return f, nil
}

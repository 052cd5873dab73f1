//go:build !linux

package loader

import "os"

func openSequential(path string) (*os.File, error) { return os.Open(path) }

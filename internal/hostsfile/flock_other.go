//go:build !unix

package hostsfile

import "os"

// Only the in-process lock applies on platforms without flock.
func tryLockFile(f *os.File) (bool, error) { return true, nil }

func unlockFile(f *os.File) error { return nil }

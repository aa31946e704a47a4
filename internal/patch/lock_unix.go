//go:build unix

package patch

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

type flockLock struct {
	file *os.File
}

// AcquireLock takes an exclusive, non-blocking flock on path. The lock
// dies with the process, so a crashed run never wedges later ones.
func AcquireLock(path string) (Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("flock: %w", err)
	}
	return &flockLock{file: file}, nil
}

func (l *flockLock) Release() error {
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}

//go:build !unix

package patch

import (
	"errors"
	"fmt"
	"os"
)

type fileLock struct {
	path string
}

// AcquireLock creates path exclusively. Unlike the flock variant a stale
// file survives a crash and has to be removed by hand.
func AcquireLock(path string) (Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	_ = f.Close()
	return &fileLock{path: path}, nil
}

func (l *fileLock) Release() error {
	return os.Remove(l.path)
}

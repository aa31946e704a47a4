package patch

import "errors"

// LockFileName is the default run lock, created inside the bundle dir.
const LockFileName = ".toolguard.lock"

// ErrLocked is returned when another run already holds the lock.
var ErrLocked = errors.New("enforcement run already in progress")

// Lock is a held run lock.
type Lock interface {
	Release() error
}

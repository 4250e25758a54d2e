package repo

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrNotLocked is returned by Save when the caller does not hold the lock.
	ErrNotLocked = errors.New("document not locked by operator")

	// ErrUnauthorized is returned for bad credentials or an invalid session.
	ErrUnauthorized = errors.New("unauthorized")
)

// LockHeldError is returned by Checkout when another operator holds the lock
// and force was not requested.
type LockHeldError struct {
	ID     DocID
	Holder string
}

func (e *LockHeldError) Error() string {
	if e.Holder == "" {
		return fmt.Sprintf("document %s is locked", e.ID)
	}
	return fmt.Sprintf("document %s is locked by %s", e.ID, e.Holder)
}

// IsLockHeld returns true if err is (or wraps) a LockHeldError.
func IsLockHeld(err error) bool {
	var le *LockHeldError
	return errors.As(err, &le)
}

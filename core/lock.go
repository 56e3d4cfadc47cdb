package core

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotObtained is returned by a Locker when another holder owns the lock.
var ErrLockNotObtained = errors.New("lock not obtained")

type (
	// Locker hands out locks shared across processes.
	Locker interface {
		Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
	}

	Lock interface {
		// Release frees the lock if it is still held by its owner.
		Release(ctx context.Context) error
	}
)

package lock

import (
	"context"
	"errors"
	"time"
)

// ErrHeld is returned by Do when another holder owns the key.
var ErrHeld = errors.New("lock: held by another holder")

// Release gives the lock back. Releasing after expiry is a no-op.
type Release func(ctx context.Context) error

// Locker hands out short-lived exclusive leases on a key. TryLock never
// blocks waiting for the holder: ok is false when the key is taken.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release Release, ok bool, err error)
}

// Do runs fn while holding key.
func Do(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	release, ok, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer func() {
		// the pass may have been cancelled; the lease must still go back
		_ = release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

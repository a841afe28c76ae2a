package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker for single-instance deployments and CLI runs.
type Local struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

type lease struct {
	token   uint64
	expires time.Time
}

func NewLocal() *Local {
	return &Local{leases: make(map[string]lease), now: time.Now}
}

func (l *Local) TryLock(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}

	next := l.leases[key].token + 1
	l.leases[key] = lease{token: next, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.leases[key]; ok && cur.token == next {
			delete(l.leases, key)
		}
		return nil
	}, true, nil
}

package scheduler

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is an in-process aml.ScanLocker for single-instance deployments
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, held := l.leases[key]; held && now.Before(exp) {
		return nil, false, nil
	}
	exp := now.Add(ttl)
	l.leases[key] = exp

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// only drop our own lease
		if cur, ok := l.leases[key]; ok && cur.Equal(exp) {
			delete(l.leases, key)
		}
		return nil
	}
	return release, true, nil
}

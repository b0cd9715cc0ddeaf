package memory

import (
	"context"
	"sync"
	"time"

	"patient-access/internal/domain/accessgrants"
)

// RequestLock es el lock de un solo proceso. Con varias instancias hay que usar el de Redis.
type RequestLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

var _ accessgrants.RequestLock = (*RequestLock)(nil)

func NewRequestLock() *RequestLock {
	return &RequestLock{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

func (l *RequestLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[key] = until

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// Solo libera si sigue siendo nuestro (no venció y lo tomó otro).
		if cur, ok := l.held[key]; ok && cur.Equal(until) {
			delete(l.held, key)
		}
	}
	return release, true, nil
}

package lock

import (
	"context"
	"sync"
	"time"
)

// Locker provides per-submission mutual exclusion so a manual retry request
// cannot race a scheduled automatic retry for the same submission id.
// TryAcquire returns false when another attempt already owns the key.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryLocker is a single-process Locker. Entries expire after their TTL so
// a crashed attempt cannot wedge a submission forever.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

func (m *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if expiry, ok := m.held[key]; ok && now.Before(expiry) {
		return false, nil
	}
	m.held[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryLocker) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
	return nil
}

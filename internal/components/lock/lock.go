// Package lock provides single-flight locks keyed by name.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned by TryLock when the key is already held.
var ErrLocked = errors.New("lock is held")

// ErrLost is returned by Lease.Refresh once the lock expired or was taken
// over by another holder.
var ErrLost = errors.New("lock was lost")

// Lease is a held lock.
type Lease interface {
	// Refresh extends the lock to ttl from now.
	Refresh(ctx context.Context, ttl time.Duration) error
	// Unlock releases the lock, it is a no-op once the lock is lost.
	Unlock(ctx context.Context) error
}

// Locker hands out non-blocking exclusive locks.
//
// note: fault injection point
type Locker interface {
	// TryLock acquires key or fails immediately with ErrLocked. The lock
	// expires after ttl unless it is refreshed or released.
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// MemoryLocker is a Locker local to the process.
type MemoryLocker struct {
	mu   *sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryLocker() MemoryLocker {
	return MemoryLocker{
		mu:   &sync.Mutex{},
		held: map[string]time.Time{},
		now:  time.Now,
	}
}

func (m MemoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expiry, ok := m.held[key]
	if ok && now.Before(expiry) {
		return nil, ErrLocked
	}
	expiry = now.Add(ttl)
	m.held[key] = expiry
	return &memoryLease{locker: m, key: key, expiry: expiry}, nil
}

// memoryLease identifies its lock by expiry, a lock that expired and was
// taken over belongs to someone else.
type memoryLease struct {
	locker MemoryLocker
	key    string
	expiry time.Time
}

func (l *memoryLease) owned() bool {
	current, ok := l.locker.held[l.key]
	return ok && current.Equal(l.expiry) && l.locker.now().Before(current)
}

func (l *memoryLease) Refresh(ctx context.Context, ttl time.Duration) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if !l.owned() {
		return ErrLost
	}
	l.expiry = l.locker.now().Add(ttl)
	l.locker.held[l.key] = l.expiry
	return nil
}

func (l *memoryLease) Unlock(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if l.locker.held[l.key].Equal(l.expiry) {
		delete(l.locker.held, l.key)
	}
	return nil
}

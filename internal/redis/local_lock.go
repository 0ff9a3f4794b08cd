package redisclient

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LocalTherapistLocker is an in-process Locker for a single replica and tests.
type LocalTherapistLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

func NewLocalTherapistLocker() *LocalTherapistLocker {
	return &LocalTherapistLocker{locks: make(map[uuid.UUID]chan struct{})}
}

func (l *LocalTherapistLocker) slot(therapistID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[therapistID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[therapistID] = ch
	}
	return ch
}

// WithTherapistLock waits for the therapist's lock until ctx is done.
func (l *LocalTherapistLocker) WithTherapistLock(ctx context.Context, therapistID uuid.UUID, fn func(ctx context.Context) error) error {
	ch := l.slot(therapistID)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ErrLockNotAcquired
	}
	defer func() { <-ch }()

	return fn(ctx)
}

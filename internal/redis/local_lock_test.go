package redisclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTherapistLocker_Serializes(t *testing.T) {
	locker := NewLocalTherapistLocker()
	therapist := uuid.New()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithTherapistLock(context.Background(), therapist, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocalTherapistLocker_IndependentTherapists(t *testing.T) {
	locker := NewLocalTherapistLocker()
	a, b := uuid.New(), uuid.New()

	err := locker.WithTherapistLock(context.Background(), a, func(ctx context.Context) error {
		return locker.WithTherapistLock(ctx, b, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestLocalTherapistLocker_GivesUpWhenContextDone(t *testing.T) {
	locker := NewLocalTherapistLocker()
	therapist := uuid.New()

	err := locker.WithTherapistLock(context.Background(), therapist, func(context.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		return locker.WithTherapistLock(ctx, therapist, func(context.Context) error {
			t.Fatal("lock acquired twice")
			return nil
		})
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestLockKey(t *testing.T) {
	id := uuid.MustParse("6f1c2f43-8a55-4c1e-9a53-0f8f3b4a2d10")
	assert.Equal(t, "lock:therapist:6f1c2f43-8a55-4c1e-9a53-0f8f3b4a2d10", lockKey(id))
}

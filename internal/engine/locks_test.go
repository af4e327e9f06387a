package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSystemLocksSerializeSameKey(t *testing.T) {
	locks := newSystemLocks()
	var inside, maxInside int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			unlock, err := locks.acquire(context.Background(), "SYS-1")
			if err != nil {
				return err
			}
			defer unlock()
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
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locks.len())
}

func TestSystemLocksIndependentKeys(t *testing.T) {
	locks := newSystemLocks()
	unlockA, err := locks.acquire(context.Background(), "SYS-A")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locks.acquire(ctx, "SYS-B")
	require.NoError(t, err)
	unlockB()
}

func TestSystemLocksHonorContext(t *testing.T) {
	locks := newSystemLocks()
	unlock, err := locks.acquire(context.Background(), "SYS-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "SYS-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, locks.len())
}

package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The semaphore admits at most its capacity concurrently.
func TestSchedulerBoundsConcurrency(t *testing.T) {
	s := New(2, nil)
	defer s.Shutdown()

	var current, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Run(context.Background(), s, "task", time.Second, func(ctx context.Context) (int, error) {
				n := atomic.AddInt64(&current, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return 0, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestSchedulerTimeout(t *testing.T) {
	s := New(1, nil)
	defer s.Shutdown()

	_, err := Run(context.Background(), s, "slow", 30*time.Millisecond, func(ctx context.Context) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
}

// Shutdown rejects new tasks as Rejected, never as success.
func TestSchedulerRejectsAfterShutdown(t *testing.T) {
	s := New(1, nil)
	s.Shutdown()

	_, err := Run(context.Background(), s, "late", time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
}

func TestSchedulerRejectsCancelledContext(t *testing.T) {
	s := New(1, nil)
	defer s.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, s, "cancelled", time.Second, func(ctx context.Context) (int, error) {
		return 0, nil
	})
	assert.True(t, errors.Is(err, ErrRejected))
}

// The task's own error propagates untouched.
func TestSchedulerPropagatesTaskError(t *testing.T) {
	s := New(1, nil)
	defer s.Shutdown()

	sentinel := errors.New("model crashed")
	_, err := Run(context.Background(), s, "failing", time.Second, func(ctx context.Context) (int, error) {
		return 0, sentinel
	})
	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrRejected))
}

func TestSchedulerReturnsValue(t *testing.T) {
	s := New(1, nil)
	defer s.Shutdown()

	v, err := Run(context.Background(), s, "ok", time.Second, func(ctx context.Context) (string, error) {
		return "resultado", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "resultado", v)
}

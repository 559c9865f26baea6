// Package scheduler gates memory- and GPU-bound analyses through a
// bounded semaphore so that at most a tier-dependent number of heavy
// tasks run concurrently. Light analyses never go through here.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Typed task errors. Callers must distinguish a rejected or timed-out
// task from a task that ran and failed.
var (
	// ErrTimeout means the task exceeded its deadline (either waiting
	// for a permit or while running).
	ErrTimeout = errors.New("heavy task timed out")
	// ErrRejected means the scheduler refused the task before running
	// it (shut down, or the caller's context was already cancelled).
	ErrRejected = errors.New("heavy task rejected")
)

// DefaultTimeout bounds a heavy task when the caller passes zero.
const DefaultTimeout = 10 * time.Minute

// Scheduler bounds concurrent heavy work.
//
// Heavy-task callers must not themselves be heavy tasks: nesting Run
// calls can exhaust all permits on waiters and deadlock.
type Scheduler struct {
	sem      *semaphore.Weighted
	capacity int64
	logger   *zap.Logger
	done     chan struct{}
}

// New creates a scheduler admitting at most maxConcurrent tasks.
func New(maxConcurrent int, logger *zap.Logger) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		capacity: int64(maxConcurrent),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Capacity reports the maximum number of concurrent tasks.
func (s *Scheduler) Capacity() int { return int(s.capacity) }

// Shutdown rejects all future tasks. Running tasks finish.
func (s *Scheduler) Shutdown() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Run executes fn under a permit with the given timeout (zero means
// DefaultTimeout). The name is for observability only.
//
// The returned error is ErrRejected when no permit was obtained,
// ErrTimeout when the deadline passed, or fn's own error otherwise.
func Run[T any](ctx context.Context, s *Scheduler, name string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	select {
	case <-s.done:
		return zero, fmt.Errorf("%s: scheduler shut down: %w", name, ErrRejected)
	default:
	}
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%s: %v: %w", name, err, ErrRejected)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s: waited %s for permit: %w", name, time.Since(start).Round(time.Millisecond), ErrTimeout)
		}
		return zero, fmt.Errorf("%s: %v: %w", name, err, ErrRejected)
	}
	defer s.sem.Release(1)

	s.logger.Debug("heavy task admitted",
		zap.String("task", name),
		zap.Duration("queued", time.Since(start)))

	type outcome struct {
		value T
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome{v, err}
	}()

	select {
	case out := <-ch:
		s.logger.Debug("heavy task finished",
			zap.String("task", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(out.err))
		return out.value, out.err
	case <-ctx.Done():
		// The goroutine keeps the permit until fn returns; blocking I/O
		// inside fn is assumed bounded.
		<-ch
		s.logger.Warn("heavy task timed out",
			zap.String("task", name),
			zap.Duration("elapsed", time.Since(start)))
		return zero, fmt.Errorf("%s after %s: %w", name, timeout, ErrTimeout)
	}
}

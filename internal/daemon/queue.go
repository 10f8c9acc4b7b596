package daemon

import (
	"context"
	"sync"

	"github.com/mufancom/remote-workspace/internal/logger"
)

// Queue serializes units of work: at most one runs at a time, in submission
// order. A failing unit is logged and returned to its own submitter but
// never blocks later submissions.
type Queue struct {
	mu   sync.Mutex
	tail chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue chains fn behind the currently queued work and blocks until fn has
// run. The context cancels the wait and fn itself, but not units queued
// ahead of it.
func (q *Queue) Enqueue(ctx context.Context, name string, fn func(context.Context) error) error {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// The slot must stay sealed until the predecessor finishes;
			// closing it now would let the next unit overlap the one still
			// running.
			go func() {
				<-prev
				close(done)
			}()
			return ctx.Err()
		}
	}

	defer close(done)

	if err := fn(ctx); err != nil {
		logger.WithError(err).Errorf("%s failed", name)
		return err
	}
	return nil
}

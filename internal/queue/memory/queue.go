// Package memory provides the in-process record queue that feeds workers.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations. With zero
// capacity every Enqueue is a hand-off to a waiting worker.
type Queue struct {
	ch      chan harvest.BusinessRecord
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan harvest.BusinessRecord, capacity),
	}
}

// Enqueue pushes a record into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, record harvest.BusinessRecord) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- record:
		return nil
	}
}

// Dequeue pops the next record, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (harvest.BusinessRecord, error) {
	select {
	case <-ctx.Done():
		return harvest.BusinessRecord{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case record, ok := <-q.ch:
		if !ok {
			return harvest.BusinessRecord{}, ErrClosed
		}
		return record, nil
	}
}

// Close closes the underlying channel. Records already queued can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

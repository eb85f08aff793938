// Package queue provides the bounded in-process queue feeding sync workers.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/mcpindex/mcpindex/internal/catalog"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = errors.New("queue: closed")

// Memory is a bounded FIFO queue of sync jobs backed by a channel.
type Memory struct {
	items chan catalog.QueueItem

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMemory creates a queue holding at most depth items.
func NewMemory(depth int) *Memory {
	if depth <= 0 {
		depth = 16
	}
	return &Memory{
		items:  make(chan catalog.QueueItem, depth),
		closed: make(chan struct{}),
	}
}

// Enqueue blocks until there is room, the context is canceled, or the queue
// is closed.
func (q *Memory) Enqueue(ctx context.Context, item catalog.QueueItem) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.items <- item:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until an item is available, the context is canceled, or the
// queue is closed and drained.
func (q *Memory) Dequeue(ctx context.Context) (catalog.QueueItem, error) {
	select {
	case item := <-q.items:
		return item, nil
	default:
	}
	select {
	case item := <-q.items:
		return item, nil
	case <-q.closed:
		select {
		case item := <-q.items:
			return item, nil
		default:
			return catalog.QueueItem{}, ErrClosed
		}
	case <-ctx.Done():
		return catalog.QueueItem{}, ctx.Err()
	}
}

// Len reports the number of queued items.
func (q *Memory) Len() int {
	return len(q.items)
}

// Close rejects further enqueues and unblocks waiting consumers once the
// backlog drains.
func (q *Memory) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

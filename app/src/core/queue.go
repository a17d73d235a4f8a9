package core

import (
	"context"
	"sync"

	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

const DefaultQueueCapacity = 8192

// Backpressure selects what Enqueue does when the queue is full.
type Backpressure int

const (
	// BlockWhenFull waits for a free slot, the context, or Close.
	BlockWhenFull Backpressure = iota
	// FailWhenFull returns domain.ErrQueueFull immediately.
	FailWhenFull
)

// QueueOption customises an IngestionQueue.
type QueueOption func(*IngestionQueue)

// WithFailFast makes Enqueue reject items instead of blocking on a full queue.
func WithFailFast() QueueOption {
	return func(q *IngestionQueue) {
		q.policy = FailWhenFull
	}
}

// IngestionQueue is a bounded FIFO of measurements with many producers and a
// single consumer. Order to the consumer follows enqueue completion.
type IngestionQueue struct {
	items  chan domain.NewMeasurement
	done   chan struct{}
	policy Backpressure

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup

	closeOnce sync.Once
}

func NewIngestionQueue(capacity int, opts ...QueueOption) *IngestionQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	q := &IngestionQueue{
		items: make(chan domain.NewMeasurement, capacity),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue admits m or reports why it could not. It never admits after Close.
func (q *IngestionQueue) Enqueue(ctx context.Context, m domain.NewMeasurement) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return domain.ErrQueueClosed
	}
	q.inflight.Add(1)
	q.mu.RUnlock()
	defer q.inflight.Done()

	if q.policy == FailWhenFull {
		select {
		case q.items <- m:
			infra.SetQueueDepth(len(q.items))
			return nil
		default:
			return domain.ErrQueueFull
		}
	}

	select {
	case q.items <- m:
		infra.SetQueueDepth(len(q.items))
		return nil
	case <-q.done:
		return domain.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueBatch enqueues items in order and returns how many were admitted
// before the first failure.
func (q *IngestionQueue) EnqueueBatch(ctx context.Context, items []domain.NewMeasurement) (int, error) {
	for i, m := range items {
		if err := q.Enqueue(ctx, m); err != nil {
			return i, err
		}
	}
	return len(items), nil
}

// Items is the consumer side. It is closed after Close once every admitted
// item has been sent, so ranging over it drains the queue.
func (q *IngestionQueue) Items() <-chan domain.NewMeasurement {
	return q.items
}

// Close stops admission and releases blocked producers. Safe to call twice.
func (q *IngestionQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.done)
		q.mu.Unlock()

		q.inflight.Wait()
		close(q.items)
	})
}

func (q *IngestionQueue) Len() int {
	return len(q.items)
}

func (q *IngestionQueue) Cap() int {
	return cap(q.items)
}

var _ domain.Enqueuer = (*IngestionQueue)(nil)

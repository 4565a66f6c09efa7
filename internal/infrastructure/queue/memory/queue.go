package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
)

// DepthObserver is told the queue length after every change.
type DepthObserver func(depth int)

// CategorizationQueue is a FIFO of document ids drained by a single worker
// goroutine. Entries run strictly one at a time, in enqueue order.
type CategorizationQueue struct {
	runner  ports.CategorizationRunner
	ctx     context.Context
	onDepth DepthObserver

	mu       sync.Mutex
	items    []string
	draining bool
	closed   bool
	idle     chan struct{}
}

func NewCategorizationQueue(ctx context.Context, runner ports.CategorizationRunner, onDepth DepthObserver) *CategorizationQueue {
	idle := make(chan struct{})
	close(idle)
	return &CategorizationQueue{
		runner:  runner,
		ctx:     ctx,
		onDepth: onDepth,
		idle:    idle,
	}
}

// Enqueue appends the id and starts the drainer if it is not already running.
// It never blocks on the run itself.
func (q *CategorizationQueue) Enqueue(documentID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		slog.Warn("queue.enqueue_after_close", "document_id", documentID)
		return
	}
	q.items = append(q.items, documentID)
	q.observe(len(q.items))
	if q.draining {
		return
	}
	q.draining = true
	q.idle = make(chan struct{})
	go q.drain(q.idle)
}

func (q *CategorizationQueue) drain(done chan struct{}) {
	defer close(done)
	for {
		id, ok := q.next()
		if !ok {
			return
		}
		q.runOne(id)
	}
}

func (q *CategorizationQueue) next() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || q.ctx.Err() != nil {
		q.draining = false
		return "", false
	}
	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	q.observe(len(q.items))
	return id, true
}

func (q *CategorizationQueue) runOne(documentID string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("queue.drain_error", "document_id", documentID, "error", fmt.Sprintf("panic: %v", r))
		}
	}()

	outcome := q.runner.RunCategorization(q.ctx, documentID)
	if !outcome.OK {
		slog.Error("queue.drain_error",
			"document_id", documentID,
			"error", outcome.Error,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Debug("queue.drained", "document_id", documentID, "duration_ms", time.Since(start).Milliseconds())
}

func (q *CategorizationQueue) observe(depth int) {
	if q.onDepth != nil {
		q.onDepth(depth)
	}
}

func (q *CategorizationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// WaitIdle blocks until the drainer has nothing left to do or ctx ends.
func (q *CategorizationQueue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := q.idle
		draining := q.draining
		q.mu.Unlock()
		if !draining {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting entries and waits for the current drain to finish.
// Entries still queued are dropped; the pending sweep picks them up again.
func (q *CategorizationQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	dropped := len(q.items)
	q.mu.Unlock()
	if dropped > 0 {
		slog.Warn("queue.close_with_pending", "pending", dropped)
	}
	return q.WaitIdle(ctx)
}

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
)

// Dispatcher runs each full-processing request on its own goroutine. There is
// no ordering between documents.
type Dispatcher struct {
	processor ports.DocumentProcessor
	ctx       context.Context

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher binds runs to ctx rather than to the caller's request context,
// which usually ends before the run does.
func NewDispatcher(ctx context.Context, processor ports.DocumentProcessor) *Dispatcher {
	return &Dispatcher{processor: processor, ctx: ctx}
}

func (d *Dispatcher) Dispatch(_ context.Context, documentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return domain.WrapError(domain.ErrTemporary, "dispatch processing", fmt.Errorf("dispatcher closed"))
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("dispatch_panic", "document_id", documentID, "error", fmt.Sprintf("%v", r))
			}
		}()
		result := d.processor.ProcessDocument(d.ctx, documentID)
		if !result.OK {
			slog.Warn("dispatch_run_failed", "document_id", documentID, "error", result.Error)
		}
	}()
	return nil
}

// Close rejects new runs and waits for the running ones or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

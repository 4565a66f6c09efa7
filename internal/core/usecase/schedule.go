package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
)

// Scheduler is the fire-and-forget entry point used by write paths. Nothing it
// does is reported back to the caller; failures are logged.
type Scheduler struct {
	repo       ports.DocumentRepository
	dispatcher ports.ProcessingDispatcher
	queue      ports.CategorizationQueue
}

func NewScheduler(repo ports.DocumentRepository, dispatcher ports.ProcessingDispatcher, queue ports.CategorizationQueue) *Scheduler {
	return &Scheduler{
		repo:       repo,
		dispatcher: dispatcher,
		queue:      queue,
	}
}

func (s *Scheduler) EnqueueDocumentProcessing(documentID string) {
	if err := s.dispatcher.Dispatch(context.Background(), documentID); err != nil {
		slog.Error("dispatch_processing_failed", "document_id", documentID, "error", err)
	}
}

func (s *Scheduler) EnqueueCategorization(documentID string) {
	s.queue.Enqueue(documentID)
}

// SweepPending enqueues a categorization for every document still waiting on
// its AI label.
func (s *Scheduler) SweepPending(ctx context.Context, limit int) (int, error) {
	ids, err := s.repo.ListPendingCategorization(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending categorization: %w", err)
	}
	for _, id := range ids {
		s.queue.Enqueue(id)
	}
	if len(ids) > 0 {
		slog.Info("categorization_sweep", "enqueued", len(ids))
	}
	return len(ids), nil
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

// terminalWriteTimeout bounds the FAILED write once the run's own context is done.
const terminalWriteTimeout = 10 * time.Second

// terminalContext keeps ctx values but drops its deadline and cancellation, so
// a run that failed because ctx ended can still persist its terminal state.
func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}

func panicError(operation, documentID string, recovered any) error {
	err := domain.WrapError(domain.ErrProcessingFailed, operation, fmt.Errorf("panic: %v", recovered))
	slog.Error("run_panic_recovered",
		"operation", operation,
		"document_id", documentID,
		"error", err,
		"stack", string(debug.Stack()),
	)
	return err
}

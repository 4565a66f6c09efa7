package ports

import (
	"context"
	"io"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload.
type DocumentIngestor interface {
	Upload(ctx context.Context, workspaceID, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document state and fields.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListFields(ctx context.Context, documentID string) ([]domain.ExtractedField, error)
}

// DocumentProcessor runs the full pipeline for one document. Failures are
// reported in the result, never as a returned error.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, documentID string) domain.ProcessResult
}

// CategorizationRunner runs standalone categorization for one document.
type CategorizationRunner interface {
	RunCategorization(ctx context.Context, documentID string) domain.CategorizationOutcome
}

// ProcessingScheduler is the fire-and-forget scheduling surface.
type ProcessingScheduler interface {
	EnqueueDocumentProcessing(documentID string)
	EnqueueCategorization(documentID string)
	SweepPending(ctx context.Context, limit int) (int, error)
}

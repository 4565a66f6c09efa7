package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	MarkProcessing(ctx context.Context, id string) error
	SaveProcessingResult(ctx context.Context, id string, result domain.ProcessingResult) error
	MarkProcessingFailed(ctx context.Context, id string, errMessage string, at time.Time) error
	MarkCategorizing(ctx context.Context, id string) error
	SaveCategorization(ctx context.Context, id string, update domain.CategorizationUpdate) error
	MarkCategorizationFailed(ctx context.Context, id string, meta domain.AIMeta) error
	ListPendingCategorization(ctx context.Context, limit int) ([]string, error)
}

// FieldRepository owns the extracted field rows of a document.
type FieldRepository interface {
	ReplaceFields(ctx context.Context, documentID string, fields []domain.ExtractedField) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.ExtractedField, error)
}

// CategoryRepository reads workspace categories.
type CategoryRepository interface {
	ListByWorkspace(ctx context.Context, workspaceID string) ([]domain.Category, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextExtractor turns file bytes into text plus a per-page breakdown.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mediaType string) (domain.TextExtraction, error)
}

// PageRenderer rasterizes the first maxPages pages of a PDF, in page order.
type PageRenderer interface {
	RenderPages(ctx context.Context, pdf []byte, maxPages int) ([][]byte, error)
}

// TextRecognizer reads the text out of a single image.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, image []byte, mediaType string) (string, error)
}

// ChatModel is the language/vision capability provider.
type ChatModel interface {
	Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error)
}

// FieldExtractor produces structured fields from normalized text.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string, sensitive bool) (domain.Extraction, error)
}

// Categorizer asks the provider for a category name.
type Categorizer interface {
	Categorize(ctx context.Context, input domain.CategorizationInput) (domain.CategorizationResult, error)
}

// MessageQueue publishes/consumes processing requests across processes.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// ProcessingDispatcher hands a full-processing run to some executor without
// waiting for it.
type ProcessingDispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}

// CategorizationQueue is the serialized FIFO for standalone categorization runs.
type CategorizationQueue interface {
	Enqueue(documentID string)
}

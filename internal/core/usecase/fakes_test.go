package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

// documentStoreFake applies every repository write to an in-memory record so
// tests can assert on the persisted end state.
type documentStoreFake struct {
	mu    sync.Mutex
	docs  map[string]*domain.Document
	calls []string

	markProcessingErr error
	saveResultErr     error
	saveCategoryErr   error
	pending           []string

	// honourCtx makes terminal writes fail once their context is done, the way
	// database/sql does.
	honourCtx bool
}

func newDocumentStoreFake(docs ...*domain.Document) *documentStoreFake {
	store := &documentStoreFake{docs: make(map[string]*domain.Document)}
	for _, doc := range docs {
		store.docs[doc.ID] = doc
	}
	return store
}

func (f *documentStoreFake) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *documentStoreFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create")
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *documentStoreFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *documentStoreFake) MarkProcessing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("mark_processing")
	if f.markProcessingErr != nil {
		return f.markProcessingErr
	}
	doc := f.docs[id]
	doc.Status = domain.StatusProcessing
	doc.AIStatus = domain.AIStatusPending
	doc.ProcessingError = nil
	return nil
}

func (f *documentStoreFake) SaveProcessingResult(_ context.Context, id string, result domain.ProcessingResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("save_processing_result")
	if f.saveResultErr != nil {
		return f.saveResultErr
	}
	doc := f.docs[id]
	extraction := result.ExtractData
	processedAt := result.ProcessedAt
	doc.Status = domain.StatusReady
	doc.AIStatus = domain.AIStatusReady
	doc.Title = result.Title
	doc.CategoryID = nil
	doc.CategoryLabel = result.CategoryLabel
	doc.RawText = result.RawText
	doc.OCRPages = result.OCRPages
	doc.ExtractData = &extraction
	doc.SensitiveDetected = result.SensitiveDetected
	doc.ProcessedAt = &processedAt
	doc.ProcessingError = nil
	return nil
}

func (f *documentStoreFake) MarkProcessingFailed(ctx context.Context, id string, errMessage string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("mark_processing_failed")
	if f.honourCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	doc := f.docs[id]
	msg := errMessage
	doc.Status = domain.StatusFailed
	doc.AIStatus = domain.AIStatusFailed
	doc.ProcessingError = &msg
	doc.ProcessedAt = &at
	return nil
}

func (f *documentStoreFake) MarkCategorizing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("mark_categorizing")
	f.docs[id].AIStatus = domain.AIStatusCategorizing
	return nil
}

func (f *documentStoreFake) SaveCategorization(_ context.Context, id string, update domain.CategorizationUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("save_categorization")
	if f.saveCategoryErr != nil {
		return f.saveCategoryErr
	}
	doc := f.docs[id]
	confidence := update.Confidence
	meta, _ := json.Marshal(update.Meta)
	doc.CategoryID = update.CategoryID
	doc.CategoryLabel = update.CategoryLabel
	doc.AIStatus = domain.AIStatusReady
	doc.AIConfidence = &confidence
	doc.AIMeta = meta
	return nil
}

func (f *documentStoreFake) MarkCategorizationFailed(ctx context.Context, id string, meta domain.AIMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("mark_categorization_failed")
	if f.honourCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	raw, _ := json.Marshal(meta)
	doc := f.docs[id]
	doc.AIStatus = domain.AIStatusFailed
	doc.AIMeta = raw
	return nil
}

func (f *documentStoreFake) ListPendingCategorization(context.Context, int) ([]string, error) {
	return f.pending, nil
}

func (f *documentStoreFake) doc(id string) *domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

type fieldStoreFake struct {
	rows     map[string][]domain.ExtractedField
	replaced int
}

func newFieldStoreFake() *fieldStoreFake {
	return &fieldStoreFake{rows: make(map[string][]domain.ExtractedField)}
}

func (f *fieldStoreFake) ReplaceFields(_ context.Context, documentID string, fields []domain.ExtractedField) error {
	f.replaced++
	f.rows[documentID] = append([]domain.ExtractedField(nil), fields...)
	return nil
}

func (f *fieldStoreFake) ListByDocument(_ context.Context, documentID string) ([]domain.ExtractedField, error) {
	return f.rows[documentID], nil
}

type storageFake struct {
	objects map[string][]byte
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "open object", fmt.Errorf("key=%s", key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type extractorFake struct {
	result    domain.TextExtraction
	err       error
	mediaType string

	waitForCtx bool
	panicWith  any
}

func (f *extractorFake) Extract(ctx context.Context, _ []byte, mediaType string) (domain.TextExtraction, error) {
	f.mediaType = mediaType
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.waitForCtx {
		<-ctx.Done()
		return domain.TextExtraction{}, fmt.Errorf("extract text: %w", ctx.Err())
	}
	if f.err != nil {
		return domain.TextExtraction{}, f.err
	}
	return f.result, nil
}

type fieldExtractorFake struct {
	results   []domain.Extraction
	err       error
	calls     int
	sensitive []bool
	texts     []string
}

func (f *fieldExtractorFake) ExtractFields(_ context.Context, text string, sensitive bool) (domain.Extraction, error) {
	f.calls++
	f.sensitive = append(f.sensitive, sensitive)
	f.texts = append(f.texts, text)
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	if len(f.results) == 0 {
		return domain.EmptyExtraction(), nil
	}
	idx := f.calls - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

type categoryStoreFake struct {
	categories []domain.Category
	err        error
}

func (f *categoryStoreFake) ListByWorkspace(_ context.Context, workspaceID string) ([]domain.Category, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Category
	for _, c := range f.categories {
		if c.WorkspaceID == workspaceID {
			out = append(out, c)
		}
	}
	return out, nil
}

type categorizerFake struct {
	result domain.CategorizationResult
	err    error
	inputs []domain.CategorizationInput

	waitForCtx bool
	panicWith  any
}

func (f *categorizerFake) Categorize(ctx context.Context, input domain.CategorizationInput) (domain.CategorizationResult, error) {
	f.inputs = append(f.inputs, input)
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.waitForCtx {
		<-ctx.Done()
		return domain.CategorizationResult{}, ctx.Err()
	}
	if f.err != nil {
		return domain.CategorizationResult{}, f.err
	}
	return f.result, nil
}

type dispatcherFake struct {
	ids []string
	err error
}

func (f *dispatcherFake) Dispatch(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, documentID)
	return nil
}

type queueFake struct {
	ids []string
}

func (f *queueFake) Enqueue(documentID string) {
	f.ids = append(f.ids, documentID)
}

var errBoom = errors.New("boom")

func strPtr(s string) *string { return &s }

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }

package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	repo           ports.DocumentRepository
	fields         ports.FieldRepository
	storage        ports.ObjectStorage
	extractor      ports.TextExtractor
	fieldExtractor ports.FieldExtractor
	inflight       *InFlightGuard

	now   func() time.Time
	newID func() string
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	fields ports.FieldRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	fieldExtractor ports.FieldExtractor,
	inflight *InFlightGuard,
) *ProcessDocumentUseCase {
	if inflight == nil {
		inflight = NewInFlightGuard()
	}
	return &ProcessDocumentUseCase{
		repo:           repo,
		fields:         fields,
		storage:        storage,
		extractor:      extractor,
		fieldExtractor: fieldExtractor,
		inflight:       inflight,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
}

func (uc *ProcessDocumentUseCase) ProcessDocument(ctx context.Context, documentID string) (result domain.ProcessResult) {
	release, err := uc.inflight.Acquire(documentID)
	if err != nil {
		slog.Warn("document_process_rejected", "document_id", documentID, "error", err)
		return processFailure(documentID, err)
	}
	defer release()

	started := false
	defer func() {
		if recovered := recover(); recovered != nil {
			result = uc.fail(ctx, documentID, started, panicError("process document", documentID, recovered))
		}
	}()

	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return processFailure(documentID, err)
	}

	if err := uc.repo.MarkProcessing(ctx, documentID); err != nil {
		return processFailure(documentID, fmt.Errorf("set status=processing: %w", err))
	}
	started = true

	if err := uc.processPipeline(ctx, doc); err != nil {
		return uc.fail(ctx, documentID, started, err)
	}

	slog.Info("document_processed", "document_id", documentID)
	return domain.ProcessResult{OK: true, DocumentID: documentID}
}

// fail persists FAILED once the run has moved the record to PROCESSING.
func (uc *ProcessDocumentUseCase) fail(ctx context.Context, documentID string, started bool, err error) domain.ProcessResult {
	if started {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			err = fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
	}
	slog.Error("document_process_failed", "document_id", documentID, "error", err)
	return processFailure(documentID, err)
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, doc *domain.Document) error {
	data, err := uc.readSource(ctx, doc)
	if err != nil {
		return err
	}

	extracted, err := uc.extractText(ctx, data, doc.MimeType)
	if err != nil {
		return err
	}

	text := domain.NormalizeText(extracted.Text)
	pages := domain.NormalizePages(extracted.Pages)
	verdict := domain.DetectSensitiveContent(text, doc.Filename)
	if verdict.Matched {
		slog.Info("document_sensitive_detected", "document_id", doc.ID, "reason", verdict.Reason)
	}

	extraction, err := uc.extractFields(ctx, text, verdict.Matched)
	if err != nil {
		return err
	}
	extraction.Fields = domain.FilterSensitiveFields(extraction.Fields, verdict.Matched)

	if err := uc.replaceFields(ctx, doc.ID, extraction.Fields); err != nil {
		return err
	}

	result := domain.ProcessingResult{
		Title:             resolveTitle(doc, extraction),
		CategoryLabel:     verbatimCategoryLabel(extraction),
		RawText:           text,
		OCRPages:          pages,
		ExtractData:       extraction,
		SensitiveDetected: verdict.Matched,
		ProcessedAt:       uc.now(),
	}
	if err := uc.repo.SaveProcessingResult(ctx, doc.ID, result); err != nil {
		return fmt.Errorf("save processing result: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) readSource(ctx context.Context, doc *domain.Document) ([]byte, error) {
	if strings.TrimSpace(doc.StorageKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read source", errors.New("document has no storage reference"))
	}
	reader, err := uc.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}
	return data, nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, data []byte, mediaType string) (domain.TextExtraction, error) {
	extracted, err := uc.extractor.Extract(ctx, data, mediaType)
	if err != nil {
		return domain.TextExtraction{}, fmt.Errorf("extract text: %w", err)
	}
	return extracted, nil
}

// extractFields never calls the provider for empty text.
func (uc *ProcessDocumentUseCase) extractFields(ctx context.Context, text string, sensitive bool) (domain.Extraction, error) {
	if text == "" {
		return domain.EmptyExtraction(), nil
	}
	extraction, err := uc.fieldExtractor.ExtractFields(ctx, text, sensitive)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extract fields: %w", err)
	}
	if extraction.Fields == nil {
		extraction.Fields = []domain.FieldDraft{}
	}
	return extraction, nil
}

func (uc *ProcessDocumentUseCase) replaceFields(ctx context.Context, documentID string, drafts []domain.FieldDraft) error {
	now := uc.now()
	rows := make([]domain.ExtractedField, 0, len(drafts))
	for _, draft := range drafts {
		rows = append(rows, draft.ToExtractedField(uc.newID(), documentID, now))
	}
	if err := uc.fields.ReplaceFields(ctx, documentID, rows); err != nil {
		return fmt.Errorf("replace extracted fields: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	writeCtx, cancel := terminalContext(ctx)
	defer cancel()
	return uc.repo.MarkProcessingFailed(writeCtx, documentID, processErr.Error(), uc.now())
}

// resolveTitle keeps a human-set title and only replaces one that still
// equals the uploaded filename.
func resolveTitle(doc *domain.Document, extraction domain.Extraction) string {
	if doc.Title != "" && doc.Title != doc.Filename {
		return doc.Title
	}
	if extraction.Title != nil {
		if suggested := strings.TrimSpace(*extraction.Title); suggested != "" {
			return suggested
		}
	}
	if doc.Title != "" {
		return doc.Title
	}
	return doc.Filename
}

// verbatimCategoryLabel implements domain.LabelPolicyExtractorVerbatim.
func verbatimCategoryLabel(extraction domain.Extraction) *string {
	if extraction.Category == nil {
		return nil
	}
	label := strings.TrimSpace(*extraction.Category)
	if label == "" {
		return nil
	}
	return &label
}

func processFailure(documentID string, err error) domain.ProcessResult {
	return domain.ProcessResult{OK: false, DocumentID: documentID, Error: err.Error()}
}

package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kirillkom/paperwork-pipeline/internal/config"
	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

type ingestFake struct {
	err           error
	lastWorkspace string
	lastBody      string
}

func (f *ingestFake) Upload(_ context.Context, workspaceID, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	if workspaceID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("workspace id is required"))
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.lastWorkspace = workspaceID
	f.lastBody = string(raw)

	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		WorkspaceID: workspaceID,
		Title:       filename,
		Filename:    filename,
		MimeType:    mimeType,
		Status:      domain.StatusUploaded,
		AIStatus:    domain.AIStatusPending,
		OCRPages:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type readerFake struct {
	docs   map[string]*domain.Document
	fields map[string][]domain.ExtractedField
}

func newReaderFake(docs ...*domain.Document) *readerFake {
	f := &readerFake{
		docs:   make(map[string]*domain.Document),
		fields: make(map[string][]domain.ExtractedField),
	}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return f
}

func (f *readerFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return doc, nil
}

func (f *readerFake) ListFields(_ context.Context, documentID string) ([]domain.ExtractedField, error) {
	fields := f.fields[documentID]
	if fields == nil {
		return []domain.ExtractedField{}, nil
	}
	return fields, nil
}

type runnerFake struct {
	outcome domain.CategorizationOutcome
	calls   []string
}

func (f *runnerFake) RunCategorization(_ context.Context, documentID string) domain.CategorizationOutcome {
	f.calls = append(f.calls, documentID)
	return f.outcome
}

type schedulerFake struct {
	mu         sync.Mutex
	processed  []string
	categorize []string
	sweepLimit int
	sweepCount int
	sweepErr   error
}

func (f *schedulerFake) EnqueueDocumentProcessing(documentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, documentID)
}

func (f *schedulerFake) EnqueueCategorization(documentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categorize = append(f.categorize, documentID)
}

func (f *schedulerFake) SweepPending(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweepLimit = limit
	return f.sweepCount, f.sweepErr
}

type testRig struct {
	ingest    *ingestFake
	reader    *readerFake
	runner    *runnerFake
	scheduler *schedulerFake
}

func newTestRig() *testRig {
	return &testRig{
		ingest: &ingestFake{},
		reader: newReaderFake(&domain.Document{
			ID:          "doc-1",
			WorkspaceID: "ws-1",
			Filename:    "invoice.pdf",
			MimeType:    "application/pdf",
			Status:      domain.StatusReady,
			AIStatus:    domain.AIStatusPending,
			OCRPages:    []string{},
		}),
		runner:    &runnerFake{},
		scheduler: &schedulerFake{},
	}
}

func (r *testRig) handler(cfg config.Config, opts ...Option) http.Handler {
	return NewRouter(cfg, r.ingest, r.reader, r.runner, r.scheduler, opts...).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestRig().handler(cfg)
}

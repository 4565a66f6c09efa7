package usecase

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

type schedulerFake struct {
	processing []string
}

func (f *schedulerFake) EnqueueDocumentProcessing(documentID string) {
	f.processing = append(f.processing, documentID)
}

func (f *schedulerFake) EnqueueCategorization(string) {}

func (f *schedulerFake) SweepPending(context.Context, int) (int, error) { return 0, nil }

func TestIngestUploadSuccess(t *testing.T) {
	repo := newDocumentStoreFake()
	storage := &storageFake{}
	scheduler := &schedulerFake{}
	uc := NewIngestDocumentUseCase(repo, storage, scheduler)

	doc, err := uc.Upload(context.Background(), "ws-1", "council tax 2024.pdf", "application/pdf", bytes.NewBufferString("%PDF"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected document id")
	}
	if doc.Status != domain.StatusUploaded || doc.AIStatus != domain.AIStatusPending {
		t.Fatalf("unexpected statuses %s / %s", doc.Status, doc.AIStatus)
	}
	if doc.Title != "council tax 2024.pdf" {
		t.Fatalf("expected title to default to filename, got %q", doc.Title)
	}
	if repo.doc(doc.ID) == nil {
		t.Fatalf("expected repo.Create call")
	}
	if len(scheduler.processing) != 1 || scheduler.processing[0] != doc.ID {
		t.Fatalf("expected processing scheduled for %s, got %v", doc.ID, scheduler.processing)
	}
	if !strings.HasSuffix(doc.StorageKey, "_council_tax_2024.pdf") {
		t.Fatalf("expected sanitized key suffix, got %s", doc.StorageKey)
	}
	if string(storage.objects[doc.StorageKey]) != "%PDF" {
		t.Fatalf("expected stored body")
	}
}

func TestIngestUploadRequiresWorkspace(t *testing.T) {
	uc := NewIngestDocumentUseCase(newDocumentStoreFake(), &storageFake{}, &schedulerFake{})

	_, err := uc.Upload(context.Background(), " ", "a.pdf", "application/pdf", bytes.NewBufferString("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

func readyDoc() *domain.Document {
	return &domain.Document{
		ID:          "doc-1",
		WorkspaceID: "ws-1",
		Title:       "March statement",
		Filename:    "statement.pdf",
		Issuer:      "Big Bank",
		Status:      domain.StatusReady,
		AIStatus:    domain.AIStatusPending,
		RawText:     "Statement of account for March",
	}
}

func workspaceCategories() *categoryStoreFake {
	return &categoryStoreFake{categories: []domain.Category{
		{ID: "cat-bank", WorkspaceID: "ws-1", Name: "Banking"},
		{ID: "cat-energy", WorkspaceID: "ws-1", Name: "Energy"},
		{ID: "cat-other-ws", WorkspaceID: "ws-2", Name: "Housing"},
	}}
}

func TestRunCategorizationMatchesExistingCategory(t *testing.T) {
	for _, name := range []string{"banking", "Banking", "  BANKING  "} {
		t.Run(name, func(t *testing.T) {
			store := newDocumentStoreFake(readyDoc())
			categorizer := &categorizerFake{result: domain.CategorizationResult{
				CategoryName:  name,
				Confidence:    0.8,
				Rationale:     "bank statement",
				ReuseExisting: boolPtr(true),
				RawResponse:   `{"categoryName":"banking"}`,
				Model:         "llama3.1:8b",
			}}
			uc := NewCategorizeDocumentUseCase(store, workspaceCategories(), categorizer, nil, nil)

			out := uc.RunCategorization(context.Background(), "doc-1")
			if !out.OK {
				t.Fatalf("RunCategorization() = %+v", out)
			}
			doc := store.doc("doc-1")
			if doc.CategoryID == nil || *doc.CategoryID != "cat-bank" {
				t.Fatalf("expected match with cat-bank, got %v", doc.CategoryID)
			}
			if doc.CategoryLabel == nil || *doc.CategoryLabel != "Banking" {
				t.Fatalf("expected normalized label Banking, got %v", doc.CategoryLabel)
			}
			if doc.AIStatus != domain.AIStatusReady {
				t.Fatalf("expected ai_status ready, got %s", doc.AIStatus)
			}
			var meta domain.AIMeta
			if err := json.Unmarshal(doc.AIMeta, &meta); err != nil {
				t.Fatalf("decode ai meta: %v", err)
			}
			if meta.Model != "llama3.1:8b" || meta.Rationale != "bank statement" || meta.LabelPolicy != domain.LabelPolicyWorkspaceMatch {
				t.Fatalf("unexpected ai meta: %+v", meta)
			}
			if out.Document == nil || out.Document.CategoryLabel == nil || *out.Document.CategoryLabel != "Banking" {
				t.Fatalf("expected outcome document to carry the new label")
			}
		})
	}
}

func TestRunCategorizationWithoutMatchLeavesCategoryIDNil(t *testing.T) {
	store := newDocumentStoreFake(readyDoc())
	categorizer := &categorizerFake{result: domain.CategorizationResult{CategoryName: "housing  costs", Confidence: 0.6}}
	uc := NewCategorizeDocumentUseCase(store, workspaceCategories(), categorizer, nil, nil)

	if out := uc.RunCategorization(context.Background(), "doc-1"); !out.OK {
		t.Fatalf("RunCategorization() = %+v", out)
	}
	doc := store.doc("doc-1")
	if doc.CategoryID != nil {
		t.Fatalf("expected nil category id, got %v", *doc.CategoryID)
	}
	if doc.CategoryLabel == nil || *doc.CategoryLabel != "Housing Costs" {
		t.Fatalf("expected normalized label, got %v", doc.CategoryLabel)
	}
}

func TestRunCategorizationClampsConfidence(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{in: 1.4, want: 1.0},
		{in: -0.2, want: 0.0},
		{in: 0.42, want: 0.42},
	}
	for _, tc := range cases {
		store := newDocumentStoreFake(readyDoc())
		categorizer := &categorizerFake{result: domain.CategorizationResult{CategoryName: "Energy", Confidence: tc.in}}
		uc := NewCategorizeDocumentUseCase(store, workspaceCategories(), categorizer, nil, nil)

		if out := uc.RunCategorization(context.Background(), "doc-1"); !out.OK {
			t.Fatalf("RunCategorization() = %+v", out)
		}
		got := store.doc("doc-1").AIConfidence
		if got == nil || *got != tc.want {
			t.Fatalf("confidence %v: expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestRunCategorizationMarksFailedOnCategorizerError(t *testing.T) {
	store := newDocumentStoreFake(readyDoc())
	categorizer := &categorizerFake{err: domain.WrapError(domain.ErrMalformedCategorization, "categorize", errBoom)}
	uc := NewCategorizeDocumentUseCase(store, workspaceCategories(), categorizer, nil, nil)

	out := uc.RunCategorization(context.Background(), "doc-1")
	if out.OK {
		t.Fatalf("expected failure outcome")
	}
	if !strings.Contains(out.Error, "malformed categorization") {
		t.Fatalf("expected error kind in message, got %q", out.Error)
	}
	doc := store.doc("doc-1")
	if doc.AIStatus != domain.AIStatusFailed {
		t.Fatalf("expected ai_status failed, got %s", doc.AIStatus)
	}
	var meta domain.AIMeta
	if err := json.Unmarshal(doc.AIMeta, &meta); err != nil {
		t.Fatalf("decode ai meta: %v", err)
	}
	if meta.Error == "" {
		t.Fatalf("expected error in ai meta")
	}
	if doc.Status != domain.StatusReady {
		t.Fatalf("raw processing status must be untouched, got %s", doc.Status)
	}
}

func TestRunCategorizationNotFound(t *testing.T) {
	store := newDocumentStoreFake(readyDoc())
	uc := NewCategorizeDocumentUseCase(store, workspaceCategories(), &categorizerFake{}, nil, nil)

	out := uc.RunCategorization(context.Background(), "missing")
	if out.OK {
		t.Fatalf("expected failure outcome")
	}
	if len(store.calls) != 0 {
		t.Fatalf("expected no writes, got %v", store.calls)
	}
}

func TestRunCategorizationBuildsInput(t *testing.T) {
	doc := readyDoc()
	doc.RawText = ""
	doc.OCRPages = []string{strings.Repeat("é", 400), strings.Repeat("b", 400)}
	store := newDocumentStoreFake(doc)
	categorizer := &categorizerFake{result: domain.CategorizationResult{CategoryName: "Banking", Confidence: 0.9}}
	uc := NewCategorizeDocumentUseCase(store, workspaceCategories(), categorizer, nil, []string{"Banking", "Other"})

	if out := uc.RunCategorization(context.Background(), "doc-1"); !out.OK {
		t.Fatalf("RunCategorization() = %+v", out)
	}
	input := categorizer.inputs[0]
	if input.Filename != "statement.pdf" || input.Note != "March statement" || input.Issuer != "Big Bank" {
		t.Fatalf("unexpected input metadata: %+v", input)
	}
	if n := utf8.RuneCountInString(input.Snippet); n != domain.MaxCategorySnippet {
		t.Fatalf("expected %d-rune snippet from OCR pages, got %d", domain.MaxCategorySnippet, n)
	}
	if strings.Join(input.ExistingCategories, ",") != "Banking,Energy" {
		t.Fatalf("expected workspace categories only, got %v", input.ExistingCategories)
	}
	if strings.Join(input.SuggestedVocab, ",") != "Banking,Other" {
		t.Fatalf("expected configured vocabulary, got %v", input.SuggestedVocab)
	}
	wantCalls := "mark_categorizing,save_categorization"
	if got := strings.Join(store.calls, ","); got != wantCalls {
		t.Fatalf("unexpected calls %s", got)
	}
}

package structured

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

func TestExtractFieldsParsesAndSanitizes(t *testing.T) {
	model := &chatModelFake{responses: []string{`Result:
{"title": " Council Tax Bill 2024 ", "category": "Council Tax", "fields": [
  {"key": "Amount due", "valueNumber": 1520.5, "confidence": 1.3, "sourcePage": 1},
  {"key": "Due date", "valueDate": "2024-04-01", "confidence": 0.9},
  {"key": "Issued", "valueDate": "yesterday"},
  {"key": "   ", "valueText": "dropped"}
]}`}}
	extractor := NewFieldExtractor(model, FieldExtractorConfig{})

	got, err := extractor.ExtractFields(context.Background(), "Council tax bill", false)
	if err != nil {
		t.Fatalf("ExtractFields() error = %v", err)
	}
	if got.Title == nil || *got.Title != "Council Tax Bill 2024" {
		t.Fatalf("unexpected title %v", got.Title)
	}
	if got.Category == nil || *got.Category != "Council Tax" {
		t.Fatalf("unexpected category %v", got.Category)
	}
	if len(got.Fields) != 3 {
		t.Fatalf("expected keyless field dropped, got %+v", got.Fields)
	}
	if *got.Fields[0].Confidence != 1 {
		t.Fatalf("expected confidence clamped, got %v", *got.Fields[0].Confidence)
	}
	if got.Fields[2].ValueDate != nil {
		t.Fatalf("expected unparseable date nulled")
	}
}

func TestExtractFieldsDoesNotRetryByDefault(t *testing.T) {
	model := &chatModelFake{responses: []string{"not json", `{"fields": []}`}}
	extractor := NewFieldExtractor(model, FieldExtractorConfig{})

	_, err := extractor.ExtractFields(context.Background(), "text", false)
	if !domain.IsKind(err, domain.ErrMalformedExtraction) {
		t.Fatalf("expected malformed extraction, got %v", err)
	}
	if len(model.requests) != 1 {
		t.Fatalf("expected no automatic retry, got %d calls", len(model.requests))
	}
}

func TestExtractFieldsRetriesWhenConfigured(t *testing.T) {
	model := &chatModelFake{responses: []string{`{"title": "x"}`, `{"fields": []}`}}
	var reasons []string
	extractor := NewFieldExtractor(model, FieldExtractorConfig{
		MaxAttempts: 2,
		OnRetry:     func(reason string) { reasons = append(reasons, reason) },
	})

	got, err := extractor.ExtractFields(context.Background(), "text", false)
	if err != nil {
		t.Fatalf("ExtractFields() error = %v", err)
	}
	if got.Fields == nil || len(got.Fields) != 0 {
		t.Fatalf("expected empty non-nil fields, got %#v", got.Fields)
	}
	if len(reasons) != 1 || reasons[0] != ReasonSchemaMismatch {
		t.Fatalf("unexpected retry reasons %v", reasons)
	}
	if lastMessage(model.requests[1]).Content != "Return valid JSON only" {
		t.Fatalf("expected retry instruction on second attempt")
	}
}

func TestExtractFieldsSensitivePromptAndTruncation(t *testing.T) {
	model := &chatModelFake{responses: []string{`{"fields": []}`}}
	extractor := NewFieldExtractor(model, FieldExtractorConfig{})
	text := strings.Repeat("a", MaxExtractionChars+500)

	if _, err := extractor.ExtractFields(context.Background(), text, true); err != nil {
		t.Fatalf("ExtractFields() error = %v", err)
	}
	req := model.requests[0]
	if !strings.Contains(req.Messages[0].Content, "low-risk fields") {
		t.Fatalf("expected sensitive instruction in system prompt")
	}
	user := req.Messages[1].Content
	if n := utf8.RuneCountInString(strings.TrimPrefix(user, "Document text:\n")); n != MaxExtractionChars {
		t.Fatalf("expected text truncated to %d chars, got %d", MaxExtractionChars, n)
	}

	model.requests = nil
	if _, err := extractor.ExtractFields(context.Background(), "short", false); err != nil {
		t.Fatalf("ExtractFields() error = %v", err)
	}
	if strings.Contains(model.requests[0].Messages[0].Content, "low-risk fields") {
		t.Fatalf("sensitive instruction must only be sent for flagged documents")
	}
}

package structured

import (
	"fmt"
	"strings"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

const (
	// MaxExtractionChars caps the document text placed in the extraction prompt.
	MaxExtractionChars = 10000

	retryInstruction = "Return valid JSON only"
)

const extractionSystemPrompt = `You extract structured data from household paperwork.
Return strict JSON only, no prose, with this shape:
{"title": string|null, "category": string|null, "fields": [{"key": string, "valueText": string|null, "valueNumber": number|null, "valueDate": "YYYY-MM-DD"|null, "confidence": number between 0 and 1, "sourceSnippet": string of at most 160 characters|null, "sourcePage": integer|null}]}
Populate at most one of valueText, valueNumber, valueDate per field. Dates must be ISO 8601 calendar dates without time.`

const sensitiveExtractionRule = `This document contains sensitive personal data. Only emit low-risk fields: the document type and expiry or expiration dates. Use confidence no higher than 0.5. Never copy identifiers, numbers or secrets into any field or snippet.`

const categorizationSystemPrompt = `You file household paperwork into categories.
Return strict JSON only, no prose, with this shape:
{"categoryName": string, "confidence": number between 0 and 1, "rationale": string, "reuseExisting": boolean}
Prefer a short category of one or two words. If one of the existing categories fits, reuse its exact name and set reuseExisting to true.`

const ocrPrompt = `Transcribe all text visible in this page image exactly as written. Preserve line breaks. Return only the transcribed text without commentary. Return an empty response if the page has no text.`

func extractionMessages(text string, sensitive bool, maxChars int) []domain.ChatMessage {
	system := extractionSystemPrompt
	if sensitive {
		system += "\n\n" + sensitiveExtractionRule
	}
	if maxChars <= 0 {
		maxChars = MaxExtractionChars
	}
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: "Document text:\n" + domain.Truncate(text, maxChars)},
	}
}

func categorizationMessages(input domain.CategorizationInput) []domain.ChatMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Filename: %s\n", input.Filename)
	if note := strings.TrimSpace(input.Note); note != "" {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}
	if issuer := strings.TrimSpace(input.Issuer); issuer != "" {
		fmt.Fprintf(&b, "Issuer: %s\n", issuer)
	}
	fmt.Fprintf(&b, "Suggested categories: %s\n", joinOrNone(input.SuggestedVocab))
	fmt.Fprintf(&b, "Existing categories: %s\n", joinOrNone(input.ExistingCategories))
	b.WriteString("Text snippet:\n")
	b.WriteString(domain.Truncate(input.Snippet, domain.MaxCategorySnippet))

	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: categorizationSystemPrompt},
		{Role: domain.RoleUser, Content: b.String()},
	}
}

func withRetryInstruction(messages []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(messages)+1)
	out = append(out, messages...)
	return append(out, domain.ChatMessage{Role: domain.RoleSystem, Content: retryInstruction})
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

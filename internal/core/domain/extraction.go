package domain

import (
	"math"
	"strings"
	"time"
)

const (
	// MaxSourceSnippetChars bounds the quoted excerpt stored with a field.
	MaxSourceSnippetChars = 160
)

// Extraction is the structured payload stored in extract_data.
type Extraction struct {
	Title    *string      `json:"title"`
	Category *string      `json:"category"`
	Fields   []FieldDraft `json:"fields"`
}

// EmptyExtraction is used when there is no text to extract from.
func EmptyExtraction() Extraction {
	return Extraction{Fields: []FieldDraft{}}
}

// FieldDraft is one field as returned by the extractor, before persistence.
type FieldDraft struct {
	Key           string   `json:"key"`
	ValueText     *string  `json:"valueText"`
	ValueNumber   *float64 `json:"valueNumber"`
	ValueDate     *string  `json:"valueDate"`
	Confidence    *float64 `json:"confidence"`
	SourceSnippet *string  `json:"sourceSnippet"`
	SourcePage    *int     `json:"sourcePage"`
}

// ToExtractedField converts a draft into a persistable row.
func (f FieldDraft) ToExtractedField(id, documentID string, now time.Time) ExtractedField {
	field := ExtractedField{
		ID:            id,
		DocumentID:    documentID,
		Key:           f.Key,
		ValueText:     f.ValueText,
		ValueNumber:   f.ValueNumber,
		Confidence:    f.Confidence,
		SourceSnippet: f.SourceSnippet,
		SourcePage:    f.SourcePage,
		CreatedAt:     now,
	}
	if f.ValueDate != nil {
		if parsed, ok := ParseLenientDate(*f.ValueDate); ok {
			field.ValueDate = &parsed
		}
	}
	return field
}

var lenientDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006.01.02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02 Jan 2006",
}

// ParseLenientDate accepts the common date spellings a model produces and
// returns the calendar date at UTC midnight. Impossible dates are rejected.
func ParseLenientDate(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range lenientDateLayouts {
		parsed, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		y, m, d := parsed.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// SanitizeFieldDraft applies the field-level data contract: trimmed key,
// confidence in [0,1], snippet capped, and dates that do not parse dropped.
// It reports false when the draft has no usable key.
func SanitizeFieldDraft(f FieldDraft) (FieldDraft, bool) {
	f.Key = strings.TrimSpace(f.Key)
	if f.Key == "" {
		return f, false
	}
	if f.Confidence != nil {
		clamped := ClampConfidence(*f.Confidence)
		f.Confidence = &clamped
	}
	if f.SourceSnippet != nil {
		snippet := Truncate(strings.TrimSpace(*f.SourceSnippet), MaxSourceSnippetChars)
		f.SourceSnippet = &snippet
	}
	if f.ValueDate != nil {
		parsed, ok := ParseLenientDate(*f.ValueDate)
		if !ok {
			f.ValueDate = nil
		} else {
			iso := parsed.Format("2006-01-02")
			f.ValueDate = &iso
		}
	}
	if f.SourcePage != nil && *f.SourcePage < 0 {
		f.SourcePage = nil
	}
	return f, true
}

func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

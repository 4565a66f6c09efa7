package domain

import (
	"encoding/json"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// AIStatus tracks the AI-derived label independently of raw processing.
type AIStatus string

const (
	AIStatusPending      AIStatus = "pending"
	AIStatusCategorizing AIStatus = "categorizing"
	AIStatusReady        AIStatus = "ready"
	AIStatusFailed       AIStatus = "failed"
)

type Document struct {
	ID                string          `json:"id"`
	WorkspaceID       string          `json:"workspace_id"`
	Title             string          `json:"title"`
	Filename          string          `json:"filename"`
	MimeType          string          `json:"mime_type"`
	StorageKey        string          `json:"storage_key,omitempty"`
	Issuer            string          `json:"issuer,omitempty"`
	Status            DocumentStatus  `json:"status"`
	AIStatus          AIStatus        `json:"ai_status"`
	CategoryID        *string         `json:"category_id"`
	CategoryLabel     *string         `json:"category_label"`
	RawText           string          `json:"raw_text,omitempty"`
	OCRPages          []string        `json:"ocr_pages"`
	ExtractData       *Extraction     `json:"extract_data,omitempty"`
	SensitiveDetected bool            `json:"sensitive_detected"`
	ProcessingError   *string         `json:"processing_error"`
	ProcessedAt       *time.Time      `json:"processed_at"`
	AIConfidence      *float64        `json:"ai_confidence"`
	AIMeta            json.RawMessage `json:"ai_meta,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SourceText is the text the categorizer sees: raw text, or the OCR pages when
// raw text was never stored.
func (d *Document) SourceText() string {
	if d.RawText != "" {
		return d.RawText
	}
	return JoinPages(d.OCRPages)
}

// ExtractedField is one persisted fact. The set for a document is replaced as a
// whole on every processing run.
type ExtractedField struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"document_id"`
	Key           string     `json:"key"`
	ValueText     *string    `json:"value_text"`
	ValueNumber   *float64   `json:"value_number"`
	ValueDate     *time.Time `json:"value_date"`
	Confidence    *float64   `json:"confidence"`
	SourceSnippet *string    `json:"source_snippet"`
	SourcePage    *int       `json:"source_page"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Category struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// TextExtraction is the Text Extractor output before normalization.
type TextExtraction struct {
	Text    string
	Pages   []string
	UsedOCR bool
}

// ProcessingResult is everything a successful full-processing run persists.
type ProcessingResult struct {
	Title             string
	CategoryLabel     *string
	RawText           string
	OCRPages          []string
	ExtractData       Extraction
	SensitiveDetected bool
	ProcessedAt       time.Time
}

// CategorizationUpdate is what a successful standalone categorization persists.
type CategorizationUpdate struct {
	CategoryID    *string
	CategoryLabel *string
	Confidence    float64
	Meta          AIMeta
}

// AIMeta is the diagnostic blob stored in ai_meta.
type AIMeta struct {
	Rationale     string      `json:"rationale,omitempty"`
	ReuseExisting *bool       `json:"reuseExisting,omitempty"`
	RawResponse   string      `json:"rawResponse,omitempty"`
	Model         string      `json:"model,omitempty"`
	LabelPolicy   LabelPolicy `json:"labelPolicy,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// ProcessResult is returned by the full-processing entry point. It never carries
// a Go error across the boundary; failures are described by Error.
type ProcessResult struct {
	OK         bool   `json:"ok"`
	DocumentID string `json:"document_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CategorizationOutcome is returned by the standalone categorization entry point.
type CategorizationOutcome struct {
	OK       bool      `json:"ok"`
	Document *Document `json:"document,omitempty"`
	Error    string    `json:"error,omitempty"`
}

package structured

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
)

// RetryObserver is told the reason of every retry a parser-driven loop makes.
type RetryObserver func(reason string)

type FieldExtractorConfig struct {
	// MaxAttempts bounds calls per document; 1 means no automatic retry.
	MaxAttempts int
	MaxChars    int
	OnRetry     RetryObserver
}

// FieldExtractor asks a chat model for the structured payload of a document.
type FieldExtractor struct {
	model ports.ChatModel
	cfg   FieldExtractorConfig
}

func NewFieldExtractor(model ports.ChatModel, cfg FieldExtractorConfig) *FieldExtractor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = MaxExtractionChars
	}
	return &FieldExtractor{model: model, cfg: cfg}
}

func (e *FieldExtractor) ExtractFields(ctx context.Context, text string, sensitive bool) (domain.Extraction, error) {
	messages := extractionMessages(text, sensitive, e.cfg.MaxChars)
	temperature := 0.0

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		resp, err := e.model.Chat(ctx, domain.ChatRequest{
			Messages:    messages,
			JSON:        true,
			Temperature: &temperature,
		})
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("extraction chat: %w", err)
		}

		var extraction domain.Extraction
		err = decodeResponse(resp.Text, extractionSchema, &extraction)
		if err == nil {
			slog.Debug("extract.parsed", "attempt", attempt, "model", resp.Model)
			return sanitizeExtraction(extraction), nil
		}

		lastErr = err
		var respErr *ResponseError
		if !errors.As(err, &respErr) || attempt == e.cfg.MaxAttempts {
			break
		}
		slog.Warn("extract.retry", "attempt", attempt, "reason", respErr.Reason, "error", err)
		if e.cfg.OnRetry != nil {
			e.cfg.OnRetry(respErr.Reason)
		}
		if attempt == 1 {
			messages = withRetryInstruction(messages)
		}
	}
	return domain.Extraction{}, domain.WrapError(domain.ErrMalformedExtraction, "parse extraction", lastErr)
}

func sanitizeExtraction(in domain.Extraction) domain.Extraction {
	out := domain.Extraction{
		Title:    trimmedOrNil(in.Title),
		Category: trimmedOrNil(in.Category),
		Fields:   make([]domain.FieldDraft, 0, len(in.Fields)),
	}
	for _, field := range in.Fields {
		if clean, ok := domain.SanitizeFieldDraft(field); ok {
			out.Fields = append(out.Fields, clean)
		}
	}
	return out
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

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

// categorizeMaxAttempts is the first call plus exactly one retry.
const categorizeMaxAttempts = 2

type categorizationResponse struct {
	CategoryName  string   `json:"categoryName"`
	Confidence    *float64 `json:"confidence"`
	Rationale     *string  `json:"rationale"`
	ReuseExisting *bool    `json:"reuseExisting"`
}

// Categorizer proposes a category name for a document. It does not match the
// answer against workspace categories; the caller owns that policy.
type Categorizer struct {
	model   ports.ChatModel
	onRetry RetryObserver
}

func NewCategorizer(model ports.ChatModel, onRetry RetryObserver) *Categorizer {
	return &Categorizer{model: model, onRetry: onRetry}
}

func (c *Categorizer) Categorize(ctx context.Context, input domain.CategorizationInput) (domain.CategorizationResult, error) {
	messages := categorizationMessages(input)
	temperature := 0.1

	var lastErr error
	for attempt := 1; attempt <= categorizeMaxAttempts; attempt++ {
		resp, err := c.model.Chat(ctx, domain.ChatRequest{
			Messages:    messages,
			JSON:        true,
			Temperature: &temperature,
		})
		if err != nil {
			return domain.CategorizationResult{}, fmt.Errorf("categorization chat: %w", err)
		}

		var parsed categorizationResponse
		err = decodeResponse(resp.Text, categorizationSchema, &parsed)
		if err == nil {
			return toCategorizationResult(parsed, resp), nil
		}

		lastErr = err
		var respErr *ResponseError
		if !errors.As(err, &respErr) || attempt == categorizeMaxAttempts {
			break
		}
		slog.Warn("categorize.retry", "attempt", attempt, "reason", respErr.Reason, "error", err)
		if c.onRetry != nil {
			c.onRetry(respErr.Reason)
		}
		messages = withRetryInstruction(messages)
	}
	return domain.CategorizationResult{}, domain.WrapError(domain.ErrMalformedCategorization, "parse categorization", lastErr)
}

func toCategorizationResult(parsed categorizationResponse, resp domain.ChatResponse) domain.CategorizationResult {
	confidence := domain.DefaultAIConfidence
	if parsed.Confidence != nil {
		confidence = domain.ClampConfidence(*parsed.Confidence)
	}
	result := domain.CategorizationResult{
		CategoryName:  strings.TrimSpace(parsed.CategoryName),
		Confidence:    confidence,
		ReuseExisting: parsed.ReuseExisting,
		RawResponse:   resp.Text,
		Model:         resp.Model,
	}
	if parsed.Rationale != nil {
		result.Rationale = strings.TrimSpace(*parsed.Rationale)
	}
	return result
}

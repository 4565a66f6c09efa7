package structured

import (
	"context"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

// chatModelFake replays scripted responses and records every request.
type chatModelFake struct {
	responses []string
	err       error
	model     string
	requests  []domain.ChatRequest
}

func (f *chatModelFake) Chat(_ context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.ChatResponse{}, f.err
	}
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	model := f.model
	if model == "" {
		model = "test-model"
	}
	return domain.ChatResponse{Text: f.responses[idx], Model: model}, nil
}

func lastMessage(req domain.ChatRequest) domain.ChatMessage {
	return req.Messages[len(req.Messages)-1]
}

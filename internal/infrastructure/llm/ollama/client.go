package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/resilience"
)

// Client talks to the Ollama chat API. Text and vision requests may be served
// by different models.
type Client struct {
	baseURL     string
	textModel   string
	visionModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, textModel, visionModel string) *Client {
	return NewWithExecutor(baseURL, textModel, visionModel, nil)
}

func NewWithExecutor(baseURL, textModel, visionModel string, executor *resilience.Executor) *Client {
	if strings.TrimSpace(visionModel) == "" {
		visionModel = textModel
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		textModel:   textModel,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: 180 * time.Second},
		executor:    executor,
	}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
}

func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return domain.ChatResponse{}, domain.WrapError(domain.ErrInvalidInput, "ollama chat", fmt.Errorf("no messages"))
	}

	model := c.textModel
	operation := "ollama.chat"
	if req.Vision {
		model = c.visionModel
		operation = "ollama.vision"
	}

	payload := chatRequest{
		Model:    model,
		Messages: toChatMessages(req.Messages),
		Stream:   false,
	}
	if req.JSON {
		payload.Format = "json"
	}
	if req.Temperature != nil {
		payload.Options = map[string]any{"temperature": *req.Temperature}
	}

	var response chatResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/chat", payload, &response, "chat")
	}

	var err error
	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, operation, call, classifyOllamaError)
	}
	if err != nil {
		return domain.ChatResponse{}, wrapProviderError(operation, err)
	}

	usedModel := response.Model
	if usedModel == "" {
		usedModel = model
	}
	return domain.ChatResponse{
		Text:  strings.TrimSpace(response.Message.Content),
		Model: usedModel,
	}, nil
}

func toChatMessages(messages []domain.ChatMessage) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		item := chatMessage{Role: string(msg.Role), Content: msg.Content}
		for _, img := range msg.Images {
			item.Images = append(item.Images, base64.StdEncoding.EncodeToString(img.Data))
		}
		out = append(out, item)
	}
	return out
}

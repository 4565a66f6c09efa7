package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/resilience"
)

const defaultModel = "gemini-1.5-flash"

// Client implements ports.ChatModel on top of the Gemini SDK. The same model
// serves text and vision requests.
type Client struct {
	client    *genai.Client
	modelName string
	executor  *resilience.Executor
}

func New(ctx context.Context, apiKey, modelName string, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "gemini client", errors.New("GEMINI_API_KEY is empty"))
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultModel
	}
	return &Client{client: client, modelName: modelName, executor: executor}, nil
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	system, parts := splitMessages(req.Messages)
	if len(parts) == 0 {
		return domain.ChatResponse{}, domain.WrapError(domain.ErrInvalidInput, "gemini chat", errors.New("no user content"))
	}

	model := c.client.GenerativeModel(c.modelName)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}

	operation := "gemini.chat"
	if req.Vision {
		operation = "gemini.vision"
	}

	var text string
	call := func(callCtx context.Context) error {
		resp, err := model.GenerateContent(callCtx, parts...)
		if err != nil {
			return err
		}
		text, err = responseText(resp)
		return err
	}

	var err error
	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, operation, call, classifyGeminiError)
	}
	if err != nil {
		return domain.ChatResponse{}, wrapProviderError(operation, err)
	}
	return domain.ChatResponse{Text: strings.TrimSpace(text), Model: c.modelName}, nil
}

// splitMessages folds system messages into one system instruction and
// flattens the rest into a single-turn part list.
func splitMessages(messages []domain.ChatMessage) (string, []genai.Part) {
	var system []string
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			if s := strings.TrimSpace(msg.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		for _, img := range msg.Images {
			parts = append(parts, genai.ImageData(imageFormat(img.MediaType), img.Data))
		}
		if strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return strings.Join(system, "\n\n"), parts
}

func imageFormat(mediaType string) string {
	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
	switch format {
	case "", "jpg":
		return "jpeg"
	default:
		return format
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty response from gemini")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String(), nil
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument:
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func wrapProviderError(operation string, err error) error {
	switch code := status.Code(err); {
	case code == codes.Unauthenticated || code == codes.PermissionDenied:
		return domain.WrapError(domain.ErrProviderUnavailable, operation, err)
	case classifyGeminiError(err).Retryable || resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}

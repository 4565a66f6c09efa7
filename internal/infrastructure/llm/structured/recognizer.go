package structured

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
)

// TextRecognizer transcribes page images through a vision-capable chat model.
type TextRecognizer struct {
	model   ports.ChatModel
	maxSide int
}

// NewTextRecognizer returns a recognizer that downscales images whose longest
// side exceeds maxSide. maxSide <= 0 sends images untouched.
func NewTextRecognizer(model ports.ChatModel, maxSide int) *TextRecognizer {
	return &TextRecognizer{model: model, maxSide: maxSide}
}

func (r *TextRecognizer) RecognizeText(ctx context.Context, data []byte, mediaType string) (string, error) {
	payload, payloadType := r.prepare(data, mediaType)
	temperature := 0.0
	resp, err := r.model.Chat(ctx, domain.ChatRequest{
		Vision:      true,
		Temperature: &temperature,
		Messages: []domain.ChatMessage{{
			Role:    domain.RoleUser,
			Content: ocrPrompt,
			Images:  []domain.ChatImage{{MediaType: payloadType, Data: payload}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision ocr: %w", err)
	}
	return resp.Text, nil
}

// prepare falls back to the original bytes whenever the image cannot be
// decoded locally; the provider may still understand the format.
func (r *TextRecognizer) prepare(data []byte, mediaType string) ([]byte, string) {
	if r.maxSide <= 0 {
		return data, mediaType
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data, mediaType
	}
	bounds := img.Bounds()
	if bounds.Dx() <= r.maxSide && bounds.Dy() <= r.maxSide {
		return data, mediaType
	}

	resized := imaging.Grayscale(imaging.Fit(img, r.maxSide, r.maxSide, imaging.Lanczos))
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return data, mediaType
	}
	return buf.Bytes(), "image/png"
}

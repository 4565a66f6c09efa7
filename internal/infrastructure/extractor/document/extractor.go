package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
)

const (
	DefaultMinWords    = 20
	DefaultMaxOCRPages = 3

	mediaTypePDF = "application/pdf"
)

type Config struct {
	// MinWords is the structural word count below which a PDF is treated as
	// image-only and sent through OCR.
	MinWords    int
	MaxOCRPages int
}

// Extractor turns PDFs and images into text. Text-native PDFs are read from
// their text layer; everything else goes through the vision recognizer.
type Extractor struct {
	renderer   ports.PageRenderer
	recognizer ports.TextRecognizer
	cfg        Config
}

func NewExtractor(renderer ports.PageRenderer, recognizer ports.TextRecognizer, cfg Config) *Extractor {
	if cfg.MinWords <= 0 {
		cfg.MinWords = DefaultMinWords
	}
	if cfg.MaxOCRPages <= 0 {
		cfg.MaxOCRPages = DefaultMaxOCRPages
	}
	return &Extractor{renderer: renderer, recognizer: recognizer, cfg: cfg}
}

func (e *Extractor) Extract(ctx context.Context, data []byte, mediaType string) (domain.TextExtraction, error) {
	resolved := resolveMediaType(data, mediaType)
	switch {
	case resolved == mediaTypePDF:
		return e.extractPDF(ctx, data)
	case strings.HasPrefix(resolved, "image/"):
		return e.extractImage(ctx, data, resolved)
	default:
		return domain.TextExtraction{}, domain.WrapError(
			domain.ErrUnsupportedMediaType,
			"extract text",
			fmt.Errorf("media type %q", resolved),
		)
	}
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (domain.TextExtraction, error) {
	pages, err := readTextLayer(data)
	if err != nil {
		// Some scanner output has a text layer the structural reader cannot
		// parse; the rasterizer is more forgiving.
		slog.Warn("pdf_text_layer_unreadable", "error", err)
		pages = nil
	}

	text := domain.JoinPages(pages)
	words := domain.WordCount(text)
	if words >= e.cfg.MinWords {
		return domain.TextExtraction{Text: text, Pages: pages}, nil
	}

	slog.Info("pdf_ocr_fallback", "words", words, "min_words", e.cfg.MinWords, "max_pages", e.cfg.MaxOCRPages)
	return e.ocrPDF(ctx, data)
}

func (e *Extractor) ocrPDF(ctx context.Context, data []byte) (domain.TextExtraction, error) {
	if e.renderer == nil || e.recognizer == nil {
		return domain.TextExtraction{}, errors.New("pdf ocr fallback is not configured")
	}
	images, err := e.renderer.RenderPages(ctx, data, e.cfg.MaxOCRPages)
	if err != nil {
		return domain.TextExtraction{}, fmt.Errorf("render pdf pages: %w", err)
	}
	if len(images) == 0 {
		return domain.TextExtraction{}, errors.New("render pdf pages: no pages rendered")
	}
	if len(images) > e.cfg.MaxOCRPages {
		images = images[:e.cfg.MaxOCRPages]
	}

	pages := make([]string, 0, len(images))
	for i, img := range images {
		text, err := e.recognizer.RecognizeText(ctx, img, "image/png")
		if err != nil {
			return domain.TextExtraction{}, fmt.Errorf("ocr page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return domain.TextExtraction{Text: domain.JoinPages(pages), Pages: pages, UsedOCR: true}, nil
}

func (e *Extractor) extractImage(ctx context.Context, data []byte, mediaType string) (domain.TextExtraction, error) {
	if e.recognizer == nil {
		return domain.TextExtraction{}, errors.New("image ocr is not configured")
	}
	text, err := e.recognizer.RecognizeText(ctx, data, mediaType)
	if err != nil {
		return domain.TextExtraction{}, fmt.Errorf("ocr image: %w", err)
	}
	return domain.TextExtraction{Text: text, Pages: []string{text}, UsedOCR: true}, nil
}

// readTextLayer returns the plain text of every page in order. The pdf
// package panics on some malformed inputs, so panics become errors here.
func readTextLayer(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("read pdf text layer: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// resolveMediaType trusts the declared type unless it is missing or generic.
func resolveMediaType(data []byte, declared string) string {
	mediaType := strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}
	if mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}
	sniffed := http.DetectContentType(data)
	if idx := strings.Index(sniffed, ";"); idx >= 0 {
		sniffed = sniffed[:idx]
	}
	return sniffed
}

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/paperwork-pipeline/internal/config"
	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
	"github.com/kirillkom/paperwork-pipeline/internal/core/usecase"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/extractor/document"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/llm/structured"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/queue/memory"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/render/pdftoppm"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/paperwork-pipeline/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/paperwork-pipeline/internal/observability/metrics"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	Config config.Config

	Queue      *nats.Queue
	Reader     ports.DocumentReader
	IngestUC   ports.DocumentIngestor
	ProcessUC  ports.DocumentProcessor
	CategoryUC ports.CategorizationRunner
	Scheduler  ports.ProcessingScheduler
	Metrics    *metrics.PipelineMetrics

	closeFn func()
}

// New wires the pipeline. Background runs are bound to ctx and stop with it.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	policy, err := config.LoadPolicy(cfg.PipelinePolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load pipeline policy: %w", err)
	}
	cfg = policy.Apply(cfg)

	pipelineMetrics := metrics.NewPipelineMetrics(service)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	fields := postgres.NewFieldRepository(db)
	categories := postgres.NewCategoryRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	llmExecutor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 500 * time.Millisecond,
		RetryMaxBackoff:     4 * time.Second,
		RetryMultiplier:     2.0,
		BreakerEnabled:      true,
		RateLimitRPS:        cfg.LLMRateLimitRPS,
		RateLimitBurst:      cfg.LLMRateLimitBurst,
	})
	llmExecutor.OnRetry(pipelineMetrics.RecordProviderRetry)

	chatModel, closeModel, err := newChatModel(ctx, cfg, llmExecutor)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	recognizer := structured.NewTextRecognizer(chatModel, cfg.OCRMaxImageSide)
	renderer := pdftoppm.New(pdftoppm.Config{Binary: cfg.PDFToPPMPath, DPI: cfg.OCRDPI})
	textExtractor := document.NewExtractor(renderer, recognizer, document.Config{
		MinWords:    cfg.OCRMinWords,
		MaxOCRPages: cfg.OCRMaxPages,
	})
	fieldExtractor := structured.NewFieldExtractor(chatModel, structured.FieldExtractorConfig{
		MaxAttempts: cfg.ExtractionMaxAttempts,
		MaxChars:    cfg.ExtractionMaxChars,
		OnRetry:     pipelineMetrics.RecordExtractionRetry,
	})
	categorizer := structured.NewCategorizer(chatModel, pipelineMetrics.RecordCategorizationRetry)

	inflight := usecase.NewInFlightGuard()
	processor := pipelineMetrics.InstrumentProcessor(
		usecase.NewProcessDocumentUseCase(repo, fields, storage, textExtractor, fieldExtractor, inflight),
	)
	runner := pipelineMetrics.InstrumentRunner(
		usecase.NewCategorizeDocumentUseCase(repo, categories, categorizer, inflight, policy.Categories),
	)

	categorizationQueue := memory.NewCategorizationQueue(ctx, runner, pipelineMetrics.SetQueueDepth)

	var (
		dispatcher    ports.ProcessingDispatcher
		natsQueue     *nats.Queue
		localDispatch *memory.Dispatcher
	)
	switch cfg.ProcessingDispatch {
	case config.DispatchNATS:
		natsExecutor := resilience.NewExecutor(resilience.DefaultConfig())
		natsExecutor.OnRetry(pipelineMetrics.RecordProviderRetry)
		natsQueue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: natsExecutor,
		})
		if err != nil {
			closeModel()
			_ = db.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		dispatcher = natsQueue
	case config.DispatchInProcess, "":
		localDispatch = memory.NewDispatcher(ctx, processor)
		dispatcher = localDispatch
	default:
		closeModel()
		_ = db.Close()
		return nil, fmt.Errorf("unknown processing dispatch mode %q", cfg.ProcessingDispatch)
	}

	scheduler := usecase.NewScheduler(repo, dispatcher, categorizationQueue)
	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, scheduler)
	reader := usecase.NewDocumentQueryUseCase(repo, fields)

	slog.Info("pipeline_wired",
		"service", service,
		"llm_provider", cfg.LLMProvider,
		"dispatch", cfg.ProcessingDispatch,
		"ocr_max_pages", cfg.OCRMaxPages,
		"ocr_min_words", cfg.OCRMinWords,
	)

	return &App{
		Config:     cfg,
		Queue:      natsQueue,
		Reader:     reader,
		IngestUC:   ingestUC,
		ProcessUC:  processor,
		CategoryUC: runner,
		Scheduler:  scheduler,
		Metrics:    pipelineMetrics,

		closeFn: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if localDispatch != nil {
				if err := localDispatch.Close(shutdownCtx); err != nil {
					slog.Warn("dispatcher_close_failed", "error", err)
				}
			}
			if err := categorizationQueue.Close(shutdownCtx); err != nil {
				slog.Warn("categorization_queue_close_failed", "error", err)
			}
			if natsQueue != nil {
				natsQueue.Close()
			}
			closeModel()
			_ = db.Close()
		},
	}, nil
}

func newChatModel(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ChatModel, func(), error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, executor)
		if err != nil {
			return nil, nil, fmt.Errorf("init gemini client: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	case config.ProviderOllama, "":
		client := ollama.NewWithExecutor(cfg.OllamaURL, cfg.OllamaTextModel, cfg.OllamaVisionModel, executor)
		return client, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/paperwork-pipeline/internal/config"
	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
	"github.com/kirillkom/paperwork-pipeline/internal/observability/metrics"
)

const (
	workspaceHeader   = "X-Workspace-Id"
	maxUploadBytes    = 32 << 20
	defaultSweepLimit = 50
	serviceName       = "api"
)

type Router struct {
	ingest    ports.DocumentIngestor
	reader    ports.DocumentReader
	runner    ports.CategorizationRunner
	scheduler ports.ProcessingScheduler

	sweepLimit       int
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
	httpMetrics      *metrics.HTTPServerMetrics
	metricsHandler   http.Handler
}

type Option func(*Router)

// WithMetrics instruments requests and serves /metrics from the given handler.
func WithMetrics(httpMetrics *metrics.HTTPServerMetrics, handler http.Handler) Option {
	return func(rt *Router) {
		rt.httpMetrics = httpMetrics
		rt.metricsHandler = handler
	}
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	reader ports.DocumentReader,
	runner ports.CategorizationRunner,
	scheduler ports.ProcessingScheduler,
	opts ...Option,
) *Router {
	sweepLimit := cfg.CategorizationSweepLimit
	if sweepLimit <= 0 {
		sweepLimit = defaultSweepLimit
	}
	rt := &Router{
		ingest:           ingest,
		reader:           reader,
		runner:           runner,
		scheduler:        scheduler,
		sweepLimit:       sweepLimit,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	mux.HandleFunc("POST /v1/documents/{id}/process", rt.processDocument)
	mux.HandleFunc("POST /v1/documents/{id}/categorize", rt.categorizeDocument)
	mux.HandleFunc("POST /v1/categorization/sweep", rt.sweepPending)
	if rt.metricsHandler != nil {
		mux.Handle("GET /metrics", rt.metricsHandler)
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	workspaceID := strings.TrimSpace(r.FormValue("workspace_id"))
	if workspaceID == "" {
		workspaceID = strings.TrimSpace(r.Header.Get(workspaceHeader))
	}

	doc, err := rt.ingest.Upload(
		r.Context(),
		workspaceID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

type documentResponse struct {
	*domain.Document
	Fields []domain.ExtractedField `json:"fields"`
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	fields, err := rt.reader.ListFields(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{Document: doc, Fields: fields})
}

func (rt *Router) processDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := rt.reader.GetByID(r.Context(), id); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	rt.scheduler.EnqueueDocumentProcessing(id)
	writeJSON(w, http.StatusAccepted, map[string]string{"document_id": id, "status": "queued"})
}

func (rt *Router) categorizeDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := rt.reader.GetByID(r.Context(), id); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}

	outcome := rt.runner.RunCategorization(r.Context(), id)
	status := http.StatusOK
	if !outcome.OK {
		status = http.StatusBadGateway
		if strings.Contains(outcome.Error, domain.ErrAlreadyInFlight.Error()) {
			status = http.StatusConflict
		}
	}
	writeJSON(w, status, outcome)
}

func (rt *Router) sweepPending(w http.ResponseWriter, r *http.Request) {
	enqueued, err := rt.scheduler.SweepPending(r.Context(), rt.sweepLimit)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"enqueued": enqueued})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

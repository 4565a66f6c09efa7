package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
	"github.com/kirillkom/paperwork-pipeline/internal/core/ports"
)

const (
	StageProcess    = "process"
	StageCategorize = "categorize"
)

type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	runTotal             *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	runInFlight          *prometheus.GaugeVec
	categorizeRetries    *prometheus.CounterVec
	extractRetries       *prometheus.CounterVec
	providerRetries      *prometheus.CounterVec
	categorizationQueued prometheus.Gauge
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperwork",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total pipeline runs by stage and outcome.",
		},
		[]string{"service", "stage", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paperwork",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds by stage and outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"service", "stage", "status"},
	)
	runInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "paperwork",
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Number of pipeline runs currently executing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"stage"},
	)
	categorizeRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperwork",
			Name:      "categorization_retries_total",
			Help:      "Categorizer retries by reason.",
		},
		[]string{"reason"},
	)
	extractRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperwork",
			Name:      "extraction_retries_total",
			Help:      "Structured extraction retries by reason.",
		},
		[]string{"reason"},
	)
	providerRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperwork",
			Subsystem: "provider",
			Name:      "retries_total",
			Help:      "Transient provider and broker call retries by operation.",
		},
		[]string{"operation"},
	)
	categorizationQueued := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "paperwork",
			Name:      "categorization_queue_depth",
			Help:      "Documents waiting in the categorization queue.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		runTotal,
		runDuration,
		runInFlight,
		categorizeRetries,
		extractRetries,
		providerRetries,
		categorizationQueued,
	)

	return &PipelineMetrics{
		registry:             registry,
		service:              service,
		runTotal:             runTotal,
		runDuration:          runDuration,
		runInFlight:          runInFlight,
		categorizeRetries:    categorizeRetries,
		extractRetries:       extractRetries,
		providerRetries:      providerRetries,
		categorizationQueued: categorizationQueued,
	}
}

func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartRun(stage string) {
	m.runInFlight.WithLabelValues(stage).Inc()
}

func (m *PipelineMetrics) FinishRun(stage string, duration time.Duration, ok bool) {
	m.runInFlight.WithLabelValues(stage).Dec()

	status := "success"
	if !ok {
		status = "error"
	}
	m.runTotal.WithLabelValues(m.service, stage, status).Inc()
	m.runDuration.WithLabelValues(m.service, stage, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) RecordCategorizationRetry(reason string) {
	m.categorizeRetries.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) RecordExtractionRetry(reason string) {
	m.extractRetries.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) RecordProviderRetry(operation string) {
	m.providerRetries.WithLabelValues(operation).Inc()
}

func (m *PipelineMetrics) SetQueueDepth(depth int) {
	m.categorizationQueued.Set(float64(depth))
}

// InstrumentProcessor wraps a processor with run counters and timings.
func (m *PipelineMetrics) InstrumentProcessor(next ports.DocumentProcessor) ports.DocumentProcessor {
	return &instrumentedProcessor{next: next, metrics: m}
}

// InstrumentRunner wraps a categorization runner with run counters and timings.
func (m *PipelineMetrics) InstrumentRunner(next ports.CategorizationRunner) ports.CategorizationRunner {
	return &instrumentedRunner{next: next, metrics: m}
}

type instrumentedProcessor struct {
	next    ports.DocumentProcessor
	metrics *PipelineMetrics
}

func (p *instrumentedProcessor) ProcessDocument(ctx context.Context, documentID string) domain.ProcessResult {
	start := time.Now()
	p.metrics.StartRun(StageProcess)
	result := p.next.ProcessDocument(ctx, documentID)
	p.metrics.FinishRun(StageProcess, time.Since(start), result.OK)
	return result
}

type instrumentedRunner struct {
	next    ports.CategorizationRunner
	metrics *PipelineMetrics
}

func (r *instrumentedRunner) RunCategorization(ctx context.Context, documentID string) domain.CategorizationOutcome {
	start := time.Now()
	r.metrics.StartRun(StageCategorize)
	outcome := r.next.RunCategorization(ctx, documentID)
	r.metrics.FinishRun(StageCategorize, time.Since(start), outcome.OK)
	return outcome
}

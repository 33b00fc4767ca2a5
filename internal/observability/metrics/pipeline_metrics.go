package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StepErrorTypeDeadlineExceeded = "deadline_exceeded"
	StepErrorTypeCanceled         = "canceled"
	StepErrorTypeDB               = "db"
	StepErrorTypeUnknown          = "unknown"
)

// PipelineMetrics are scraped from /metrics next to the gorm collectors.
type PipelineMetrics struct {
	handleDuration *prometheus.HistogramVec
	stepFailures   *prometheus.CounterVec
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the process wide pipeline collectors.
func Pipeline(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// NewPipelineMetrics registers collectors on the given registerer. Tests pass
// a fresh prometheus.NewRegistry().
func NewPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	return newPipelineMetrics(registerer, cfg)
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "storefront"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	handleDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "storefront_webhook_handle_duration_seconds",
		Help:        "Time spent handling one webhook delivery, from signature check to response.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"event_type", "outcome"})
	stepFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storefront_checkout_step_failures_total",
		Help:        "Checkout completion steps that failed, by step and error type.",
		ConstLabels: constLabels,
	}, []string{"step", "error_type"})

	handleDuration = registerHistogramVec(registerer, handleDuration)
	stepFailures = registerCounterVec(registerer, stepFailures)

	return &PipelineMetrics{
		handleDuration: handleDuration,
		stepFailures:   stepFailures,
	}
}

func (m *PipelineMetrics) ObserveHandle(eventType, outcome string, duration time.Duration) {
	if m == nil || m.handleDuration == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.handleDuration.WithLabelValues(eventType, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) IncStepFailure(step string, err error) {
	if m == nil || m.stepFailures == nil || err == nil {
		return
	}
	m.stepFailures.WithLabelValues(step, ClassifyStepError(err)).Inc()
}

// ClassifyStepError buckets an error into a low-cardinality label.
func ClassifyStepError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return StepErrorTypeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return StepErrorTypeCanceled
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrInvalidTransaction):
		return StepErrorTypeDB
	default:
		return StepErrorTypeUnknown
	}
}

func registerHistogramVec(registerer prometheus.Registerer, collector *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, collector *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return collector
}

package monitoring

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jseval"

// Evaluation outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTransport = "transport"
	OutcomeCanceled  = "canceled"
)

// Setup failure reasons.
const (
	ReasonTempDir   = "tempdir"
	ReasonSpawn     = "spawn"
	ReasonTimeout   = "timeout"
	ReasonExited    = "exited"
	ReasonTransport = "transport"
	ReasonCanceled  = "canceled"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Evaluator metrics
	Evaluations        *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	SidecarsActive     prometheus.Gauge
	SetupDuration      prometheus.Histogram
	SetupFailures      *prometheus.CounterVec

	// Sidecar HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current request totals for the sidecar's health endpoint.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	AvgDuration   float64 `json:"avg_duration_seconds"`

	totalDuration float64
}

// NewMetrics creates the metrics and registers them on reg. Collectors that
// another evaluator already registered on reg are shared rather than
// rejected. A nil reg yields unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(nil)

	m := &Metrics{
		Evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of evaluations by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		EvaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Evaluation round-trip duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"mode"},
		),
		SidecarsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sidecars_active",
				Help:      "Number of running sidecar processes",
			},
		),
		SetupDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "setup_duration_seconds",
				Help:      "Time from spawn until the sidecar endpoint is ready",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		SetupFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "setup_failures_total",
				Help:      "Total number of failed evaluator setups by reason",
			},
			[]string{"reason"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sidecar",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served by the sidecar",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sidecar",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sidecar",
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sidecar",
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
	}

	if reg != nil {
		m.Evaluations = register(reg, m.Evaluations)
		m.EvaluationDuration = register(reg, m.EvaluationDuration)
		m.SidecarsActive = register(reg, m.SidecarsActive)
		m.SetupDuration = register(reg, m.SetupDuration)
		m.SetupFailures = register(reg, m.SetupFailures)
		m.RequestsTotal = register(reg, m.RequestsTotal)
		m.RequestDuration = register(reg, m.RequestDuration)
		m.RequestSize = register(reg, m.RequestSize)
		m.ResponseSize = register(reg, m.ResponseSize)
	}

	return m
}

// register adds c to reg, returning the collector already registered under
// the same descriptor if there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RecordEvaluation records a finished evaluation
func (m *Metrics) RecordEvaluation(mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(mode, outcome).Inc()
	m.EvaluationDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordSetup records a successful evaluator setup
func (m *Metrics) RecordSetup(duration time.Duration) {
	if m == nil {
		return
	}
	m.SetupDuration.Observe(duration.Seconds())
}

// RecordSetupFailure records a failed evaluator setup
func (m *Metrics) RecordSetupFailure(reason string) {
	if m == nil {
		return
	}
	m.SetupFailures.WithLabelValues(reason).Inc()
}

// IncSidecars increments the running sidecar gauge
func (m *Metrics) IncSidecars() {
	if m == nil {
		return
	}
	m.SidecarsActive.Inc()
}

// DecSidecars decrements the running sidecar gauge
func (m *Metrics) DecSidecars() {
	if m == nil {
		return
	}
	m.SidecarsActive.Dec()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// Snapshot returns the current request totals
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgDuration = s.totalDuration / float64(s.TotalRequests)
	}
	return s
}

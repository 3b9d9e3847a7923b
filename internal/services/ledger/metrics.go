package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordOperationDuration(string, time.Duration) {}
func (n *NoopMetricsCollector) RecordOperationResult(string, string)          {}
func (n *NoopMetricsCollector) RecordRetry(string)                            {}
func (n *NoopMetricsCollector) RecordCacheHit(string)                         {}
func (n *NoopMetricsCollector) RecordCacheMiss(string)                        {}
func (n *NoopMetricsCollector) RecordError(string, string)                    {}
func (n *NoopMetricsCollector) RecordTransaction(string, int64)               {}

// PrometheusMetrics exports ledger metrics to a Prometheus registry.
type PrometheusMetrics struct {
	operations   *prometheus.CounterVec
	durations    *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	cache        *prometheus.CounterVec
	errors       *prometheus.CounterVec
	transactions *prometheus.CounterVec
	volume       *prometheus.CounterVec
}

func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Ledger operations by outcome.",
			},
			[]string{"operation", "result"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Ledger operation latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_version_retries_total",
				Help: "Attempts repeated after a wallet version conflict.",
			},
			[]string{"operation"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_balance_cache_requests_total",
				Help: "Balance cache lookups by result.",
			},
			[]string{"result"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_errors_total",
				Help: "Ledger errors by operation and type.",
			},
			[]string{"operation", "type"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Committed ledger rows by kind.",
			},
			[]string{"kind"},
		),
		volume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_volume_fcfa_total",
				Help: "Absolute FCFA amount of committed ledger rows by kind.",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(m.operations, m.durations, m.retries, m.cache, m.errors, m.transactions, m.volume)
	return m
}

func (m *PrometheusMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordOperationResult(operation, result string) {
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *PrometheusMetrics) RecordRetry(operation string) {
	m.retries.WithLabelValues(operation).Inc()
}

// Cache keys embed owner ids, so they are not used as labels.
func (m *PrometheusMetrics) RecordCacheHit(string) {
	m.cache.WithLabelValues("hit").Inc()
}

func (m *PrometheusMetrics) RecordCacheMiss(string) {
	m.cache.WithLabelValues("miss").Inc()
}

func (m *PrometheusMetrics) RecordError(operation, errType string) {
	m.errors.WithLabelValues(operation, errType).Inc()
}

func (m *PrometheusMetrics) RecordTransaction(kind string, amount int64) {
	if amount < 0 {
		amount = -amount
	}
	m.transactions.WithLabelValues(kind).Inc()
	m.volume.WithLabelValues(kind).Add(float64(amount))
}

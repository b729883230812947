// Package metrics provides Prometheus metrics for the draft pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	GuardrailChecks       *prometheus.CounterVec
	DraftsRejected        *prometheus.CounterVec
	DraftsFlagged         *prometheus.CounterVec
	DraftsReturned        *prometheus.CounterVec
	GenerationDuration    *prometheus.HistogramVec
	GenerationFailures    *prometheus.CounterVec
	DraftStoreErrors      prometheus.Counter
	HTTPRequests          *prometheus.CounterVec
	HTTPDuration          *prometheus.HistogramVec
	EvidenceCache         *prometheus.CounterVec
	EvidenceSourceErrors  *prometheus.CounterVec
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	ReviewsQueued         *prometheus.CounterVec
	OutboxPending         prometheus.Gauge
	ConsumerLag           *prometheus.GaugeVec
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		GuardrailChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardrail_checks_total",
			Help: "Compliance checks by operation and verdict",
		}, []string{"operation", "verdict"}),
		DraftsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_rejected_total",
			Help: "Requests rejected by the pre-check",
		}, []string{"flow"}),
		DraftsFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_flagged_total",
			Help: "Drafts returned with post-check flags",
		}, []string{"flow"}),
		DraftsReturned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_returned_total",
			Help: "Drafts returned to callers",
		}, []string{"flow"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "draft_generation_duration_seconds",
			Help:    "Time spent in the generator",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"flow"}),
		GenerationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "draft_generation_failures_total",
			Help: "Generator errors",
		}, []string{"flow"}),
		DraftStoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "draft_store_errors_total",
			Help: "Failures persisting draft lifecycle events",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		EvidenceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_cache_requests_total",
			Help: "Evidence cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		EvidenceSourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_source_errors_total",
			Help: "Evidence source failures",
		}, []string{"source"}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		ReviewsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviews_queued_total",
			Help: "Drafts placed on the review queue by priority",
		}, []string{"priority"}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		ConsumerLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consumer_group_lag",
			Help: "Records not yet committed by a consumer group",
		}, []string{"group"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.GuardrailChecks,
		m.DraftsRejected,
		m.DraftsFlagged,
		m.DraftsReturned,
		m.GenerationDuration,
		m.GenerationFailures,
		m.DraftStoreErrors,
		m.HTTPRequests,
		m.HTTPDuration,
		m.EvidenceCache,
		m.EvidenceSourceErrors,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.ReviewsQueued,
		m.OutboxPending,
		m.ConsumerLag,
		m.CircuitBreakerState,
	)

	return m
}

// CheckEvaluated counts a compliance check
func (m *Metrics) CheckEvaluated(operation string, compliant bool) {
	if m == nil {
		return
	}
	verdict := "compliant"
	if !compliant {
		verdict = "non_compliant"
	}
	m.GuardrailChecks.WithLabelValues(operation, verdict).Inc()
}

// DraftRejected counts a pre-check rejection
func (m *Metrics) DraftRejected(flow string) {
	if m == nil {
		return
	}
	m.DraftsRejected.WithLabelValues(flow).Inc()
}

// DraftReturned counts a returned draft and whether it carried post-check flags
func (m *Metrics) DraftReturned(flow string, flagged bool) {
	if m == nil {
		return
	}
	m.DraftsReturned.WithLabelValues(flow).Inc()
	if flagged {
		m.DraftsFlagged.WithLabelValues(flow).Inc()
	}
}

// GenerationObserved records generator latency and failures
func (m *Metrics) GenerationObserved(flow string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.GenerationDuration.WithLabelValues(flow).Observe(d.Seconds())
	if err != nil {
		m.GenerationFailures.WithLabelValues(flow).Inc()
	}
}

// StoreFailed counts a draft store error
func (m *Metrics) StoreFailed() {
	if m == nil {
		return
	}
	m.DraftStoreErrors.Inc()
}

// RequestServed records an HTTP request
func (m *Metrics) RequestServed(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// CacheLookup counts an evidence cache lookup result
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.EvidenceCache.WithLabelValues(result).Inc()
}

// SourceFailed counts an evidence source failure
func (m *Metrics) SourceFailed(source string) {
	if m == nil {
		return
	}
	m.EvidenceSourceErrors.WithLabelValues(source).Inc()
}

// MessageProduced counts a record acknowledged by the broker
func (m *Metrics) MessageProduced() {
	if m == nil {
		return
	}
	m.KafkaMessagesProduced.Inc()
}

// MessageConsumed counts a record handled and committed
func (m *Metrics) MessageConsumed() {
	if m == nil {
		return
	}
	m.KafkaMessagesConsumed.Inc()
}

// OutboxBacklog records the number of unpublished outbox entries
func (m *Metrics) OutboxBacklog(n int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

// GroupLag records the lag reported for a consumer group
func (m *Metrics) GroupLag(group string, n int64) {
	if m == nil {
		return
	}
	m.ConsumerLag.WithLabelValues(group).Set(float64(n))
}

// ReviewQueued counts a draft placed on the review queue
func (m *Metrics) ReviewQueued(priority string) {
	if m == nil {
		return
	}
	m.ReviewsQueued.WithLabelValues(priority).Inc()
}

// BreakerState records a circuit breaker state
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

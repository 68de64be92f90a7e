// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for live detection sessions and the enhancement client.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue states reported by the queue depth gauge.
const (
	QueueStatePending  = "pending"
	QueueStateInFlight = "in_flight"
)

// Enhancement outcomes. Failures are labelled with their error code instead.
const (
	StatusSuccess = "success"
)

// LiveMetrics holds all Prometheus metrics for live sessions.
// A nil *LiveMetrics records nothing.
type LiveMetrics struct {
	// Detection metrics
	PhrasesDetectedTotal *prometheus.CounterVec
	SegmentsTotal        prometheus.Counter

	// Queue metrics
	QueueDepth       *prometheus.GaugeVec
	QueueWaitSeconds prometheus.Histogram

	// Enhancement metrics
	EnhanceRequestsTotal  *prometheus.CounterVec
	EnhanceLatencySeconds *prometheus.HistogramVec
	EnhanceConfidence     prometheus.Histogram

	// Item and session metrics
	ItemActionsTotal *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge

	// Side-channel metrics
	EventsPublishedTotal *prometheus.CounterVec
	MirrorFailuresTotal  *prometheus.CounterVec
}

// DefaultLiveMetrics creates metrics registered with the default registerer.
func DefaultLiveMetrics() *LiveMetrics {
	return NewLiveMetrics(prometheus.DefaultRegisterer)
}

// NewLiveMetrics creates a new set of live session metrics.
func NewLiveMetrics(reg prometheus.Registerer) *LiveMetrics {
	factory := promauto.With(reg)

	return &LiveMetrics{
		PhrasesDetectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "penf_live_phrases_detected_total",
				Help: "Total phrases detected by category",
			},
			[]string{"category"},
		),
		SegmentsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "penf_live_segments_total",
				Help: "Total transcript segments scanned",
			},
		),

		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "penf_live_queue_depth",
				Help: "Items waiting for or undergoing enhancement",
			},
			[]string{"state"},
		),
		QueueWaitSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "penf_live_queue_wait_seconds",
				Help:    "Time from detection to dispatch",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30, 60},
			},
		),

		EnhanceRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "penf_live_enhance_requests_total",
				Help: "Total enhancement requests by provider and outcome",
			},
			[]string{"provider", "status"},
		),
		EnhanceLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "penf_live_enhance_latency_seconds",
				Help:    "Enhancement request latency",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"provider"},
		),
		EnhanceConfidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "penf_live_enhance_confidence",
				Help:    "Confidence reported by the enhancement service",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
			},
		),

		ItemActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "penf_live_item_actions_total",
				Help: "User actions applied to live items",
			},
			[]string{"action"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "penf_live_active_sessions",
				Help: "Open live sessions",
			},
		),

		EventsPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "penf_live_events_published_total",
				Help: "Item events published to redis",
			},
			[]string{"event_type", "status"},
		),
		MirrorFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "penf_live_mirror_failures_total",
				Help: "Persistence mirror failures that triggered a rollback",
			},
			[]string{"operation"},
		),
	}
}

// RecordDetection records a detected phrase.
func (m *LiveMetrics) RecordDetection(category string) {
	if m == nil {
		return
	}
	m.PhrasesDetectedTotal.WithLabelValues(category).Inc()
}

// RecordSegment records a scanned transcript segment.
func (m *LiveMetrics) RecordSegment() {
	if m == nil {
		return
	}
	m.SegmentsTotal.Inc()
}

// AddQueueDepth adjusts the queue depth for a state by delta.
func (m *LiveMetrics) AddQueueDepth(state string, delta float64) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(state).Add(delta)
}

// RecordQueueWait records how long an item waited before dispatch.
func (m *LiveMetrics) RecordQueueWait(seconds float64) {
	if m == nil {
		return
	}
	m.QueueWaitSeconds.Observe(seconds)
}

// RecordEnhancement records one enhancement request outcome and its latency.
func (m *LiveMetrics) RecordEnhancement(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.EnhanceRequestsTotal.WithLabelValues(provider, status).Inc()
	m.EnhanceLatencySeconds.WithLabelValues(provider).Observe(seconds)
}

// RecordConfidence records a confidence value returned by the service.
func (m *LiveMetrics) RecordConfidence(confidence float64) {
	if m == nil {
		return
	}
	m.EnhanceConfidence.Observe(confidence)
}

// RecordItemAction records a confirm, dismiss, remove, update or reset.
func (m *LiveMetrics) RecordItemAction(action string) {
	if m == nil {
		return
	}
	m.ItemActionsTotal.WithLabelValues(action).Inc()
}

// AddActiveSessions adjusts the open session gauge.
func (m *LiveMetrics) AddActiveSessions(delta float64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(delta)
}

// RecordEventPublished records a publish attempt.
func (m *LiveMetrics) RecordEventPublished(eventType, status string) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// RecordMirrorFailure records a persistence failure for an operation.
func (m *LiveMetrics) RecordMirrorFailure(operation string) {
	if m == nil {
		return
	}
	m.MirrorFailuresTotal.WithLabelValues(operation).Inc()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox outcomes recorded per event.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks the outbox publisher. A nil *OutboxMetrics records nothing.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	batch   prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox rows handled by the publisher, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_duration_seconds",
			Help:      "Time spent waiting for Pub/Sub to acknowledge a publish.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15},
		}, []string{"topic"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_size",
			Help:      "Rows claimed per publisher batch.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	reg.MustRegister(m.events, m.latency, m.batch)
	return m
}

func (m *OutboxMetrics) Event(topic, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(topic), outcome).Inc()
}

func (m *OutboxMetrics) PublishLatency(topic string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(normalizeLabel(topic)).Observe(elapsed.Seconds())
}

func (m *OutboxMetrics) Batch(size int) {
	if m == nil {
		return
	}
	m.batch.Observe(float64(size))
}

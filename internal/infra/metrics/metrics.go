// Package metrics exposes the notifier's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notifier"

// Collector owns a private registry so tests and multiple instances never
// collide on the global one. All methods are safe on a nil receiver.
type Collector struct {
	registry *prometheus.Registry

	Enqueued         *prometheus.CounterVec
	DispatchOutcomes *prometheus.CounterVec
	RowsSkipped      prometheus.Counter
	CycleDuration    prometheus.Histogram
	SendDuration     *prometheus.HistogramVec
	SignalsRecorded  *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them, together with the
// Go runtime and process collectors, on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		Enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueued_total",
			Help:      "queueNotification calls by channel and result (queued, disabled, no_profile, invalid).",
		}, []string{"channel", "result"}),
		DispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Per-entry dispatch outcomes by channel.",
		}, []string{"channel", "outcome"}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_rows_skipped_total",
			Help:      "Malformed engagement rows skipped by the aggregator.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_cycle_seconds",
			Help:      "Duration of dispatch cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		SendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_seconds",
			Help:      "Channel sender call latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"channel"}),
		SignalsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engagement_signals_total",
			Help:      "Engagement signals by kind and source.",
		}, []string{"kind", "source"}),
	}
	reg.MustRegister(
		c.Enqueued, c.DispatchOutcomes, c.RowsSkipped, c.CycleDuration, c.SendDuration, c.SignalsRecorded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordEnqueue(channel, result string) {
	if c == nil {
		return
	}
	c.Enqueued.WithLabelValues(channel, result).Inc()
}

func (c *Collector) RecordOutcome(channel, outcome string) {
	if c == nil {
		return
	}
	c.DispatchOutcomes.WithLabelValues(channel, outcome).Inc()
}

func (c *Collector) RecordSkippedRow() {
	if c == nil {
		return
	}
	c.RowsSkipped.Inc()
}

func (c *Collector) ObserveCycle(d time.Duration) {
	if c == nil {
		return
	}
	c.CycleDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveSend(channel string, d time.Duration) {
	if c == nil {
		return
	}
	c.SendDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func (c *Collector) RecordSignal(kind, source string) {
	if c == nil {
		return
	}
	c.SignalsRecorded.WithLabelValues(kind, source).Inc()
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics holds the crawler's Prometheus collectors. A nil *Metrics
// is valid and records nothing, so components can take one unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/citation-crawler/pkg/types"
)

const namespace = "citation_crawler"

// Metrics groups every collector registered for one run.
type Metrics struct {
	reg *prometheus.Registry

	graphRequests *prometheus.CounterVec
	limiterWait   prometheus.Histogram
	outcomes      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	frontier      *prometheus.GaugeVec
	downloads     *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		graphRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "requests_total",
			Help:      "Graph API attempts by endpoint and result.",
		}, []string{"endpoint", "result"}),
		limiterWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "limiter_wait_seconds",
			Help:      "Time spent waiting for a rate limiter token.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Terminal outcomes committed to the frontier.",
		}, []string{"outcome"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		frontier: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "frontier",
			Name:      "papers",
			Help:      "Papers per frontier collection.",
		}, []string{"collection"}),
		downloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acquire",
			Name:      "downloads_total",
			Help:      "Content download attempts by result.",
		}, []string{"result"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) GraphRequest(endpoint, result string) {
	if m == nil {
		return
	}
	m.graphRequests.WithLabelValues(endpoint, result).Inc()
}

func (m *Metrics) LimiterWait(d time.Duration) {
	if m == nil {
		return
	}
	m.limiterWait.Observe(d.Seconds())
}

func (m *Metrics) Outcome(o types.Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) Stage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) Download(result string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(result).Inc()
}

// Frontier publishes the current collection sizes.
func (m *Metrics) Frontier(c types.Counts) {
	if m == nil {
		return
	}
	m.frontier.WithLabelValues("queue").Set(float64(c.Pending))
	m.frontier.WithLabelValues("in_flight").Set(float64(c.InFlight))
	m.frontier.WithLabelValues("processed").Set(float64(c.Processed))
	m.frontier.WithLabelValues("skipped").Set(float64(c.Skipped))
	m.frontier.WithLabelValues("failed").Set(float64(c.Failed))
}

// WriteTextfile dumps every collector in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}

// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kylenessen/ramble/internal/resilience"
)

// Pipeline stages used as the stage label on duration observations.
const (
	StageClaim      = "claim"
	StageDownload   = "download"
	StageTranscribe = "transcribe"
	StageEnhance    = "enhance"
	StageOrganize   = "organize"
	StageFinalize   = "finalize"
)

// Metrics holds the collectors for the processing pipeline.
type Metrics struct {
	Scans          prometheus.Counter
	ScanErrors     prometheus.Counter
	ItemsProcessed prometheus.Counter
	ItemsFailed    prometheus.Counter
	StageDuration  *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec
}

// New builds the metric set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ramble",
			Name:      "inbox_scans_total",
			Help:      "Number of inbox scans performed.",
		}),
		ScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ramble",
			Name:      "inbox_scan_errors_total",
			Help:      "Number of scans that failed before any item was processed.",
		}),
		ItemsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ramble",
			Name:      "items_processed_total",
			Help:      "Recordings processed to completion.",
		}),
		ItemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ramble",
			Name:      "items_failed_total",
			Help:      "Recordings that ended in the failed folder.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ramble",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 3, 10),
		}, []string{"stage"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ramble",
			Name:      "circuit_breaker_open",
			Help:      "1 when the named circuit breaker is open, 0 otherwise.",
		}, []string{"breaker"}),
	}
	reg.MustRegister(
		m.Scans, m.ScanErrors, m.ItemsProcessed, m.ItemsFailed,
		m.StageDuration, m.breakerState,
	)
	return m
}

// ObserveBreaker wires a breaker's state transitions into the breaker gauge.
func (m *Metrics) ObserveBreaker(b *resilience.Breaker, name string) {
	m.breakerState.WithLabelValues(name).Set(0)
	b.OnStateChange(func(_ string, state resilience.BreakerState) {
		if state == resilience.StateOpen {
			m.breakerState.WithLabelValues(name).Set(1)
		} else {
			m.breakerState.WithLabelValues(name).Set(0)
		}
	})
}

// Package metrics exposes Prometheus collectors for the sync engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "progress_sync"

type Metrics struct {
	saves        *prometheus.CounterVec
	loads        *prometheus.CounterVec
	background   *prometheus.CounterVec
	queueDepth   prometheus.Gauge
	queueDropped prometheus.Counter
	drains       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Save calls by outcome.",
		}, []string{"outcome"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Load calls by the source of the returned record.",
		}, []string{"source"}),
		background: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_writes_total",
			Help:      "Mirror and repair writes by kind and outcome.",
		}, []string{"kind", "outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_entries",
			Help:      "Pending offline queue entries.",
		}),
		queueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_total",
			Help:      "Offline queue entries dropped after exhausting their attempts.",
		}),
		drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_replays_total",
			Help:      "Offline queue entry replays by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.saves, m.loads, m.background, m.queueDepth, m.queueDropped, m.drains)
	return m
}

func (m *Metrics) ObserveSave(outcome string) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLoad(source string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveBackground(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.background.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) ObserveDrain(succeeded, retrying, dropped int) {
	if m == nil {
		return
	}
	m.drains.WithLabelValues("succeeded").Add(float64(succeeded))
	m.drains.WithLabelValues("retrying").Add(float64(retrying))
	m.drains.WithLabelValues("dropped").Add(float64(dropped))
	m.queueDropped.Add(float64(dropped))
}

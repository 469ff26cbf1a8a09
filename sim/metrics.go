package sim

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports eviction decisions as prometheus counters labelled by device and policy.
type Metrics struct {
	plans          *prometheus.CounterVec
	underfilled    *prometheus.CounterVec
	evictedChunks  *prometheus.CounterVec
	evictedBytes   *prometheus.CounterVec
	shortfallBytes *prometheus.CounterVec
}

var metricLabels = []string{"device", "policy"}

// NewMetrics creates the eviction counters. Register them with Register.
func NewMetrics() *Metrics {
	return &Metrics{
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunksim_eviction_plans_total",
			Help: "Number of eviction plans derived.",
		}, metricLabels),
		underfilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunksim_eviction_underfilled_plans_total",
			Help: "Number of eviction plans that could not free the requested bytes.",
		}, metricLabels),
		evictedChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunksim_eviction_planned_chunks_total",
			Help: "Number of chunks designated for eviction.",
		}, metricLabels),
		evictedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunksim_eviction_planned_bytes_total",
			Help: "Payload bytes designated for eviction.",
		}, metricLabels),
		shortfallBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chunksim_eviction_shortfall_bytes_total",
			Help: "Requested bytes that eviction plans failed to free.",
		}, metricLabels),
	}
}

// Register adds all counters to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.plans, m.underfilled, m.evictedChunks, m.evictedBytes, m.shortfallBytes} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe records one derived plan.
func (m *Metrics) Observe(policy string, target Device, plan EvictionPlan) {
	dev := target.String()
	m.plans.WithLabelValues(dev, policy).Inc()
	m.evictedChunks.WithLabelValues(dev, policy).Add(float64(len(plan.ChunkIDs)))
	m.evictedBytes.WithLabelValues(dev, policy).Add(float64(plan.FreedBytes))
	if !plan.Satisfied() {
		m.underfilled.WithLabelValues(dev, policy).Inc()
		m.shortfallBytes.WithLabelValues(dev, policy).Add(float64(plan.Shortfall()))
	}
}

// Package metrics exposes cycle, probe and remediation counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hamed0406/poolwatch/internal/domain"
)

type Metrics struct {
	Cycles         prometheus.Counter
	CycleDuration  prometheus.Histogram
	ProbeAttempts  *prometheus.CounterVec
	Verdicts       *prometheus.CounterVec
	Remediations   *prometheus.CounterVec
	PoolHashrate   *prometheus.GaugeVec
	StratumSkipped prometheus.Counter
}

// New registers all collectors on reg. A nil reg leaves them unregistered,
// which is what tests that never scrape want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poolwatch_cycles_total",
			Help: "Completed health-check cycles.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poolwatch_cycle_duration_seconds",
			Help:    "Wall time of one health-check cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		ProbeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolwatch_probe_attempts_total",
			Help: "Individual probe attempts by target kind and result.",
		}, []string{"kind", "result"}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolwatch_verdicts_total",
			Help: "Target verdicts by kind.",
		}, []string{"kind", "verdict"}),
		Remediations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poolwatch_remediations_total",
			Help: "Restart requests by trigger reason and outcome.",
		}, []string{"reason", "result"}),
		PoolHashrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poolwatch_pool_hashrate",
			Help: "Last observed hashrate per web target and coin.",
		}, []string{"target", "coin"}),
		StratumSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poolwatch_stratum_skipped_total",
			Help: "Cycles whose stratum checks were deferred by a web-tier restart.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Cycles, m.CycleDuration, m.ProbeAttempts, m.Verdicts,
			m.Remediations, m.PoolHashrate, m.StratumSkipped)
	}
	return m
}

func (m *Metrics) ObserveAttempt(kind domain.Kind, success bool, reason string) {
	result := "success"
	if !success {
		result = reason
	}
	m.ProbeAttempts.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) ObserveReport(r domain.TargetReport) {
	m.Verdicts.WithLabelValues(string(r.Kind), string(r.Verdict)).Inc()
	for _, p := range r.Pools {
		m.PoolHashrate.WithLabelValues(string(r.ID), p.Pool.Coin).Set(p.Observed)
	}
}

func (m *Metrics) ObserveRemediation(reason domain.Verdict, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Remediations.WithLabelValues(string(reason), result).Inc()
}

func (m *Metrics) ObserveCycle(res domain.CycleResult) {
	m.Cycles.Inc()
	m.CycleDuration.Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	if res.StratumSkipped {
		m.StratumSkipped.Inc()
	}
}

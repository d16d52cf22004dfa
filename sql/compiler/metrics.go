package compiler

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	compiles     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	cacheHits    prometheus.Counter
	permutations prometheus.Counter
	phases       *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planforge",
			Name:      "compiles_total",
			Help:      "Statements compiled, by statement kind.",
		}, []string{"statement"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planforge",
			Name:      "compile_failures_total",
			Help:      "Failed compilations, by phase and error category.",
		}, []string{"phase", "category"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "planforge",
			Name:      "statement_cache_hits_total",
			Help:      "Compilations answered from the statement cache.",
		}),
		permutations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "planforge",
			Name:      "optimizer_permutations_total",
			Help:      "Join order permutations costed by the optimizer.",
		}),
		phases: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "planforge",
			Name:      "compile_phase_seconds",
			Help:      "Time spent in each compile phase.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"phase"}),
	}
	if reg != nil {
		reg.MustRegister(m.compiles, m.failures, m.cacheHits, m.permutations, m.phases)
	}
	return m
}

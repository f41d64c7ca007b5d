package runtime

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics groups the Prometheus collectors of an Engine.
// Collectors always exist; they are exported only when a Registerer is configured.
type metrics struct {
	passes   prometheus.Counter
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	aborts   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actdata_execution_passes_total",
			Help: "Total number of execution passes",
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actdata_function_runs_total",
				Help: "Tree Function outcomes by function and status",
			},
			[]string{"function", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "actdata_function_duration_seconds",
				Help: "Duration of Tree Function executions",
			},
			[]string{"function"},
		),
		aborts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actdata_execution_aborts_total",
				Help: "Execution passes that aborted the commit, by reason",
			},
			[]string{"reason"},
		),
	}
	if reg == nil {
		return m
	}
	m.passes = register(reg, m.passes)
	m.runs = register(reg, m.runs)
	m.duration = register(reg, m.duration)
	m.aborts = register(reg, m.aborts)
	return m
}

// register adds c to reg, reusing the collector already registered under the same name.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

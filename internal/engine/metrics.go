package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks environment activity.
//
// Metrics:
//   - rulescript_dispatches_total: Trigger and broadcast dispatches by kind
//   - rulescript_rules_fired_total: Rules whose conditions passed
//   - rulescript_action_results_total: Action invocations by result status
//   - rulescript_guard_drops_total: Dispatches refused by the guard by reason
//   - rulescript_scope_pool_grown_total: Scopes allocated past the pool by bank
//   - rulescript_running_tasks: Tasks alive after the last tick
//   - rulescript_tick_duration_seconds: Tick duration
type Metrics struct {
	dispatches    *prometheus.CounterVec
	rulesFired    prometheus.Counter
	actionResults *prometheus.CounterVec
	guardDrops    *prometheus.CounterVec
	poolGrown     *prometheus.CounterVec
	runningTasks  prometheus.Gauge
	tickDuration  prometheus.Histogram
}

// NewMetrics creates the environment metrics and registers them with reg.
// A nil reg leaves them unregistered, which keeps tests isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rulescript",
				Name:      "dispatches_total",
				Help:      "Total number of trigger dispatches",
			},
			[]string{"kind"},
		),
		rulesFired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rulescript",
				Name:      "rules_fired_total",
				Help:      "Total number of rules whose conditions passed",
			},
		),
		actionResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rulescript",
				Name:      "action_results_total",
				Help:      "Total number of action invocations by result status",
			},
			[]string{"status"},
		),
		guardDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rulescript",
				Name:      "guard_drops_total",
				Help:      "Total number of dispatches refused by the dispatch guard",
			},
			[]string{"reason"},
		),
		poolGrown: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rulescript",
				Name:      "scope_pool_grown_total",
				Help:      "Total number of execution scopes allocated past the pool",
			},
			[]string{"bank"},
		),
		runningTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rulescript",
				Name:      "running_tasks",
				Help:      "Number of rule tasks alive after the last tick",
			},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rulescript",
				Name:      "tick_duration_seconds",
				Help:      "Duration of environment ticks in seconds",
				// Frames should be well under 16ms
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12), // 10µs to 20ms
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.dispatches,
			m.rulesFired,
			m.actionResults,
			m.guardDrops,
			m.poolGrown,
			m.runningTasks,
			m.tickDuration,
		)
	}
	return m
}

package deploy

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	tugmetrics "github.com/tugboat-ci/tugboat/pkg/metrics"
)

var (
	cycleDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "tugboat",
		Subsystem: "deploy",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of deployment cycles, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{tugmetrics.LabelOutcome})

	phaseTransitions = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "tugboat",
		Subsystem: "deploy",
		Name:      "phase_transitions_total",
		Help:      "Count of state machine phase transitions.",
	}, []string{tugmetrics.LabelPhase})
)

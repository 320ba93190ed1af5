package mirror

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	tugmetrics "github.com/tugboat-ci/tugboat/pkg/metrics"
)

var (
	syncDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "tugboat",
		Subsystem: "mirror",
		Name:      "sync_duration_seconds",
		Help:      "Duration of mirror sync cycles, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{tugmetrics.LabelSuccess})

	transfersTotal = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "tugboat",
		Subsystem: "mirror",
		Name:      "transfers_total",
		Help:      "Count of artifact pull/push transfers into the mirror.",
	}, []string{tugmetrics.LabelSuccess})
)

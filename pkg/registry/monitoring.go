package registry

// Monitoring middleware for registry clients

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	tugmetrics "github.com/tugboat-ci/tugboat/pkg/metrics"
)

const (
	RequestKindTags   = "tags"
	RequestKindDigest = "digest"
)

var remoteDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "tugboat",
	Subsystem: "registry",
	Name:      "fetch_duration_seconds",
	Help:      "Duration of remote registry requests, in seconds.",
	Buckets:   stdprometheus.DefBuckets,
}, []string{tugmetrics.LabelRequestKind, tugmetrics.LabelSuccess})

type instrumentedClient struct {
	next Client
}

func NewInstrumentedClient(next Client) Client {
	return &instrumentedClient{
		next: next,
	}
}

func (m *instrumentedClient) Tags(ctx context.Context) (res []string, err error) {
	start := time.Now()
	res, err = m.next.Tags(ctx)
	remoteDuration.With(
		tugmetrics.LabelRequestKind, RequestKindTags,
		tugmetrics.LabelSuccess, strconv.FormatBool(err == nil),
	).Observe(time.Since(start).Seconds())
	return
}

func (m *instrumentedClient) Digest(ctx context.Context, tag string) (res string, err error) {
	start := time.Now()
	res, err = m.next.Digest(ctx, tag)
	remoteDuration.With(
		tugmetrics.LabelRequestKind, RequestKindDigest,
		tugmetrics.LabelSuccess, strconv.FormatBool(err == nil || IsNotFound(err)),
	).Observe(time.Since(start).Seconds())
	return
}

package rss

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feeder_fetch_total",
		Help: "Feed fetches by result (ok, fetch_error, parse_error, invalid_url)",
	}, []string{"result"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feeder_fetch_duration_seconds",
		Help:    "Time spent fetching and parsing a single feed",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms doubling to ~25s
	})
)

func resultLabel(err error) string {
	switch err.(type) {
	case nil:
		return "ok"
	case *FetchError:
		return "fetch_error"
	case *ParseError:
		return "parse_error"
	case *ArgumentError:
		return "invalid_url"
	default:
		return "error"
	}
}

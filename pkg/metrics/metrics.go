package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Replies by final outcome (quoted, unresolved, off_topic, fetch_failed)
	Replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_replies_total",
			Help: "Replies emitted, by outcome",
		}, []string{"outcome"})

	// Resolutions by the strategy that decided them
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_resolutions_total",
			Help: "Token resolutions, by strategy and result",
		}, []string{"strategy", "result"})

	PriceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_fetch_total",
			Help: "Price fetch attempts, by result",
		}, []string{"result"})
	PriceFetchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_fetch_latency_seconds",
			Help:    "Time to fetch one price",
			Buckets: prometheus.DefBuckets,
		})

	Completions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_requests_total",
			Help: "Completion service calls, by result",
		}, []string{"result"})

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		})
)

func init() {
	prometheus.MustRegister(
		Replies, Resolutions,
		PriceFetches, PriceFetchLatency,
		Completions, RateLimited,
	)
}

// Result maps an error to a "success"/"error" label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

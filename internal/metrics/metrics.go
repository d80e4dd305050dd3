package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowball_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snowball_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowball_turns_total",
			Help: "Total number of conversational turns by outcome.",
		},
		[]string{"outcome"},
	)

	TokensCommittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snowball_tokens_committed_total",
			Help: "Total tokens committed against user quotas.",
		},
	)

	ModelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowball_model_calls_total",
			Help: "Total model transport attempts by operation and result.",
		},
		[]string{"operation", "status"},
	)

	ModelCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snowball_model_call_duration_seconds",
			Help:    "Model transport call duration in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"operation"},
	)

	SummarizationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snowball_summarizations_total",
			Help: "Total successful history summarizations.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TurnsTotal,
		TokensCommittedTotal,
		ModelCallsTotal,
		ModelCallDuration,
		SummarizationsTotal,
	)
}

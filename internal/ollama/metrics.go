package ollama

import "github.com/prometheus/client_golang/prometheus"

const (
	resultOK          = "ok"
	resultUnavailable = "unavailable"
	resultStatus      = "status_error"
)

var (
	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream daemon calls by operation and result",
		},
		[]string{"op", "result"},
	)

	upstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relayd",
			Subsystem: "upstream",
			Name:      "response_header_seconds",
			Help:      "Time until the upstream daemon answered with headers (or failed)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(upstreamRequests, upstreamLatency)
}

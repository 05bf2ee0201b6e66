package relay

import "github.com/prometheus/client_golang/prometheus"

const (
	endEOF           = "eof"
	endCallerGone    = "caller_gone"
	endUpstreamError = "upstream_error"
)

var (
	streamsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "relayd",
			Subsystem: "chat",
			Name:      "streams_inflight",
			Help:      "Chat streams currently being relayed",
		},
	)

	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "chat",
			Name:      "stream_bytes_total",
			Help:      "Bytes relayed from upstream generation streams to callers",
		},
	)

	streamChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "chat",
			Name:      "stream_chunks_total",
			Help:      "Chunks written to callers",
		},
	)

	streamEnds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "chat",
			Name:      "stream_end_total",
			Help:      "Finished chat streams by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(streamsInflight, streamBytes, streamChunks, streamEnds)
}

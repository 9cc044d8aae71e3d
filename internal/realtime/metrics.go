package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_client_events_total",
		Help: "Client events enqueued to the realtime session by type",
	}, []string{"type"})

	metricDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_send_drops_total",
		Help: "Client events dropped due to a full send queue",
	})

	metricStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_stale_events_discarded_total",
		Help: "Outbound events queued for a dropped session and discarded on reconnect",
	})

	metricReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_server_events_total",
		Help: "Server events received from the realtime session",
	})

	metricParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_parse_errors_total",
		Help: "Server frames that could not be decoded",
	})

	metricReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_reconnects_total",
		Help: "Total connections established to the realtime endpoint",
	})

	metricCircuitOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_circuit_open_total",
		Help: "Circuit breaker open events",
	})

	metricConnectMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "realtime_connect_ms",
		Help:    "Time to establish the realtime connection (ms)",
		Buckets: prometheus.ExponentialBuckets(10, 1.8, 10),
	})

	gaugeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_send_queue_depth",
		Help: "Current depth of the realtime send queue (last observed)",
	})
)

package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tool_calls_total",
		Help: "Tool calls by function and outcome (ok, decode_error, error, panic, sink_error)",
	}, []string{"function", "outcome"})

	metricCallMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tool_call_ms",
		Help:    "Tool execution latency (ms)",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	}, []string{"function"})

	metricAbandoned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tool_calls_abandoned_total",
		Help: "Tool calls given up on after their deadline or shutdown while the tool still ran",
	}, []string{"function"})

	gaugeInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tool_calls_in_flight",
		Help: "Tool calls dispatched and not yet completed",
	})
)

package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_events_total",
		Help: "Known server events routed by type",
	}, []string{"type"})

	metricUnhandled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "router_unhandled_events_total",
		Help: "Server events of an unrecognized kind",
	})

	metricDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "router_audio_decode_errors_total",
		Help: "Audio fragments dropped because they could not be decoded",
	})

	metricAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "router_audio_bytes_total",
		Help: "Decoded assistant audio bytes sent to playback",
	})
)

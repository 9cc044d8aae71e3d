package workerws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workerws_device_connections_total",
		Help: "Device websocket connections by outcome (accepted, replaced, unauthorized)",
	}, []string{"outcome"})

	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workerws_device_messages_total",
		Help: "Control messages received from the device by type",
	}, []string{"type"})

	metricMicBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workerws_mic_bytes_total",
		Help: "Microphone PCM bytes received from the device",
	})

	metricPlaybackFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workerws_playback_frames_total",
		Help: "Assistant audio frames by outcome",
	}, []string{"outcome"})
)

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orch_state_transitions_total",
		Help: "Conversation state transitions",
	}, []string{"from", "to"})

	metricLocalEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orch_local_events_total",
		Help: "Capture pipeline signals received by kind",
	}, []string{"kind"})

	metricSilence = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orch_silence_firings_total",
		Help: "Silence timer firings by outcome (expired, rearmed, stale)",
	}, []string{"outcome"})

	metricMicFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orch_mic_frames_total",
		Help: "Microphone frames by outcome (forwarded, gated)",
	}, []string{"outcome"})

	gaugeInboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orch_inbox_depth",
		Help: "Coordinator inbox depth (last observed)",
	})
)

package floor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricBargeIn = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "floor_interruptions_total",
	Help: "Assistant responses interrupted by the user, by reason",
}, []string{"reason"})

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ControlLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "detector",
			Subsystem: "control",
			Name:      "latency_seconds",
			Help:      "Latency of control surface endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ControlErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "detector",
			Subsystem: "control",
			Name:      "errors_total",
			Help:      "Failed control operations by endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ControlLatency, ControlErrors)
	})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsHandled *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	published     *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	hookFailures  *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	active        *prometheus.GaugeVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		eventsHandled: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detector_events_handled_total",
				Help: "Inbound events delivered to the active detector",
			},
			[]string{"kind"},
		),
		eventsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detector_events_dropped_total",
				Help: "Inbound events dropped before reaching a detector handler",
			},
			[]string{"kind", "reason"},
		),
		published: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detector_messages_published_total",
				Help: "Outbound detector messages published to the bus",
			},
			[]string{"event_type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detector_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		hookFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "detector_plugin_hook_failures_total",
				Help: "Plugin hook invocations that returned an error or panicked",
			},
			[]string{"hook", "plugin"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "detector_last_price",
				Help: "Last traded price seen for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "detector_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		active: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "detector_active",
				Help: "1 for the currently active detector sysname",
			},
			[]string{"sysname"},
		),
	}
}

func (r *Recorder) RecordEventHandled(kind string) {
	r.eventsHandled.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordEventDropped(kind, reason string) {
	r.eventsDropped.WithLabelValues(kind, reason).Inc()
}

func (r *Recorder) RecordPublished(eventType string) {
	r.published.WithLabelValues(eventType).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordHookFailure(hook, plugin string) {
	r.hookFailures.WithLabelValues(hook, plugin).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// SetActiveDetector flips the active gauge to sysname; empty means none.
func (r *Recorder) SetActiveDetector(sysname string) {
	r.active.Reset()
	if sysname != "" {
		r.active.WithLabelValues(sysname).Set(1)
	}
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordEventHandled(string)         {}
func (Nop) RecordEventDropped(string, string) {}
func (Nop) RecordPublished(string)            {}
func (Nop) RecordError(string)                {}
func (Nop) RecordHookFailure(string, string)  {}
func (Nop) RecordLastPrice(string, float64)   {}
func (Nop) RecordLatency(string, float64)     {}
func (Nop) SetActiveDetector(string)          {}

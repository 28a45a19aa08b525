package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Sink backed by github.com/prometheus/client_golang,
// registered against the given registerer (typically
// prometheus.DefaultRegisterer).
type Prometheus struct {
	counters   *prometheus.CounterVec
	latencies  *prometheus.HistogramVec
	gauges     *prometheus.GaugeVec
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schema_registry",
			Name:      "events_total",
			Help:      "Count of registry events by name and label set.",
		}, []string{"name", "label"}),
		latencies: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schema_registry",
			Name:      "operation_latency_seconds",
			Help:      "Latency of registry operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name", "label"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "schema_registry",
			Name:      "state",
			Help:      "Point-in-time registry state values.",
		}, []string{"name", "label"}),
	}
	reg.MustRegister(p.counters, p.latencies, p.gauges)
	return p
}

func label(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}

func (p *Prometheus) IncCounter(name string, labels ...string) {
	p.counters.WithLabelValues(name, label(labels)).Inc()
}

func (p *Prometheus) ObserveLatency(name string, d time.Duration, labels ...string) {
	p.latencies.WithLabelValues(name, label(labels)).Observe(d.Seconds())
}

func (p *Prometheus) SetGauge(name string, value float64, labels ...string) {
	p.gauges.WithLabelValues(name, label(labels)).Set(value)
}

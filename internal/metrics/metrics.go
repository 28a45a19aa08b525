// Package metrics defines the Sink interface the rest of the registry
// reports through, and a Prometheus-backed implementation. Metrics are
// out of scope for correctness (spec §1) but are carried as an ambient
// concern the way the original implementation's StatsClient call sites
// in schema_reader.py/schema_registry.py are: counters of records
// processed per key type, gauges of live subjects/schemas, and latency
// of the registration pipeline.
package metrics

import "time"

type Sink interface {
	IncCounter(name string, labels ...string)
	ObserveLatency(name string, d time.Duration, labels ...string)
	SetGauge(name string, value float64, labels ...string)
}

// Noop is the default sink: every call is free and does nothing, so the
// core never hard-depends on Prometheus being reachable.
type Noop struct{}

func (Noop) IncCounter(string, ...string)                    {}
func (Noop) ObserveLatency(string, time.Duration, ...string) {}
func (Noop) SetGauge(string, float64, ...string)             {}

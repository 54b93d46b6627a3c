// Package metrics defines the instrumentation interface used by the
// payment client. NoopRecorder is the default; NewPrometheusRecorder
// provides a Prometheus-backed implementation.
package metrics

import "time"

// Recorder receives payment flow events and latencies.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// NoopRecorder discards all metrics.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

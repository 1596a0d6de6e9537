package queue

import (
	"github.com/hirecraft/jdqueue/server/observability"
)

// Metrics receives queue lifecycle observations. Implementations must be
// safe for concurrent use.
type Metrics interface {
	ObserveEnqueue(userID string)
	ObserveAdmit(userID string)
	ObserveFinish(userID string, success bool, durationSec *float64)
	ObserveExpire(userID string)
	GaugeInflightGlobal(n int)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) ObserveEnqueue(string)                {}
func (NoopMetrics) ObserveAdmit(string)                  {}
func (NoopMetrics) ObserveFinish(string, bool, *float64) {}
func (NoopMetrics) ObserveExpire(string)                 {}
func (NoopMetrics) GaugeInflightGlobal(int)              {}

// PromMetrics forwards observations to the process-wide Prometheus
// collectors. Selected with QUEUE_METRICS=prom.
type PromMetrics struct{}

func (PromMetrics) ObserveEnqueue(userID string) {
	observability.QueueEnqueued.WithLabelValues(userID).Inc()
}

func (PromMetrics) ObserveAdmit(userID string) {
	observability.QueueAdmitted.WithLabelValues(userID).Inc()
}

func (PromMetrics) ObserveFinish(userID string, success bool, durationSec *float64) {
	status := "success"
	if !success {
		status = "failed"
	}
	observability.QueueFinished.WithLabelValues(userID, status).Inc()
	if durationSec != nil {
		observability.QueueDuration.Observe(*durationSec)
	}
}

func (PromMetrics) ObserveExpire(userID string) {
	observability.QueueExpired.WithLabelValues(userID).Inc()
}

func (PromMetrics) GaugeInflightGlobal(n int) {
	observability.QueueInflight.Set(float64(n))
}

// MetricsForBackend maps a config value to an implementation, defaulting to
// noop for unknown names.
func MetricsForBackend(backend string) Metrics {
	if backend == "prom" {
		return PromMetrics{}
	}
	return NoopMetrics{}
}

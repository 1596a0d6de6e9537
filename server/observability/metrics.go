package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueEnqueued counts requests accepted into per-user queues.
	QueueEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jdq_queue_enqueued_total",
		Help: "Total requests enqueued",
	}, []string{"user"})

	// QueueAdmitted counts requests promoted from queued to inflight.
	QueueAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jdq_queue_admitted_total",
		Help: "Total requests admitted to execution",
	}, []string{"user"})

	// QueueFinished counts terminal executions by outcome.
	QueueFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jdq_queue_finished_total",
		Help: "Total finished requests by status",
	}, []string{"user", "status"}) // status: success|failed

	// QueueExpired counts queued requests dropped by TTL.
	QueueExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jdq_queue_expired_total",
		Help: "Total requests expired while queued",
	}, []string{"user"})

	// QueueInflight tracks current global inflight.
	QueueInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jdq_queue_inflight_global",
		Help: "Current number of inflight requests",
	})

	// QueueDuration tracks admit-to-finish latency.
	QueueDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jdq_queue_duration_seconds",
		Help:    "Duration from admit to finish in seconds",
		Buckets: []float64{0.1, 0.3, 1, 3, 5, 10, 20, 30, 60, 120, 300},
	})

	// WorkerLoopDuration tracks the admission loop iteration time.
	WorkerLoopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jdq_worker_loop_duration_seconds",
		Help:    "Duration of one worker admission loop iteration",
		Buckets: prometheus.DefBuckets,
	})

	// SubscriberDropped counts events dropped on slow stream subscribers.
	SubscriberDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jdq_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full",
	}, []string{"event_type"})

	// EventsPublished counts events fanned out to task subscribers.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jdq_events_published_total",
		Help: "Events published to task subscribers",
	}, []string{"event_type"})

	// TasksByStatus counts task transitions by terminal status.
	TasksByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jdq_tasks_total",
		Help: "Tasks reaching a terminal status",
	}, []string{"status"}) // finished|failed

	// APIRateLimited counts submissions rejected by storm protection.
	APIRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jdq_api_rate_limited_total",
		Help: "API requests rejected by the per-user rate limiter",
	}, []string{"endpoint"})

	// SinkSaves counts Result Sink writes by outcome.
	SinkSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jdq_sink_saves_total",
		Help: "Result sink save attempts by outcome",
	}, []string{"backend", "outcome"}) // outcome: ok|error
)

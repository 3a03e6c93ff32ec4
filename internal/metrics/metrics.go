// Package metrics exposes queue-level Prometheus instrumentation.
// A Queue never requires a Collector to function: the default is a
// no-op sink so the core stays decoupled from any particular
// monitoring backend, per SPEC_FULL.md §4.8.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the instrumentation surface relayq.Queue reports to.
type Collector interface {
	JobEnqueued()
	JobCompleted(latency time.Duration)
	JobFailed(latency time.Duration)
	JobStalled()
	SetQueueDepths(waiting, active, delayed int)
}

// Noop implements Collector with no side effects.
type Noop struct{}

func (Noop) JobEnqueued()                                 {}
func (Noop) JobCompleted(time.Duration)                   {}
func (Noop) JobFailed(time.Duration)                      {}
func (Noop) JobStalled()                                  {}
func (Noop) SetQueueDepths(waiting, active, delayed int)  {}

// PromCollector is a Prometheus-backed Collector. Metric names are
// prefixed "relayq_" so multiple queues sharing a process/registry don't
// collide with unrelated instrumentation.
type PromCollector struct {
	enqueued *prometheus.CounterVec
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	stalled   *prometheus.CounterVec
	latency   *prometheus.HistogramVec

	waiting *prometheus.GaugeVec
	active  *prometheus.GaugeVec
	delayed *prometheus.GaugeVec

	queue string
}

// NewPromCollector registers (or re-uses, if already registered) the
// relayq_* metric families on reg and scopes every sample to one queue
// name via a "queue" label.
func NewPromCollector(reg prometheus.Registerer, queueName string) *PromCollector {
	c := &PromCollector{
		queue: queueName,
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayq_jobs_enqueued_total",
			Help: "Total number of jobs enqueued.",
		}, []string{"queue"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayq_jobs_completed_total",
			Help: "Total number of jobs that completed successfully.",
		}, []string{"queue"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayq_jobs_failed_total",
			Help: "Total number of jobs that ended in failed.",
		}, []string{"queue"}),
		stalled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayq_jobs_stalled_total",
			Help: "Total number of stall detections by the reaper.",
		}, []string{"queue"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relayq_job_latency_seconds",
			Help:    "Time from enqueue to terminal state, in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue", "outcome"}),
		waiting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relayq_jobs_waiting",
			Help: "Current number of jobs waiting to be processed.",
		}, []string{"queue"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relayq_jobs_active",
			Help: "Current number of jobs checked out by a worker.",
		}, []string{"queue"}),
		delayed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relayq_jobs_delayed",
			Help: "Current number of jobs waiting on their delay timer.",
		}, []string{"queue"}),
	}

	c.enqueued = registerOrReuse(reg, c.enqueued)
	c.completed = registerOrReuse(reg, c.completed)
	c.failed = registerOrReuse(reg, c.failed)
	c.stalled = registerOrReuse(reg, c.stalled)
	c.latency = registerOrReuse(reg, c.latency)
	c.waiting = registerOrReuse(reg, c.waiting)
	c.active = registerOrReuse(reg, c.active)
	c.delayed = registerOrReuse(reg, c.delayed)

	return c
}

func (c *PromCollector) JobEnqueued() {
	c.enqueued.WithLabelValues(c.queue).Inc()
}

func (c *PromCollector) JobCompleted(latency time.Duration) {
	c.completed.WithLabelValues(c.queue).Inc()
	c.latency.WithLabelValues(c.queue, "completed").Observe(latency.Seconds())
}

func (c *PromCollector) JobFailed(latency time.Duration) {
	c.failed.WithLabelValues(c.queue).Inc()
	c.latency.WithLabelValues(c.queue, "failed").Observe(latency.Seconds())
}

func (c *PromCollector) JobStalled() {
	c.stalled.WithLabelValues(c.queue).Inc()
}

func (c *PromCollector) SetQueueDepths(waiting, active, delayed int) {
	c.waiting.WithLabelValues(c.queue).Set(float64(waiting))
	c.active.WithLabelValues(c.queue).Set(float64(active))
	c.delayed.WithLabelValues(c.queue).Set(float64(delayed))
}

// registerOrReuse registers v on reg, or returns the already-registered
// CounterVec/GaugeVec sharing its fully-qualified name when another
// PromCollector on the same registry got there first.
func registerOrReuse[V interface {
	prometheus.Collector
}](reg prometheus.Registerer, v V) V {
	if err := reg.Register(v); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(V); ok {
				return existing
			}
		}
	}
	return v
}

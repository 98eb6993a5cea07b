// Package metrics exposes session activity as Prometheus metrics.
//
// A [Collector] owns a private registry and updates it from session events,
// so nothing here touches the process-wide default registry.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stepwise/internal/event"
)

const namespace = "stepwise"

// Collector records session events into Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	navigations *prometheus.CounterVec
	rejections  prometheus.Counter
	results     *prometheus.CounterVec
	ticks       *prometheus.CounterVec
	remaining   prometheus.Gauge
	durations   prometheus.Histogram
	completed   *prometheus.CounterVec
}

// New creates a collector with its own registry. Go runtime and process
// collectors are registered alongside the session metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		// Labels: outcome (changed, blocked), mode (normal, view_only, edit, or "" when blocked)
		navigations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "navigation",
			Name:      "total",
			Help:      "Navigation requests by outcome and resolved mode",
		}, []string{"outcome", "mode"}),

		rejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "rejected_total",
			Help:      "Submissions refused before reaching the recorder",
		}),

		// Labels: status (passed, failed)
		results: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "result",
			Name:      "submitted_total",
			Help:      "Recorded step results by status",
		}, []string{"status"}),

		// Labels: tier (normal, warning, critical, overtime)
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timer",
			Name:      "ticks_total",
			Help:      "Timer ticks by severity tier",
		}, []string{"tier"}),

		remaining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "timer",
			Name:      "remaining_seconds",
			Help:      "Seconds left on the running step, negative when overtime",
		}),

		durations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Elapsed seconds recorded with each step result",
			Buckets:   []float64{5, 10, 30, 60, 120, 300, 600, 1200},
		}),

		// Labels: manual (true when ended by finish)
		completed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "completed_total",
			Help:      "Completed sessions",
		}, []string{"manual"}),
	}
}

// Attach subscribes the collector to bus. The returned function detaches it.
func (c *Collector) Attach(bus *event.Bus) (detach func()) {
	id := bus.SubscribeAll(c.Observe)
	return func() { bus.Unsubscribe(id) }
}

// Observe records one event.
func (c *Collector) Observe(e event.Event) {
	switch ev := e.(type) {
	case event.StepChangedEvent:
		c.navigations.WithLabelValues("changed", ev.Mode.String()).Inc()
	case event.NavigationBlockedEvent:
		c.navigations.WithLabelValues("blocked", "").Inc()
	case event.SubmissionRejectedEvent:
		c.rejections.Inc()
	case event.ResultSubmittedEvent:
		c.results.WithLabelValues(ev.Status.String()).Inc()
		c.durations.Observe(float64(ev.Duration))
	case event.TimerTickEvent:
		c.ticks.WithLabelValues(ev.Tier.String()).Inc()
		c.remaining.Set(float64(ev.Remaining))
	case event.TestCompletedEvent:
		c.completed.WithLabelValues(strconv.FormatBool(ev.Manual)).Inc()
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

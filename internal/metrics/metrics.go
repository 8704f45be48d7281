package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obstacle-panel/backend/internal/model"
)

// Metrics owns a private registry so several instances can coexist in tests.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry         *prometheus.Registry
	pollsTotal       prometheus.Counter
	pollDuration     prometheus.Histogram
	fetchFailures    prometheus.Counter
	eventWindow      prometheus.Gauge
	obstacleCount    prometheus.Gauge
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	busyActuators    prometheus.Gauge
	subscribers      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "panel_polls_total",
			Help: "Total poll cycles completed.",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "panel_poll_duration_seconds",
			Help:    "Histogram of poll cycle durations (fetch and aggregate).",
			Buckets: prometheus.DefBuckets,
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "panel_event_fetch_failures_total",
			Help: "Event log fetches that degraded to an empty log.",
		}),
		eventWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "panel_event_window_size",
			Help: "Number of events in the last aggregated window.",
		}),
		obstacleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "panel_obstacle_count",
			Help: "Obstacle counter derived from the event log.",
		}),
		dispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_dispatches_total",
			Help: "Command dispatches by actuator subject and final state.",
		}, []string{"subject", "state"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panel_dispatch_duration_seconds",
			Help:    "Histogram of command dispatch durations by final state.",
			Buckets: prometheus.DefBuckets,
		}, []string{"state"}),
		busyActuators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "panel_busy_actuators",
			Help: "Actuators with a dispatch in flight.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "panel_view_subscribers",
			Help: "Open DeviceView subscriptions.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pollsTotal,
		m.pollDuration,
		m.fetchFailures,
		m.eventWindow,
		m.obstacleCount,
		m.dispatchesTotal,
		m.dispatchDuration,
		m.busyActuators,
		m.subscribers,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePoll(duration time.Duration, view model.DeviceView) {
	if m == nil {
		return
	}
	m.pollsTotal.Inc()
	m.pollDuration.Observe(duration.Seconds())
	m.eventWindow.Set(float64(view.EventCount))
	m.obstacleCount.Set(float64(view.ObstacleCount))
}

func (m *Metrics) FetchFailed(error) {
	if m == nil {
		return
	}
	m.fetchFailures.Inc()
}

func (m *Metrics) ObserveDispatch(subject string, state model.DispatchState, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchesTotal.WithLabelValues(subject, string(state)).Inc()
	m.dispatchDuration.WithLabelValues(string(state)).Observe(duration.Seconds())
}

func (m *Metrics) SetBusy(n int) {
	if m == nil {
		return
	}
	m.busyActuators.Set(float64(n))
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector of the service. All record methods are safe on a nil
// receiver so components can run without metrics wired in.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	admissions           *prometheus.CounterVec
	draws                *prometheus.CounterVec
	winnersSelected      *prometheus.CounterVec
	drawLatency          *prometheus.HistogramVec
	notificationsSent    *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	statusChanges        *prometheus.CounterVec
	lockWait             prometheus.Histogram
	lockTimeouts         prometheus.Counter
	httpRequests         *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
}

// NewManager creates a metrics manager. Without WithPrometheusRegistry a fresh
// registry is used so managers never collide on the global default.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "eventdraw",
		subsystem:        "waitlist",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.admissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "admissions_total",
		Help:      "Join attempts by admission result",
	}, []string{"result"})

	m.draws = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "draws_total",
		Help:      "Completed lottery rounds by kind and outcome",
	}, []string{"kind", "outcome"})

	m.winnersSelected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "winners_selected_total",
		Help:      "Entrants moved to Won by kind",
	}, []string{"kind"})

	m.drawLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "draw_duration_seconds",
		Help:      "Time spent inside a lottery round including notification",
		Buckets:   m.histogramBuckets,
	}, []string{"kind"})

	m.notificationsSent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_sent_total",
		Help:      "Outcome messages handed to the transport",
	}, []string{"kind"})

	m.notificationFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notification_failures_total",
		Help:      "Outcome messages the transport rejected",
	}, []string{"kind"})

	m.statusChanges = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "status_changes_total",
		Help:      "Entry status changes outside of draws",
	}, []string{"status"})

	m.lockWait = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for the per-event lock",
		Buckets:   m.histogramBuckets,
	})

	m.lockTimeouts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "lock_timeouts_total",
		Help:      "Per-event lock acquisitions that gave up",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   m.histogramBuckets,
	}, []string{"method", "route"})
}

// Registry returns the registry the collectors live in.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAdmission counts one join attempt.
func (m *Manager) RecordAdmission(result string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(result).Inc()
}

// RecordDraw counts one selection round and its winners.
func (m *Manager) RecordDraw(kind, outcome string, winners int, duration time.Duration) {
	if m == nil {
		return
	}
	m.draws.WithLabelValues(kind, outcome).Inc()
	m.winnersSelected.WithLabelValues(kind).Add(float64(winners))
	m.drawLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordNotification counts one send attempt.
func (m *Manager) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.notificationFailures.WithLabelValues(kind).Inc()
		return
	}
	m.notificationsSent.WithLabelValues(kind).Inc()
}

// RecordStatusChange counts a status change made by an entrant or organizer.
func (m *Manager) RecordStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// RecordLockWait observes how long a lock acquisition took.
func (m *Manager) RecordLockWait(d time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
	if timedOut {
		m.lockTimeouts.Inc()
	}
}

// GinMiddleware records request counts and latency per matched route.
func (m *Manager) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

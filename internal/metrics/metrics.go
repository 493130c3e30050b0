package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasksCreated        prometheus.Counter
	taskUpdates         *prometheus.CounterVec
	jobStatusRecomputed *prometheus.CounterVec
	attachmentUploads   *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopfloor_tasks_created_total",
			Help: "Total number of tasks created",
		}),
		taskUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfloor_task_updates_total",
			Help: "Total number of task updates by resulting status",
		}, []string{"status"}),
		jobStatusRecomputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfloor_job_status_recomputed_total",
			Help: "Total number of job status recomputations by derived status",
		}, []string{"status"}),
		attachmentUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfloor_attachment_uploads_total",
			Help: "Total number of attachment uploads by kind and result",
		}, []string{"kind", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfloor_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopfloor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.tasksCreated,
		m.taskUpdates,
		m.jobStatusRecomputed,
		m.attachmentUploads,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterPool exports connection pool gauges read on every scrape.
func (m *Metrics) RegisterPool(pool *pgxpool.Pool) {
	if m == nil || pool == nil {
		return
	}
	gauge := func(name, help string, fn func(*pgxpool.Stat) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(fn(pool.Stat()))
		})
	}
	m.registry.MustRegister(
		gauge("shopfloor_database_connections_active", "Number of acquired database connections", (*pgxpool.Stat).AcquiredConns),
		gauge("shopfloor_database_connections_idle", "Number of idle database connections", (*pgxpool.Stat).IdleConns),
		gauge("shopfloor_database_connections_max", "Maximum number of database connections", (*pgxpool.Stat).MaxConns),
	)
}

func (m *Metrics) RecordTaskCreated() {
	if m == nil {
		return
	}
	m.tasksCreated.Inc()
}

func (m *Metrics) RecordTaskUpdate(status string) {
	if m == nil {
		return
	}
	m.taskUpdates.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordJobStatus(status string) {
	if m == nil {
		return
	}
	m.jobStatusRecomputed.WithLabelValues(status).Inc()
}

// RecordUpload counts one attachment upload; result is "success" or "failure".
func (m *Metrics) RecordUpload(kind, result string) {
	if m == nil {
		return
	}
	m.attachmentUploads.WithLabelValues(kind, result).Inc()
}

// RecordHTTPRequest records one served request. route is the matched route
// pattern, not the raw path.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

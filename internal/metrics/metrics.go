// Package metrics собирает Prometheus-метрики уровней кэша, фоновых задач и HTTP.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "urlefy"

// Уровни хранения
const (
	TierLocal   = "local"
	TierShared  = "shared"
	TierDurable = "durable"
)

// Результаты обращения к уровню
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Статусы фоновых задач
const (
	TaskSucceeded = "succeeded"
	TaskRetried   = "retried"
	TaskFailed    = "failed"
	TaskRejected  = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	tierLookups   *prometheus.CounterVec
	urlsCreated   prometheus.Counter
	tasks         *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	warmedEntries prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New создаёт метрики в собственном реестре, так что тесты не делят глобальное состояние
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tierLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_lookups_total",
			Help:      "Lookups per storage tier by result",
		}, []string{"tier", "result"}),
		urlsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urls_created_total",
			Help:      "Total number of short URLs created",
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_tasks_total",
			Help:      "Background task outcomes",
		}, []string{"task", "status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Tasks waiting in the background queue",
		}),
		warmedEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_warmup_entries",
			Help:      "Entries loaded by the last cache warmup",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		m.tierLookups,
		m.urlsCreated,
		m.tasks,
		m.queueDepth,
		m.warmedEntries,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) TierLookup(tier, result string) {
	m.tierLookups.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) URLCreated() {
	m.urlsCreated.Inc()
}

func (m *Metrics) Task(task, status string) {
	m.tasks.WithLabelValues(task, status).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetWarmedEntries(n int) {
	m.warmedEntries.Set(float64(n))
}

func (m *Metrics) HTTPRequest(method, path string, status int, seconds float64) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(seconds)
}

// TasksCounter и TierLookups отдают векторы для чтения в тестах других пакетов
func (m *Metrics) TasksCounter() *prometheus.CounterVec {
	return m.tasks
}

func (m *Metrics) TierLookups() *prometheus.CounterVec {
	return m.tierLookups
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

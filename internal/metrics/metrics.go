package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qms/patient-queue/internal/models"
)

// Collector owns the service's Prometheus collectors on a private registry.
// A nil *Collector records nothing.
type Collector struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	mutationsTotal  *prometheus.CounterVec
	entries         *prometheus.GaugeVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		mutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_mutations_total",
				Help: "Queue mutations by operation and result",
			},
			[]string{"operation", "result"},
		),
		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "queue_entries",
				Help: "Queue entries currently held, by status",
			},
			[]string{"status"},
		),
	}
	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.mutationsTotal,
		c.entries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordMutation counts one store mutation; result is "ok" or an error code.
func (c *Collector) RecordMutation(operation, result string) {
	if c == nil {
		return
	}
	c.mutationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveEntries resets the per-status gauge from a full snapshot.
func (c *Collector) ObserveEntries(entries []models.QueueEntry) {
	if c == nil {
		return
	}
	counts := map[models.Status]int{
		models.StatusWaiting:    0,
		models.StatusProcessing: 0,
		models.StatusCompleted:  0,
		models.StatusCancelled:  0,
	}
	for _, entry := range entries {
		counts[entry.Status]++
	}
	for status, n := range counts {
		c.entries.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry; a nil collector answers 404.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

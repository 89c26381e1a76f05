// Package metrics exposes check and notification outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/aleister1102/marketplace-monitor/internal/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketplace_monitor"

// Collector is an engine observer feeding a private Prometheus registry
type Collector struct {
	registry *prometheus.Registry

	checks              *prometheus.CounterVec
	checkDuration       *prometheus.HistogramVec
	consecutiveFailures *prometheus.GaugeVec
	availableSizes      *prometheus.GaugeVec
	lastCheck           *prometheus.GaugeVec
	notifications       *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry, including the Go runtime and process collectors
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Completed check cycles by site and outcome.",
		}, []string{"site", "outcome"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Duration of check cycles by site.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"site"}),
		consecutiveFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Consecutive failed check cycles by site.",
		}, []string{"site"}),
		availableSizes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "available_sizes",
			Help:      "In-stock sizes across the site's URLs at the last successful check.",
		}, []string{"site"}),
		lastCheck: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_check_timestamp_seconds",
			Help:      "Unix time of the last completed check cycle by site.",
		}, []string{"site"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Availability notifications by site and delivery outcome.",
		}, []string{"site", "outcome"}),
	}

	c.registry.MustRegister(
		c.checks,
		c.checkDuration,
		c.consecutiveFailures,
		c.availableSizes,
		c.lastCheck,
		c.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry backing the collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// OnCheck records one completed check cycle
func (c *Collector) OnCheck(result monitor.CheckResult) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	c.checks.WithLabelValues(result.Site, outcome).Inc()
	c.checkDuration.WithLabelValues(result.Site).Observe(result.Duration.Seconds())
	c.consecutiveFailures.WithLabelValues(result.Site).Set(float64(result.ConsecutiveFailures))
	if !result.StartedAt.IsZero() {
		c.lastCheck.WithLabelValues(result.Site).Set(float64(result.StartedAt.Unix()))
	}
	if result.Success {
		c.availableSizes.WithLabelValues(result.Site).Set(float64(result.AvailableCount()))
	}
}

// OnNotification records one notification attempt
func (c *Collector) OnNotification(event models.ChangeEvent, delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	c.notifications.WithLabelValues(event.Site, outcome).Inc()
}

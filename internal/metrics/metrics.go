// Package metrics collects Prometheus metrics for the upload API and the
// conversion worker.
//
// Metrics:
//
//	audioconv_uploads_total{outcome}            accepted | rejected | failed
//	audioconv_jobs_enqueued_total
//	audioconv_jobs_finished_total{status}       completed | error
//	audioconv_job_duration_seconds              runner wall time
//	audioconv_notifications_total{outcome}      sent | failed | skipped
//	audioconv_downloads_total{outcome}          served | not_found
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "audioconv"

// Collector holds every metric of the service. A nil *Collector is valid
// and records nothing.
type Collector struct {
	uploads       *prometheus.CounterVec
	jobsEnqueued  prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobDuration   prometheus.Histogram
	notifications *prometheus.CounterVec
	downloads     *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector registers all metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload requests by outcome.",
		}, []string{"outcome"}),
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Conversion jobs submitted to the task queue.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Conversion jobs that produced a terminal result, by result status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of a conversion run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Webhook notifications by outcome.",
		}, []string{"outcome"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Download requests by outcome.",
		}, []string{"outcome"}),
		registry: reg,
	}

	reg.MustRegister(
		c.uploads,
		c.jobsEnqueued,
		c.jobsFinished,
		c.jobDuration,
		c.notifications,
		c.downloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordUpload(outcome string) {
	if c == nil {
		return
	}
	c.uploads.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordEnqueue() {
	if c == nil {
		return
	}
	c.jobsEnqueued.Inc()
}

// RecordJobFinished observes a terminal result.
func (c *Collector) RecordJobFinished(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.jobsFinished.WithLabelValues(status).Inc()
	c.jobDuration.Observe(d.Seconds())
}

func (c *Collector) RecordNotification(outcome string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordDownload(outcome string) {
	if c == nil {
		return
	}
	c.downloads.WithLabelValues(outcome).Inc()
}

// Outcome label values.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeSent     = "sent"
	OutcomeSkipped  = "skipped"
	OutcomeServed   = "served"
	OutcomeNotFound = "not_found"
)

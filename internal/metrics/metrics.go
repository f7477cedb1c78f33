package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the HTTP API, the workflows and
// the reconcile worker. A nil *Metrics is valid and records nothing.
type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	workflows      *prometheus.CounterVec
	reconcileTasks *prometheus.CounterVec
}

// MustNewMetrics registers the collectors on reg and panics on duplicate
// registration. Tests should pass a fresh prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gallery",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gallery",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by method and route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		workflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gallery",
				Name:      "workflow_total",
				Help:      "Upload, delete and list workflow runs by outcome.",
			},
			[]string{"workflow", "outcome"},
		),
		reconcileTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gallery",
				Name:      "reconcile_tasks_total",
				Help:      "Reconcile tasks handled by the worker, by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
	}

	reg.MustRegister(m.httpRequests, m.httpDuration, m.workflows, m.reconcileTasks)
	return m
}

func (m *Metrics) ObserveHTTP(method, route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(latency.Seconds())
}

func (m *Metrics) Workflow(workflow, outcome string) {
	if m == nil {
		return
	}
	m.workflows.WithLabelValues(workflow, outcome).Inc()
}

func (m *Metrics) ReconcileTask(taskType, outcome string) {
	if m == nil {
		return
	}
	m.reconcileTasks.WithLabelValues(taskType, outcome).Inc()
}

package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gebr/internal/job"
)

// Metrics counts scheduler activity. It implements scheduler.Observer.
type Metrics struct {
	registry    *prometheus.Registry
	submitted   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	outputBytes prometheus.Counter
}

// NewMetrics creates a private registry with the job counters and the
// process and Go runtime collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gebr",
			Name:      "jobs_submitted_total",
			Help:      "Jobs submitted, by queue.",
		}, []string{"queue"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gebr",
			Name:      "job_transitions_total",
			Help:      "Job status changes, by target status.",
		}, []string{"status"}),
		outputBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gebr",
			Name:      "job_output_bytes_total",
			Help:      "Bytes of program output relayed to clients.",
		}),
	}
	m.registry.MustRegister(
		m.submitted,
		m.transitions,
		m.outputBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// WatchClients exports the number of connected clients as reported by count.
func (m *Metrics) WatchClients(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gebr",
		Name:      "connected_clients",
		Help:      "Clients subscribed to job notifications.",
	}, func() float64 {
		return float64(count())
	}))
}

func (m *Metrics) JobSubmitted(queue string) {
	m.submitted.WithLabelValues(queue).Inc()
}

func (m *Metrics) JobStatus(status job.Status) {
	m.transitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) OutputChunk(bytes int) {
	m.outputBytes.Add(float64(bytes))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Package metrics exposes Prometheus counters for channel polling and the
// upload pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tubetok/tubetok/scraper"
)

// Metrics holds Prometheus counters and gauges for tubetok.
type Metrics struct {
	registry        *prometheus.Registry
	pollsTotal      *prometheus.CounterVec
	rotationsTotal  *prometheus.CounterVec
	newVideosTotal  *prometheus.CounterVec
	sinkErrorsTotal *prometheus.CounterVec
	pipelineTotal   *prometheus.CounterVec
	requestsTotal   prometheus.Counter
	errorsTotal     prometheus.Counter
	activeChannels  prometheus.Gauge
	activeTasks     prometheus.Gauge
}

// New creates and registers the metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tubetok_polls_total",
			Help: "Channel lookups by outcome",
		}, []string{"channel", "outcome"}),
		rotationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tubetok_credential_rotations_total",
			Help: "Credentials abandoned after an auth failure",
		}, []string{"channel"}),
		newVideosTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tubetok_new_videos_total",
			Help: "New videos detected",
		}, []string{"channel"}),
		sinkErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tubetok_sink_errors_total",
			Help: "New videos whose handling failed or panicked",
		}, []string{"channel"}),
		pipelineTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tubetok_pipeline_results_total",
			Help: "Pipeline runs by final step",
		}, []string{"step"}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubetok_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tubetok_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		activeChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tubetok_active_channels",
			Help: "Channels currently being polled",
		}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tubetok_active_tasks",
			Help: "Videos in the pipeline that have not finished",
		}),
	}

	registry.MustRegister(
		m.pollsTotal,
		m.rotationsTotal,
		m.newVideosTotal,
		m.sinkErrorsTotal,
		m.pipelineTotal,
		m.requestsTotal,
		m.errorsTotal,
		m.activeChannels,
		m.activeTasks,
	)
	return m
}

func (m *Metrics) ObservePoll(channelID string, outcome scraper.Outcome) {
	m.pollsTotal.WithLabelValues(channelID, outcome.String()).Inc()
}

func (m *Metrics) ObserveRotation(channelID string) {
	m.rotationsTotal.WithLabelValues(channelID).Inc()
}

func (m *Metrics) ObserveNewVideo(channelID string) {
	m.newVideosTotal.WithLabelValues(channelID).Inc()
}

func (m *Metrics) ObserveSinkError(channelID string) {
	m.sinkErrorsTotal.WithLabelValues(channelID).Inc()
}

// ObservePipeline counts a pipeline run that ended in step.
func (m *Metrics) ObservePipeline(step string) {
	m.pipelineTotal.WithLabelValues(step).Inc()
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

func (m *Metrics) SetActiveChannels(n int) {
	m.activeChannels.Set(float64(n))
}

func (m *Metrics) SetActiveTasks(n int) {
	m.activeTasks.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}

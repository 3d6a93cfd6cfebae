package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the broadcast engine.
type Metrics struct {
	registry                 *prometheus.Registry
	requestsTotal            prometheus.Counter
	manifestRequestsTotal    prometheus.Counter
	transcodeJobsTotal       *prometheus.CounterVec
	activeChannels           prometheus.Gauge
	pregenerationQueueDepth  prometheus.Gauge
	guideRebuildDurationSecs prometheus.Histogram
	errorsTotal              prometheus.Counter
}

// New creates and registers Prometheus metrics for the broadcast engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_requests_total",
		Help: "Total number of HTTP requests received",
	})
	manifestRequestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channel_manifest_requests_total",
		Help: "Total number of live-playlist manifest requests served",
	})
	transcodeJobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transcode_jobs_total",
		Help: "Total number of Transcode Worker invocations, by outcome",
	}, []string{"outcome"})
	activeChannels := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_channels",
		Help: "Number of channels currently broadcasting",
	})
	pregenerationQueueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pregeneration_queue_depth",
		Help: "Number of source items awaiting pre-generation across all channels",
	})
	guideRebuildDurationSecs := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "guide_rebuild_duration_seconds",
		Help: "Wall-clock time spent rebuilding the Program Guide cache",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		manifestRequestsTotal,
		transcodeJobsTotal,
		activeChannels,
		pregenerationQueueDepth,
		guideRebuildDurationSecs,
		errorsTotal,
	)

	return &Metrics{
		registry:                 registry,
		requestsTotal:            requestsTotal,
		manifestRequestsTotal:    manifestRequestsTotal,
		transcodeJobsTotal:       transcodeJobsTotal,
		activeChannels:           activeChannels,
		pregenerationQueueDepth:  pregenerationQueueDepth,
		guideRebuildDurationSecs: guideRebuildDurationSecs,
		errorsTotal:              errorsTotal,
	}
}

// IncRequests increments the total HTTP request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncManifestRequests increments the manifest-request counter.
func (m *Metrics) IncManifestRequests() {
	m.manifestRequestsTotal.Inc()
}

// IncTranscodeJobs increments the transcode-job counter for the given
// outcome ("complete", "failed", or "error").
func (m *Metrics) IncTranscodeJobs(outcome string) {
	m.transcodeJobsTotal.WithLabelValues(outcome).Inc()
}

// SetActiveChannels sets the active-channels gauge.
func (m *Metrics) SetActiveChannels(n int) {
	m.activeChannels.Set(float64(n))
}

// SetPregenerationQueueDepth sets the pending-source-items gauge.
func (m *Metrics) SetPregenerationQueueDepth(n int) {
	m.pregenerationQueueDepth.Set(float64(n))
}

// ObserveGuideRebuildDuration records how long one guide cache rebuild took.
func (m *Metrics) ObserveGuideRebuildDuration(seconds float64) {
	m.guideRebuildDurationSecs.Observe(seconds)
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active channels).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

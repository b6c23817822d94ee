package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	stageDuration   *prometheus.HistogramVec
	decodeFailures  *prometheus.CounterVec
	outputBytes     *prometheus.CounterVec
	pixelsProcessed *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprep_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelprep_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelprep_api_requests_in_flight",
			Help: "Requests currently being served.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelprep_pipeline_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"stage", "outcome"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprep_decode_failures_total",
			Help: "Uploads rejected because they could not be decoded.",
		}, []string{"format"}),
		outputBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprep_output_bytes_total",
			Help: "Encoded bytes returned to clients.",
		}, []string{"operation"}),
		pixelsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprep_pixels_processed_total",
			Help: "Source pixels decoded by successful requests.",
		}, []string{"operation"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.inFlight,
		m.stageDuration,
		m.decodeFailures,
		m.outputBytes,
		m.pixelsProcessed,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// ObserveStage records pipeline stage timings.
func (m *metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
}

func (m *metrics) observeDecodeFailure(format string) {
	m.decodeFailures.WithLabelValues(format).Inc()
}

func (m *metrics) observeOutput(operation string, bytes int, pixels int64) {
	m.outputBytes.WithLabelValues(operation).Add(float64(bytes))
	m.pixelsProcessed.WithLabelValues(operation).Add(float64(pixels))
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/images/fit/"):
		return "/images/fit/{box}"
	case path == "/images/resize_avatar":
		return "/images/rescale_avatar"
	case strings.HasPrefix(path, "/images/"):
		switch path {
		case "/images/info", "/images/prepare_jpeg", "/images/rescale_avatar":
			return path
		}
		return "other"
	case path == "/", path == "/ping", path == "/healthz", path == "/metrics", path == "/usage":
		return path
	case strings.HasPrefix(path, "/usage/"):
		return "/usage/{request_id}"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

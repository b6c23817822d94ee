package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dunamismax/pixelprep/internal/codec"
	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/id"
	"github.com/dunamismax/pixelprep/internal/pipeline"
	"github.com/dunamismax/pixelprep/internal/store"
	"github.com/dunamismax/pixelprep/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxUploadBytes = 32 << 20

type Server struct {
	logger         zerolog.Logger
	processor      *pipeline.Processor
	usage          store.UsageStore
	reporter       *telemetry.ErrorReporter
	metrics        *metrics
	tracer         trace.Tracer
	maxUploadBytes int64
	started        time.Time
	mux            *http.ServeMux
}

type Option func(*Server)

func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithTracer enables HTTP server spans and pipeline stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

func WithErrorReporter(reporter *telemetry.ErrorReporter) Option {
	return func(s *Server) {
		s.reporter = reporter
	}
}

// NewServer wires the processor to the server's metrics. A nil usage store
// keeps usage in memory.
func NewServer(logger zerolog.Logger, cfg pipeline.Config, usage store.UsageStore, opts ...Option) *Server {
	if usage == nil {
		usage = store.NewMemoryUsageStore(0)
	}

	s := &Server{
		logger:         logger,
		usage:          usage,
		metrics:        newMetrics(),
		maxUploadBytes: defaultMaxUploadBytes,
		started:        time.Now(),
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	procOpts := []pipeline.Option{pipeline.WithObserver(s.metrics)}
	if s.tracer != nil {
		procOpts = append(procOpts, pipeline.WithTracer(s.tracer))
	}
	s.processor = pipeline.NewProcessor(cfg, procOpts...)

	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withTracing(h)
	h = s.metrics.withHTTPMetrics(h)
	h = s.withRecovery(h)
	return s.withRequestLogging(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /ping", s.handlePing)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /usage", s.handleUsage)
	s.mux.HandleFunc("GET /usage/{request_id}", s.handleUsageRecord)

	s.mux.HandleFunc("POST /images/info", s.handleInfo)
	s.mux.HandleFunc("POST /images/prepare_jpeg", s.handlePrepareJPEG)
	s.mux.HandleFunc("POST /images/fit/{box}", s.handleFit)
	s.mux.HandleFunc("POST /images/rescale_avatar", s.handleRescaleAvatar)
	s.mux.HandleFunc("POST /images/resize_avatar", s.handleRescaleAvatar)

	s.mux.HandleFunc("GET /images/info", s.handleUsageText(infoUsage))
	s.mux.HandleFunc("GET /images/prepare_jpeg", s.handleUsageText(prepareJPEGUsage))
	s.mux.HandleFunc("GET /images/fit/{box}", s.handleUsageText(fitUsage))
	s.mux.HandleFunc("GET /images/rescale_avatar", s.handleAvatarUsage)
	s.mux.HandleFunc("GET /images/resize_avatar", s.handleAvatarUsage)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	formats := make([]string, 0, len(codec.AllFormats))
	for _, f := range codec.AllFormats {
		formats = append(formats, f.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "pixelprep",
		"status":  "ok",
		"backend": codec.BackendName(),
		"formats": formats,
		"endpoints": []string{
			"POST /images/info",
			"POST /images/prepare_jpeg",
			"POST /images/fit/{box}",
			"POST /images/rescale_avatar",
		},
	})
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	uptime := time.Since(s.started)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": int64(uptime.Seconds()),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	summary, err := s.usage.Summary(r.Context())
	if err != nil {
		s.fail(w, r, "usage", err)
		return
	}

	operations := make(map[string]domain.UsageTotals, len(domain.Operations))
	for _, op := range domain.Operations {
		operations[op] = summary[op]
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "operations": operations})
}

func (s *Server) handleUsageRecord(w http.ResponseWriter, r *http.Request) {
	rid := r.PathValue("request_id")
	if !id.Valid(rid) {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	usage, ok, err := s.usage.Get(r.Context(), rid)
	if err != nil {
		s.fail(w, r, "usage", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "usage record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "usage": usageRecordFrom(usage)})
}

// fail writes the error response. Server side failures are logged and
// reported; client errors are only logged at debug level.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := statusForError(err)
	logger := zerolog.Ctx(r.Context())

	var de *codec.DecodeError
	if errors.As(err, &de) {
		s.metrics.observeDecodeFailure(de.Format.String())
	}

	switch {
	case status < http.StatusInternalServerError:
		logger.Debug().Err(err).Str("operation", operation).Int("status", status).Msg("request rejected")
	case errors.Is(err, context.Canceled):
		logger.Warn().Err(err).Str("operation", operation).Msg("request canceled")
	default:
		logger.Error().Err(err).Str("operation", operation).Int("status", status).Msg("request failed")
		s.reporter.Report(r, requestIDFrom(r.Context()), err)
	}

	writeError(w, status, messageForError(err, status))
}

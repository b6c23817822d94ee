package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/pipeline"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const (
	infoUsage          = "POST an image as the multipart field 'file' to get its format, size and frame count."
	prepareJPEGUsage   = "POST a JPEG as the multipart field 'file' to get it back upright with location and device metadata removed. Add ?json=1 for a JSON envelope."
	fitUsage           = "POST an image as the multipart field 'file' to /images/fit/N or /images/fit/WxH to shrink it inside that box. Add ?json=1 for a JSON envelope."
	rescaleAvatarUsage = "POST an image as the multipart field 'file' to get square PNG avatars for every size the image is large enough for."
)

func (s *Server) handleUsageText(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"usage": text, "status": "ok"})
	}
}

// handleAvatarUsage also lists the configured ladder.
func (s *Server) handleAvatarUsage(w http.ResponseWriter, _ *http.Request) {
	ladder := s.processor.Ladder()
	sizes := make([]avatarRung, len(ladder))
	for i, rung := range ladder {
		sizes[i] = avatarRung{Key: rung.Key(), Size: rung.Size, MinSource: rung.MinSource}
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": rescaleAvatarUsage, "status": "ok", "sizes": sizes})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	data, err := s.readUpload(w, r)
	if err != nil {
		s.fail(w, r, domain.OperationInfo, err)
		return
	}

	src, err := s.processor.Info(r.Context(), data)
	if err != nil {
		s.fail(w, r, domain.OperationInfo, err)
		return
	}
	s.annotate(r.Context(), src)
	s.record(r, domain.OperationInfo, src, 0, start)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"success":     true,
		"width":       src.Width,
		"height":      src.Height,
		"mime_type":   src.Format.MIME(),
		"binary_size": src.Bytes,
		"frames":      src.Frames,
	})
}

func (s *Server) handlePrepareJPEG(w http.ResponseWriter, r *http.Request) {
	s.serveImage(w, r, domain.OperationPrepareJPEG, s.processor.PrepareJPEG)
}

func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	box, err := pipeline.ParseBox(r.PathValue("box"))
	if err != nil {
		s.fail(w, r, domain.OperationFit, err)
		return
	}
	s.serveImage(w, r, domain.OperationFit, func(ctx context.Context, data []byte) (pipeline.Output, error) {
		return s.processor.Fit(ctx, data, box)
	})
}

func (s *Server) handleRescaleAvatar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	data, err := s.readUpload(w, r)
	if err != nil {
		s.fail(w, r, domain.OperationRescaleAvatar, err)
		return
	}

	set, err := s.processor.RescaleAvatar(r.Context(), data)
	if err != nil {
		s.fail(w, r, domain.OperationRescaleAvatar, err)
		return
	}
	s.annotate(r.Context(), set.Source)
	s.record(r, domain.OperationRescaleAvatar, set.Source, set.Bytes(), start)

	body := envelope(set.Source, start, time.Now())
	for _, a := range set.Avatars {
		body[a.Key] = encodeImage(a.Data)
	}
	writeJSON(w, http.StatusOK, body)
}

type imageOperation func(ctx context.Context, data []byte) (pipeline.Output, error)

// serveImage runs a single-output operation and writes the encoded image, or
// the JSON envelope when the client asks for ?json=1.
func (s *Server) serveImage(w http.ResponseWriter, r *http.Request, operation string, run imageOperation) {
	start := time.Now()
	data, err := s.readUpload(w, r)
	if err != nil {
		s.fail(w, r, operation, err)
		return
	}

	out, err := run(r.Context(), data)
	if err != nil {
		s.fail(w, r, operation, err)
		return
	}
	s.annotate(r.Context(), out.Source)
	s.record(r, operation, out.Source, len(out.Data), start)

	if wantsJSON(r) {
		body := envelope(out.Source, start, time.Now())
		img := encodeImage(out.Data)
		img.MIME = out.Format.MIME()
		img.Width, img.Height = out.Width, out.Height
		body["output"] = img
		writeJSON(w, http.StatusOK, body)
		return
	}

	w.Header().Set("Content-Type", out.Format.MIME())
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.Header().Set("Content-Disposition", `inline; filename="`+operation+"."+out.Format.Extension()+`"`)
	w.Header().Set("X-Image-Width", strconv.Itoa(out.Width))
	w.Header().Set("X-Image-Height", strconv.Itoa(out.Height))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

func wantsJSON(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("json")) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func (s *Server) annotate(ctx context.Context, src pipeline.Source) {
	trace.SpanFromContext(ctx).SetAttributes(src.SpanAttributes()...)
}

// record updates output metrics and writes the usage log. Usage failures
// never fail the request.
func (s *Server) record(r *http.Request, operation string, src pipeline.Source, bytesOut int, start time.Time) {
	s.metrics.observeOutput(operation, bytesOut, src.Pixels())

	rid := requestIDFrom(r.Context())
	if rid == "" {
		return
	}
	err := s.usage.Record(r.Context(), domain.UsageLog{
		RequestID:       rid,
		Operation:       operation,
		SourceFormat:    src.Format.String(),
		PixelsProcessed: src.Pixels(),
		BytesIn:         int64(src.Bytes),
		BytesOut:        int64(bytesOut),
		ComputeTimeMS:   time.Since(start).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("operation", operation).Msg("record usage failed")
	}
}

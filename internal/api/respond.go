package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/pixelprep/internal/codec"
	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/pipeline"
)

type uploadTooLargeError struct {
	limit int64
}

func (e *uploadTooLargeError) Error() string {
	return fmt.Sprintf("upload exceeds %d bytes", e.limit)
}

type errorResponse struct {
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type uploadInfo struct {
	Size int    `json:"size"`
	MIME string `json:"mime"`
}

type encodedImage struct {
	Size   int    `json:"size"`
	MIME   string `json:"mime,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Body   string `json:"body"`
}

func encodeImage(data []byte) encodedImage {
	return encodedImage{Size: len(data), Body: base64.StdEncoding.EncodeToString(data)}
}

type usageRecord struct {
	RequestID       string    `json:"request_id"`
	Operation       string    `json:"operation"`
	SourceFormat    string    `json:"source_format"`
	PixelsProcessed int64     `json:"pixels_processed"`
	BytesIn         int64     `json:"bytes_in"`
	BytesOut        int64     `json:"bytes_out"`
	BytesSaved      int64     `json:"bytes_saved"`
	ComputeTimeMS   int64     `json:"compute_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

func usageRecordFrom(u domain.UsageLog) usageRecord {
	return usageRecord{
		RequestID:       u.RequestID,
		Operation:       u.Operation,
		SourceFormat:    u.SourceFormat,
		PixelsProcessed: u.PixelsProcessed,
		BytesIn:         u.BytesIn,
		BytesOut:        u.BytesOut,
		BytesSaved:      u.BytesSaved(),
		ComputeTimeMS:   u.ComputeTimeMS,
		CreatedAt:       u.CreatedAt,
	}
}

type avatarRung struct {
	Key       string `json:"key"`
	Size      int    `json:"size"`
	MinSource int    `json:"min_source"`
}

// envelope is the JSON body shared by the image endpoints. Extra keys such as
// "output" or "avatar24" sit next to the fixed ones. Cost is in milliseconds.
func envelope(src pipeline.Source, start, end time.Time) map[string]any {
	return map[string]any{
		"uploaded": uploadInfo{Size: src.Bytes, MIME: src.Format.MIME()},
		"status":   "ok",
		"success":  true,
		"start":    unixSeconds(start),
		"end":      unixSeconds(end),
		"cost":     end.Sub(start).Milliseconds(),
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// statusForError is the single mapping from pipeline errors to HTTP statuses.
func statusForError(err error) int {
	var tooLarge *uploadTooLargeError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case pipeline.IsValidationError(err), codec.IsDecodeError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// messageForError keeps internal details out of 5xx responses.
func messageForError(err error, status int) string {
	if status >= http.StatusInternalServerError {
		if codec.IsEncodeError(err) {
			return "failed to encode image"
		}
		return "internal error"
	}
	var de *codec.DecodeError
	if errors.As(err, &de) {
		return "could not decode image: " + de.Err.Error()
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

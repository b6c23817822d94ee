package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	OperationInfo          = "info"
	OperationPrepareJPEG   = "prepare_jpeg"
	OperationFit           = "fit"
	OperationRescaleAvatar = "rescale_avatar"
)

var Operations = []string{
	OperationInfo,
	OperationPrepareJPEG,
	OperationFit,
	OperationRescaleAvatar,
}

// UsageLog accounts for one successful request. Image bytes are never kept.
type UsageLog struct {
	RequestID       string
	Operation       string
	SourceFormat    string
	PixelsProcessed int64
	BytesIn         int64
	BytesOut        int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}

func (u UsageLog) Validate() error {
	if strings.TrimSpace(u.RequestID) == "" {
		return errors.New("request_id is required")
	}
	if strings.TrimSpace(u.Operation) == "" {
		return errors.New("operation is required")
	}
	if u.PixelsProcessed < 0 || u.BytesIn < 0 || u.BytesOut < 0 || u.ComputeTimeMS < 0 {
		return errors.New("usage counters must not be negative")
	}
	return nil
}

// BytesSaved is how much smaller the output is than the upload; negative when
// the output grew.
func (u UsageLog) BytesSaved() int64 {
	return u.BytesIn - u.BytesOut
}

// UsageTotals aggregates usage logs for one operation.
type UsageTotals struct {
	Requests        int64 `json:"requests"`
	PixelsProcessed int64 `json:"pixels_processed"`
	BytesIn         int64 `json:"bytes_in"`
	BytesOut        int64 `json:"bytes_out"`
	ComputeTimeMS   int64 `json:"compute_time_ms"`
}

func (t *UsageTotals) Add(u UsageLog) {
	t.Requests++
	t.PixelsProcessed += u.PixelsProcessed
	t.BytesIn += u.BytesIn
	t.BytesOut += u.BytesOut
	t.ComputeTimeMS += u.ComputeTimeMS
}

// UsageSummary maps an operation name to its totals.
type UsageSummary map[string]UsageTotals

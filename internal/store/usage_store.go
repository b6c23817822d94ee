package store

import (
	"context"

	"github.com/dunamismax/pixelprep/internal/domain"
)

type UsageStore interface {
	Record(ctx context.Context, usage domain.UsageLog) error
	Get(ctx context.Context, requestID string) (domain.UsageLog, bool, error)
	Summary(ctx context.Context) (domain.UsageSummary, error)
}

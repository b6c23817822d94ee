package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dunamismax/pixelprep/internal/domain"
)

var ErrDuplicateRequest = errors.New("usage already recorded for request")

// MemoryUsageStore keeps the most recent usage logs, evicting the oldest once
// the limit is reached. Totals include evicted entries.
type MemoryUsageStore struct {
	mu     sync.RWMutex
	limit  int
	order  []string
	logs   map[string]domain.UsageLog
	totals domain.UsageSummary
}

func NewMemoryUsageStore(limit int) *MemoryUsageStore {
	if limit <= 0 {
		limit = 10000
	}
	return &MemoryUsageStore{
		limit:  limit,
		logs:   make(map[string]domain.UsageLog),
		totals: make(domain.UsageSummary),
	}
}

func (s *MemoryUsageStore) Record(ctx context.Context, usage domain.UsageLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := usage.Validate(); err != nil {
		return fmt.Errorf("invalid usage log: %w", err)
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[usage.RequestID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, usage.RequestID)
	}

	if len(s.order) >= s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.logs, oldest)
	}
	s.order = append(s.order, usage.RequestID)
	s.logs[usage.RequestID] = usage

	totals := s.totals[usage.Operation]
	totals.Add(usage)
	s.totals[usage.Operation] = totals
	return nil
}

func (s *MemoryUsageStore) Get(_ context.Context, requestID string) (domain.UsageLog, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	usage, ok := s.logs[requestID]
	return usage, ok, nil
}

func (s *MemoryUsageStore) Summary(_ context.Context) (domain.UsageSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(domain.UsageSummary, len(s.totals))
	for op, totals := range s.totals {
		out[op] = totals
	}
	return out, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/lib/pq"
)

const usageSchemaSQL = `
CREATE TABLE IF NOT EXISTS usage_logs (
	request_id TEXT PRIMARY KEY,
	operation TEXT NOT NULL,
	source_format TEXT NOT NULL DEFAULT '',
	pixels_processed BIGINT NOT NULL,
	bytes_in BIGINT NOT NULL,
	bytes_out BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS usage_logs_operation_idx ON usage_logs (operation);
`

// Postgres error code for unique_violation.
const uniqueViolation = "23505"

type PostgresUsageStore struct {
	db *sql.DB
}

func NewPostgresUsageStore(ctx context.Context, dsn string) (*PostgresUsageStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresUsageStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresUsageStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, usageSchemaSQL); err != nil {
		return fmt.Errorf("ensure usage_logs schema: %w", err)
	}
	return nil
}

func (s *PostgresUsageStore) Close() error {
	return s.db.Close()
}

func (s *PostgresUsageStore) Record(ctx context.Context, usage domain.UsageLog) error {
	if err := usage.Validate(); err != nil {
		return fmt.Errorf("invalid usage log: %w", err)
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (request_id, operation, source_format, pixels_processed, bytes_in, bytes_out, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		usage.RequestID,
		usage.Operation,
		usage.SourceFormat,
		usage.PixelsProcessed,
		usage.BytesIn,
		usage.BytesOut,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateRequest, usage.RequestID)
		}
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

func (s *PostgresUsageStore) Get(ctx context.Context, requestID string) (domain.UsageLog, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT request_id, operation, source_format, pixels_processed, bytes_in, bytes_out, compute_time_ms, created_at
		 FROM usage_logs
		 WHERE request_id = $1`,
		requestID,
	)

	var usage domain.UsageLog
	if err := row.Scan(
		&usage.RequestID,
		&usage.Operation,
		&usage.SourceFormat,
		&usage.PixelsProcessed,
		&usage.BytesIn,
		&usage.BytesOut,
		&usage.ComputeTimeMS,
		&usage.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UsageLog{}, false, nil
		}
		return domain.UsageLog{}, false, fmt.Errorf("query usage log: %w", err)
	}
	return usage, true, nil
}

func (s *PostgresUsageStore) Summary(ctx context.Context) (domain.UsageSummary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT operation, COUNT(*), COALESCE(SUM(pixels_processed), 0), COALESCE(SUM(bytes_in), 0),
		        COALESCE(SUM(bytes_out), 0), COALESCE(SUM(compute_time_ms), 0)
		 FROM usage_logs
		 GROUP BY operation`,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	summary := make(domain.UsageSummary)
	for rows.Next() {
		var (
			op     string
			totals domain.UsageTotals
		)
		if err := rows.Scan(&op, &totals.Requests, &totals.PixelsProcessed, &totals.BytesIn, &totals.BytesOut, &totals.ComputeTimeMS); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summary[op] = totals
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage summary: %w", err)
	}
	return summary, nil
}

package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// ErrorReporter forwards unexpected request failures. The zero value and a
// reporter built without a DSN drop everything.
type ErrorReporter struct {
	enabled bool
}

// SetupSentry initializes the global Sentry client when a DSN is configured.
func SetupSentry(cfg SentryConfig) (*ErrorReporter, ShutdownFunc, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return &ErrorReporter{}, func(context.Context) error { return nil }, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init sentry: %w", err)
	}

	shutdown := func(ctx context.Context) error {
		timeout := 2 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if !sentry.Flush(timeout) {
			return fmt.Errorf("sentry flush timed out")
		}
		return nil
	}
	return &ErrorReporter{enabled: true}, shutdown, nil
}

func (r *ErrorReporter) Enabled() bool {
	return r != nil && r.enabled
}

// Report sends err with the request that caused it. Request bodies are never
// attached.
func (r *ErrorReporter) Report(req *http.Request, requestID string, err error) {
	if !r.Enabled() || err == nil {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		if req != nil {
			scope.SetTag("http.method", req.Method)
			scope.SetTag("http.path", req.URL.Path)
		}
		if requestID != "" {
			scope.SetTag("request_id", requestID)
		}
		hub.CaptureException(err)
	})
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dunamismax/pixelprep/internal/api"
	"github.com/dunamismax/pixelprep/internal/codec"
	"github.com/dunamismax/pixelprep/internal/config"
	"github.com/dunamismax/pixelprep/internal/store"
	"github.com/dunamismax/pixelprep/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	logger, err := telemetry.NewLogger(telemetry.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stdout)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("build logger")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := codec.Startup(); err != nil {
		return err
	}
	defer codec.Shutdown()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Telemetry.ServiceName,
		Exporter:     cfg.Telemetry.TraceExporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		return err
	}

	reporter, shutdownSentry, err := telemetry.SetupSentry(telemetry.SentryConfig{
		DSN:         cfg.Telemetry.SentryDSN,
		Environment: cfg.Telemetry.SentryEnvironment,
	})
	if err != nil {
		return err
	}

	usage, closeUsage, err := openUsageStore(ctx, cfg.Usage, logger)
	if err != nil {
		return err
	}
	defer closeUsage()

	app := api.NewServer(
		logger,
		cfg.Pipeline.ProcessorConfig(),
		usage,
		api.WithMaxUploadBytes(cfg.HTTP.MaxUploadBytes),
		api.WithTracer(otel.Tracer("pixelprep/api")),
		api.WithErrorReporter(reporter),
	)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.HTTP.Addr).
			Str("backend", codec.BackendName()).
			Str("avatar_ladder", cfg.Pipeline.Ladder.String()).
			Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
	if err := shutdownSentry(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("sentry flush failed")
	}
	return nil
}

// openUsageStore uses Postgres when a DSN is configured and memory otherwise.
func openUsageStore(ctx context.Context, cfg config.UsageConfig, logger zerolog.Logger) (store.UsageStore, func(), error) {
	if cfg.PostgresDSN == "" {
		logger.Info().Msg("usage store: memory")
		return store.NewMemoryUsageStore(0), func() {}, nil
	}

	pg, err := store.NewPostgresUsageStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("usage store: postgres")
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Warn().Err(err).Msg("close usage store")
		}
	}, nil
}

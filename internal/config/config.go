// Package config loads service settings from defaults, an optional config
// file named by PIXELPREP_CONFIG and PIXELPREP_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/pixelprep/internal/codec"
	"github.com/dunamismax/pixelprep/internal/pipeline"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "PIXELPREP"
	envCfgFile = "PIXELPREP_CONFIG"

	DefaultMaxUploadBytes = 32 << 20
)

type Config struct {
	HTTP      HTTPConfig
	Pipeline  PipelineConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Usage     UsageConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

type PipelineConfig struct {
	Formats     []codec.Format
	Ladder      pipeline.AvatarLadder
	JPEGQuality int
	MaxPixels   int64
}

func (p PipelineConfig) ProcessorConfig() pipeline.Config {
	return pipeline.Config{
		Formats:     p.Formats,
		Ladder:      p.Ladder,
		JPEGQuality: p.JPEGQuality,
		MaxPixels:   p.MaxPixels,
	}
}

type LogConfig struct {
	Level  string
	Format string
}

type TelemetryConfig struct {
	ServiceName       string
	TraceExporter     string
	OTLPEndpoint      string
	OTLPInsecure      bool
	SentryDSN         string
	SentryEnvironment string
}

type UsageConfig struct {
	// PostgresDSN selects the Postgres usage store; empty keeps usage in memory.
	PostgresDSN string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.max_upload_bytes", DefaultMaxUploadBytes)

	v.SetDefault("pipeline.formats", "")
	v.SetDefault("pipeline.avatar_ladder", pipeline.DefaultLadder.String())
	v.SetDefault("pipeline.jpeg_quality", codec.DefaultJPEGQuality)
	v.SetDefault("pipeline.max_pixels", codec.DefaultMaxPixels)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("telemetry.service_name", "pixelprep")
	v.SetDefault("telemetry.trace_exporter", "none")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.sentry_environment", "development")

	v.SetDefault("usage.postgres_dsn", "")
}

// Load reads the configuration. Malformed values are errors rather than
// silently replaced by defaults.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv(envCfgFile)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	var errs []error

	duration := func(key string) time.Duration {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v.GetString(key)))
		}
		return d
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            v.GetString("http.addr"),
			ReadTimeout:     duration("http.read_timeout"),
			WriteTimeout:    duration("http.write_timeout"),
			IdleTimeout:     duration("http.idle_timeout"),
			ShutdownTimeout: duration("http.shutdown_timeout"),
			MaxUploadBytes:  v.GetInt64("http.max_upload_bytes"),
		},
		Pipeline: PipelineConfig{
			JPEGQuality: v.GetInt("pipeline.jpeg_quality"),
			MaxPixels:   v.GetInt64("pipeline.max_pixels"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Telemetry: TelemetryConfig{
			ServiceName:       v.GetString("telemetry.service_name"),
			TraceExporter:     v.GetString("telemetry.trace_exporter"),
			OTLPEndpoint:      v.GetString("telemetry.otlp_endpoint"),
			OTLPInsecure:      v.GetBool("telemetry.otlp_insecure"),
			SentryDSN:         v.GetString("telemetry.sentry_dsn"),
			SentryEnvironment: v.GetString("telemetry.sentry_environment"),
		},
		Usage: UsageConfig{
			PostgresDSN: v.GetString("usage.postgres_dsn"),
		},
	}

	if cfg.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr: must not be empty"))
	}
	if cfg.HTTP.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("http.max_upload_bytes: must be positive, got %d", cfg.HTTP.MaxUploadBytes))
	}
	if q := cfg.Pipeline.JPEGQuality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("pipeline.jpeg_quality: must be within 1..100, got %d", q))
	}

	if cfg.Pipeline.MaxPixels <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_pixels: must be positive, got %d", cfg.Pipeline.MaxPixels))
	}

	formats, err := parseFormats(v.GetStringSlice("pipeline.formats"))
	if err != nil {
		errs = append(errs, fmt.Errorf("pipeline.formats: %w", err))
	}
	cfg.Pipeline.Formats = formats

	ladder, err := pipeline.ParseLadder(v.GetString("pipeline.avatar_ladder"))
	if err != nil {
		errs = append(errs, fmt.Errorf("pipeline.avatar_ladder: %w", err))
	}
	cfg.Pipeline.Ladder = ladder

	switch cfg.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported %q", cfg.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseFormats accepts a list or a single comma separated string. An empty
// list enables every known format.
func parseFormats(raw []string) ([]codec.Format, error) {
	var formats []codec.Format
	seen := make(map[codec.Format]bool)
	for _, item := range raw {
		for _, name := range strings.Split(item, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			f, err := codec.ParseFormat(name)
			if err != nil {
				return nil, err
			}
			if !seen[f] {
				seen[f] = true
				formats = append(formats, f)
			}
		}
	}
	return formats, nil
}

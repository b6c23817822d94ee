package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dunamismax/pixelprep/internal/codec"
	"github.com/dunamismax/pixelprep/internal/metadata"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	StageDecode    = "decode"
	StageOrient    = "orient"
	StageSanitize  = "sanitize"
	StageResample  = "resample"
	StageAvatars   = "avatars"
	StageEncode    = "encode"
	StageEmbedExif = "embed_exif"
)

// StageObserver receives the duration and outcome of every pipeline stage.
type StageObserver interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
}

type Config struct {
	// Formats accepted by the decoder; empty accepts every known format.
	Formats     []codec.Format
	Ladder      AvatarLadder
	JPEGQuality int
	// MaxPixels caps the declared width*height of an upload; zero selects
	// codec.DefaultMaxPixels.
	MaxPixels int64
}

// Source describes the upload a result was produced from.
type Source struct {
	Format      codec.Format
	Width       int
	Height      int
	Frames      int
	Bytes       int
	Orientation int
}

func (s Source) Pixels() int64 {
	return int64(s.Width) * int64(s.Height)
}

// Output is a single encoded image.
type Output struct {
	Source Source
	Format codec.Format
	Width  int
	Height int
	Data   []byte
}

type AvatarSet struct {
	Source  Source
	Avatars []Avatar
}

func (s AvatarSet) Bytes() int {
	total := 0
	for _, a := range s.Avatars {
		total += len(a.Data)
	}
	return total
}

type Option func(*Processor)

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

func WithObserver(observer StageObserver) Option {
	return func(p *Processor) {
		if observer != nil {
			p.observer = observer
		}
	}
}

// Processor runs the request pipelines. It holds no per-request state and is
// safe for concurrent use.
type Processor struct {
	decoder  *codec.Decoder
	ladder   AvatarLadder
	quality  int
	tracer   trace.Tracer
	observer StageObserver
}

func NewProcessor(cfg Config, opts ...Option) *Processor {
	ladder := cfg.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = codec.DefaultJPEGQuality
	}

	p := &Processor{
		decoder:  codec.NewDecoder(cfg.Formats...).WithMaxPixels(cfg.MaxPixels),
		ladder:   ladder,
		quality:  quality,
		tracer:   otel.Tracer("pixelprep/pipeline"),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) Ladder() AvatarLadder {
	return p.ladder
}

// Info decodes the upload and reports what it contains.
func (p *Processor) Info(ctx context.Context, data []byte) (Source, error) {
	r, err := p.decode(ctx, data)
	if err != nil {
		return Source{}, err
	}
	return sourceOf(r), nil
}

// PrepareJPEG re-encodes a JPEG upright with sanitized EXIF.
func (p *Processor) PrepareJPEG(ctx context.Context, data []byte) (Output, error) {
	if len(data) > 0 && codec.DetectFormat(data) != codec.FormatJPEG {
		return Output{}, Invalid("", "This endpoint is only for processing JPEG images")
	}

	r, src, err := p.prepare(ctx, data)
	if err != nil {
		return Output{}, err
	}

	var encoded []byte
	err = p.stage(ctx, StageEncode, func() error {
		var encErr error
		encoded, encErr = codec.Encode(r.Image, codec.FormatJPEG, codec.Options{Quality: p.quality})
		return encErr
	})
	if err != nil {
		return Output{}, fmt.Errorf("encode stage: %w", err)
	}

	if len(r.Exif) > 0 {
		// Embedding is best effort; the encoder output is already metadata free.
		_ = p.stage(ctx, StageEmbedExif, func() error {
			withExif, embedErr := metadata.EmbedJPEG(encoded, r.Exif)
			if embedErr != nil {
				return embedErr
			}
			encoded = withExif
			return nil
		})
	}

	return Output{Source: src, Format: codec.FormatJPEG, Width: r.Width, Height: r.Height, Data: encoded}, nil
}

// Fit shrinks the upload to fit inside box and re-encodes it in its own format
// when possible, PNG otherwise.
func (p *Processor) Fit(ctx context.Context, data []byte, box Box) (Output, error) {
	if err := box.validate(); err != nil {
		return Output{}, err
	}

	r, src, err := p.prepare(ctx, data)
	if err != nil {
		return Output{}, err
	}

	err = p.stage(ctx, StageResample, func() error {
		img, fitErr := FitWithinBox(r, box)
		if fitErr != nil {
			return fitErr
		}
		r.SetImage(img)
		return nil
	})
	if err != nil {
		return Output{}, fmt.Errorf("resample stage: %w", err)
	}

	format := codec.OutputFormatFor(r.Format)
	var encoded []byte
	err = p.stage(ctx, StageEncode, func() error {
		var encErr error
		encoded, encErr = codec.Encode(r.Image, format, codec.Options{Quality: p.quality})
		return encErr
	})
	if err != nil {
		return Output{}, fmt.Errorf("encode stage: %w", err)
	}

	return Output{Source: src, Format: format, Width: r.Width, Height: r.Height, Data: encoded}, nil
}

// RescaleAvatar renders the avatar ladder from one decoded, normalized raster.
func (p *Processor) RescaleAvatar(ctx context.Context, data []byte) (AvatarSet, error) {
	r, src, err := p.prepare(ctx, data)
	if err != nil {
		return AvatarSet{}, err
	}

	var avatars []Avatar
	err = p.stage(ctx, StageAvatars, func() error {
		stretchIcon(r, p.ladder)
		var genErr error
		avatars, genErr = GenerateAvatars(r, p.ladder)
		return genErr
	})
	if err != nil {
		return AvatarSet{}, fmt.Errorf("avatar stage: %w", err)
	}
	return AvatarSet{Source: src, Avatars: avatars}, nil
}

// prepare decodes, rotates upright and sanitizes metadata. The returned Source
// describes the upload as received.
func (p *Processor) prepare(ctx context.Context, data []byte) (*codec.Raster, Source, error) {
	r, err := p.decode(ctx, data)
	if err != nil {
		return nil, Source{}, err
	}
	src := sourceOf(r)

	if err := ctx.Err(); err != nil {
		return nil, Source{}, err
	}

	_ = p.stage(ctx, StageOrient, func() error {
		NormalizeOrientation(r)
		return nil
	})
	// A sanitize error means the block was dropped; the request goes on.
	_ = p.stage(ctx, StageSanitize, func() error {
		return StripGeoAndPrivacyMetadata(r)
	})
	return r, src, nil
}

func (p *Processor) decode(ctx context.Context, data []byte) (*codec.Raster, error) {
	if len(data) == 0 {
		return nil, Invalid("file", "no image uploaded")
	}

	var r *codec.Raster
	err := p.stage(ctx, StageDecode, func() error {
		var decErr error
		r, decErr = p.decoder.Decode(data)
		return decErr
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (p *Processor) stage(ctx context.Context, name string, fn func() error) (err error) {
	_, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s panic: %v", name, rec)
		}
		p.observer.ObserveStage(name, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, name+" failed")
		}
	}()

	err = fn()
	return err
}

func sourceOf(r *codec.Raster) Source {
	return Source{
		Format:      r.Format,
		Width:       r.Width,
		Height:      r.Height,
		Frames:      r.Frames,
		Bytes:       r.SourceBytes,
		Orientation: r.Orientation,
	}
}

// SpanAttributes describes a source for tracing.
func (s Source) SpanAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("image.format", s.Format.String()),
		attribute.Int("image.width", s.Width),
		attribute.Int("image.height", s.Height),
		attribute.Int("image.bytes", s.Bytes),
	}
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration, error) {}

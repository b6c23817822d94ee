//go:build govips && cgo

package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

// Startup boots libvips once per process. Calling it again is a no-op.
func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   0,
			MaxCacheSize:  0,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func BackendName() string {
	return "govips"
}

func newBackend() backend {
	return vipsBackend{}
}

type vipsBackend struct{}

func (vipsBackend) CanDecode(f Format) bool {
	switch f {
	case FormatJPEG2000, FormatHEIF, FormatAVIF, FormatWEBP, FormatTIFF, FormatJPEG, FormatPNG:
		return true
	default:
		return false
	}
}

// DecodeConfig reads the header only; libvips defers pixel decoding until the
// image is written out.
func (vipsBackend) DecodeConfig(data []byte) (image.Config, error) {
	if err := Startup(); err != nil {
		return image.Config{}, err
	}

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return image.Config{}, fmt.Errorf("vips load header: %w", err)
	}
	defer ref.Close()
	return image.Config{Width: ref.Width(), Height: ref.Height()}, nil
}

// Decode loads data with libvips and hands the pixels back as a Go image via a
// lossless PNG round trip. Orientation is left untouched; the pipeline applies it.
func (vipsBackend) Decode(data []byte) (image.Image, error) {
	if err := Startup(); err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	params := vips.NewPngExportParams()
	params.StripMetadata = true
	encoded, _, err := ref.ExportPng(params)
	if err != nil {
		return nil, fmt.Errorf("vips export png: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("read vips png: %w", err)
	}
	return img, nil
}

func (vipsBackend) CanEncode(f Format) bool {
	return f == FormatWEBP
}

func (vipsBackend) Encode(img image.Image, f Format, quality int) ([]byte, error) {
	if f != FormatWEBP {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	if err := Startup(); err != nil {
		return nil, err
	}

	var staged bytes.Buffer
	if err := png.Encode(&staged, img); err != nil {
		return nil, fmt.Errorf("stage png for vips: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(staged.Bytes())
	if err != nil {
		return nil, fmt.Errorf("vips load staged png: %w", err)
	}
	defer ref.Close()

	params := vips.NewWebpExportParams()
	if quality > 0 && quality <= 100 {
		params.Quality = quality
	}
	params.StripMetadata = true
	data, _, err := ref.ExportWebp(params)
	if err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return data, nil
}

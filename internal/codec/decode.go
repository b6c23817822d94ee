package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/dunamismax/pixelprep/internal/metadata"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/heic"
	"github.com/jackmordaunt/icns/v2"
	"github.com/oov/psd"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Raster is a decoded upload. It belongs to a single request and is never
// shared or cached.
type Raster struct {
	Image       image.Image
	Format      Format
	Width       int
	Height      int
	Frames      int
	SourceBytes int

	// Exif is the raw TIFF-headed EXIF block found in the upload, or nil.
	Exif []byte
	// Orientation is the EXIF orientation tag, 1 when absent.
	Orientation int
}

func (r *Raster) SetImage(img image.Image) {
	r.Image = img
	b := img.Bounds()
	r.Width, r.Height = b.Dx(), b.Dy()
}

type decodeFunc func(io.Reader) (image.Image, error)

var nativeDecoders = map[Format]decodeFunc{
	FormatJPEG: jpeg.Decode,
	FormatPNG:  png.Decode,
	FormatBMP:  bmp.Decode,
	FormatTIFF: tiff.Decode,
	FormatWEBP: webp.Decode,
	FormatHEIF: heic.Decode,
	FormatAVIF: avif.Decode,
	FormatICNS: icns.Decode,
	FormatPSD:  decodePSD,
}

// DefaultMaxPixels bounds width*height as read from the image header, before
// any pixel buffer is allocated.
const DefaultMaxPixels int64 = 50_000_000

type configFunc func(io.Reader) (image.Config, error)

var configDecoders = map[Format]configFunc{
	FormatJPEG: jpeg.DecodeConfig,
	FormatPNG:  png.DecodeConfig,
	FormatGIF:  gif.DecodeConfig,
	FormatBMP:  bmp.DecodeConfig,
	FormatTIFF: tiff.DecodeConfig,
	FormatWEBP: webp.DecodeConfig,
	FormatHEIF: heic.DecodeConfig,
	FormatAVIF: avif.DecodeConfig,
	FormatPSD:  psdConfig,
}

type Decoder struct {
	allowed   map[Format]bool
	backend   backend
	maxPixels int64
}

// NewDecoder accepts the listed formats, or every known format when none are
// given.
func NewDecoder(allowed ...Format) *Decoder {
	if len(allowed) == 0 {
		allowed = AllFormats
	}
	set := make(map[Format]bool, len(allowed))
	for _, f := range allowed {
		set[f] = true
	}
	return &Decoder{allowed: set, backend: runtime, maxPixels: DefaultMaxPixels}
}

// WithMaxPixels returns a copy of d that rejects images whose header declares
// more than n pixels. Values below one keep the current limit.
func (d *Decoder) WithMaxPixels(n int64) *Decoder {
	c := *d
	if n > 0 {
		c.maxPixels = n
	}
	return &c
}

// Decode sniffs the container, checks the declared dimensions against the
// pixel limit, decodes the first frame and reads the EXIF block and
// orientation tag. Every failure is a *DecodeError.
func (d *Decoder) Decode(data []byte) (r *Raster, err error) {
	if len(data) == 0 {
		return nil, &DecodeError{Format: FormatUnknown, Err: ErrEmptyInput}
	}

	format := DetectFormat(data)
	if format == FormatUnknown {
		return nil, &DecodeError{Format: format, Err: ErrUnknownFormat}
	}
	if !d.allowed[format] {
		return nil, &DecodeError{Format: format, Err: ErrFormatNotAllowed}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r = nil
			err = &DecodeError{Format: format, Err: fmt.Errorf("decoder panic: %v", rec)}
		}
	}()

	if err := d.checkBounds(format, data); err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}

	img, frames, err := d.decodePixels(format, data)
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	if img == nil || img.Bounds().Empty() {
		return nil, &DecodeError{Format: format, Err: errNoPixels}
	}

	r = &Raster{
		Format:      format,
		Frames:      frames,
		SourceBytes: len(data),
		Orientation: 1,
	}
	r.SetImage(img)

	r.Exif = metadata.Extract(data, containerFor(format))
	if format != FormatHEIF && format != FormatAVIF {
		// HEIF and AVIF carry their transforms in irot/imir boxes which
		// the decoder already applied.
		r.Orientation = metadata.Orientation(r.Exif)
	}
	return r, nil
}

func (d *Decoder) checkBounds(format Format, data []byte) error {
	cfg, err := d.decodeConfig(format, data)
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errNoPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > d.maxPixels {
		return fmt.Errorf("%w: %dx%d is over %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, d.maxPixels)
	}
	return nil
}

// decodeConfig reads only the header. The native runtime answers for formats
// without a Go header reader, and for headers the Go reader rejects.
func (d *Decoder) decodeConfig(format Format, data []byte) (image.Config, error) {
	if format == FormatICNS {
		return icnsConfig(data)
	}
	if readConfig, ok := configDecoders[format]; ok {
		cfg, err := readConfig(bytes.NewReader(data))
		if err == nil || !d.backend.CanDecode(format) {
			return cfg, err
		}
	}
	if d.backend.CanDecode(format) {
		return d.backend.DecodeConfig(data)
	}
	return image.Config{}, ErrUnsupportedFormat
}

func (d *Decoder) decodePixels(format Format, data []byte) (image.Image, int, error) {
	if format == FormatGIF {
		return decodeGIF(data)
	}

	decode, ok := nativeDecoders[format]
	if !ok {
		if d.backend.CanDecode(format) {
			img, err := d.backend.Decode(data)
			return img, 1, err
		}
		return nil, 0, ErrUnsupportedFormat
	}

	img, err := decode(bytes.NewReader(data))
	if err != nil && d.backend.CanDecode(format) {
		if fallback, fbErr := d.backend.Decode(data); fbErr == nil {
			return fallback, 1, nil
		}
	}
	if err != nil {
		return nil, 0, err
	}
	return img, 1, nil
}

// decodeGIF returns the first frame composed onto the logical screen. Later
// frames are counted, not decoded.
func decodeGIF(data []byte) (image.Image, int, error) {
	cfg, err := gif.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	first, err := gif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	frames := max(countGIFFrames(data), 1)

	screen := image.Rect(0, 0, cfg.Width, cfg.Height)
	if screen.Empty() || first.Bounds() == screen {
		return first, frames, nil
	}

	canvas := image.NewNRGBA(screen)
	draw.Draw(canvas, first.Bounds(), first, first.Bounds().Min, draw.Over)
	return canvas, frames, nil
}

func decodePSD(r io.Reader) (image.Image, error) {
	doc, _, err := psd.Decode(r, &psd.DecodeOptions{SkipLayerImage: true})
	if err != nil {
		return nil, err
	}
	if doc.Picker == nil {
		return nil, fmt.Errorf("psd has no merged image")
	}
	return doc.Picker, nil
}

func psdConfig(r io.Reader) (image.Config, error) {
	cfg, _, err := psd.DecodeConfig(r)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{Width: cfg.Rect.Dx(), Height: cfg.Rect.Dy()}, nil
}

func containerFor(f Format) metadata.Container {
	switch f {
	case FormatJPEG:
		return metadata.ContainerJPEG
	case FormatPNG:
		return metadata.ContainerPNG
	default:
		return metadata.ContainerOther
	}
}

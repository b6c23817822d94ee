package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const DefaultJPEGQuality = 95

type Options struct {
	// Quality applies to lossy formats; values outside 1..100 select the default.
	Quality int
}

var runtime = newBackend()

// CanEncode reports whether Encode can produce the format in this build.
func CanEncode(f Format) bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatGIF, FormatBMP, FormatTIFF:
		return true
	default:
		return runtime.CanEncode(f)
	}
}

// OutputFormatFor keeps the source format when it can be written back and
// falls back to PNG otherwise.
func OutputFormatFor(src Format) Format {
	if CanEncode(src) {
		return src
	}
	return FormatPNG
}

// Encode serializes img. Output never carries metadata. Every failure is an
// *EncodeError.
func Encode(img image.Image, f Format, opts Options) (out []byte, err error) {
	if img == nil {
		return nil, &EncodeError{Format: f, Err: fmt.Errorf("nil image")}
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &EncodeError{Format: f, Err: fmt.Errorf("encoder panic: %v", rec)}
		}
	}()

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	switch f {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		err = encoder.Encode(&buf, img)
	case FormatGIF:
		err = gif.Encode(&buf, img, &gif.Options{NumColors: 256})
	case FormatBMP:
		err = bmp.Encode(&buf, img)
	case FormatTIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		if !runtime.CanEncode(f) {
			return nil, &EncodeError{Format: f, Err: ErrUnsupportedFormat}
		}
		data, encErr := runtime.Encode(img, f, quality)
		if encErr != nil {
			return nil, &EncodeError{Format: f, Err: encErr}
		}
		return data, nil
	}
	if err != nil {
		return nil, &EncodeError{Format: f, Err: err}
	}
	return buf.Bytes(), nil
}

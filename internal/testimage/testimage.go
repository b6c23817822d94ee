// Package testimage builds small encoded images for tests.
package testimage

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	"github.com/gen2brain/avif"
	"github.com/jackmordaunt/icns/v2"
)

// Gradient is a w×h opaque image whose pixels are all distinct enough to spot
// flips and rotations.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8((x * 255) / max(1, w)),
				G: uint8((y * 255) / max(1, h)),
				B: 140,
				A: 255,
			})
		}
	}
	return img
}

func PNG(tb testing.TB, w, h int) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, Gradient(w, h)); err != nil {
		tb.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// OversizedPNG is a valid PNG header declaring a w×h RGBA image followed by a
// single row of pixel data. Decoding it fully would allocate w*h*4 bytes.
func OversizedPNG(tb testing.TB, w, h uint32) []byte {
	tb.Helper()

	var row bytes.Buffer
	zw := zlib.NewWriter(&row)
	if _, err := zw.Write(make([]byte, 1+int(w)*4)); err != nil {
		tb.Fatalf("compress row: %v", err)
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("compress row: %v", err)
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	out := []byte("\x89PNG\r\n\x1a\n")
	out = appendChunk(out, "IHDR", ihdr)
	out = appendChunk(out, "IDAT", row.Bytes())
	return appendChunk(out, "IEND", nil)
}

func appendChunk(out []byte, kind string, data []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	start := len(out)
	out = append(out, kind...)
	out = append(out, data...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(out[start:]))
}

// ICNS is an icon set whose largest icon is side×side. Side must be a power
// of two from 32 through 1024.
func ICNS(tb testing.TB, side int) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := icns.Encode(&buf, Gradient(side, side)); err != nil {
		tb.Fatalf("encode icns: %v", err)
	}
	return buf.Bytes()
}

func AVIF(tb testing.TB, w, h int) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := avif.Encode(&buf, Gradient(w, h)); err != nil {
		tb.Fatalf("encode avif: %v", err)
	}
	return buf.Bytes()
}

func GIF(tb testing.TB, w, h, frames int) []byte {
	tb.Helper()

	palette := color.Palette{color.Black, color.White}
	anim := &gif.GIF{Config: image.Config{Width: w, Height: h, ColorModel: palette}}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, w, h), palette)
		frame.SetColorIndex(i%w, 0, 1)
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		tb.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

// JPEG encodes img and, when raw is not nil, inserts it as an APP1 EXIF
// segment right after SOI.
func JPEG(tb testing.TB, img image.Image, raw []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		tb.Fatalf("encode jpeg: %v", err)
	}
	data := buf.Bytes()
	if raw == nil {
		return data
	}

	payload := append([]byte("Exif\x00\x00"), raw...)
	size := len(payload) + 2
	if size > 0xFFFF {
		tb.Fatalf("exif block too large: %d bytes", len(raw))
	}

	out := make([]byte, 0, len(data)+size+2)
	out = append(out, data[:2]...)
	out = append(out, 0xFF, 0xE1, byte(size>>8), byte(size))
	out = append(out, payload...)
	out = append(out, data[2:]...)
	return out
}

// ExifSpec describes the tags Exif writes.
type ExifSpec struct {
	Orientation uint16
	GPS         bool
	Make        string
	Copyright   string
	LensModel   string
	DateTaken   string
}

// Exif builds a TIFF-headed EXIF block.
func Exif(tb testing.TB, fields ExifSpec) []byte {
	tb.Helper()

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		tb.Fatalf("ifd mapping: %v", err)
	}
	ti := exif.NewTagIndex()

	root := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	if fields.Orientation != 0 {
		mustAdd(tb, root, "Orientation", []uint16{fields.Orientation})
	}
	if fields.Make != "" {
		mustAdd(tb, root, "Make", fields.Make)
	}
	if fields.Copyright != "" {
		mustAdd(tb, root, "Copyright", fields.Copyright)
	}

	if fields.LensModel != "" || fields.DateTaken != "" {
		sub := exif.NewIfdBuilder(im, ti, exifcommon.IfdExifStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
		if fields.DateTaken != "" {
			mustAdd(tb, sub, "DateTimeOriginal", fields.DateTaken)
		}
		if fields.LensModel != "" {
			mustAdd(tb, sub, "LensModel", fields.LensModel)
		}
		if err := root.AddChildIb(sub); err != nil {
			tb.Fatalf("attach exif ifd: %v", err)
		}
	}

	if fields.GPS {
		gps := exif.NewIfdBuilder(im, ti, exifcommon.IfdGpsInfoStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
		mustAdd(tb, gps, "GPSLatitudeRef", "N")
		mustAdd(tb, gps, "GPSLatitude", []exifcommon.Rational{
			{Numerator: 52, Denominator: 1},
			{Numerator: 22, Denominator: 1},
			{Numerator: 1234, Denominator: 100},
		})
		mustAdd(tb, gps, "GPSLongitudeRef", "E")
		mustAdd(tb, gps, "GPSLongitude", []exifcommon.Rational{
			{Numerator: 4, Denominator: 1},
			{Numerator: 53, Denominator: 1},
			{Numerator: 5, Denominator: 1},
		})
		if err := root.AddChildIb(gps); err != nil {
			tb.Fatalf("attach gps ifd: %v", err)
		}
	}

	raw, err := exif.NewIfdByteEncoder().EncodeToExif(root)
	if err != nil {
		tb.Fatalf("encode exif: %v", err)
	}
	return raw
}

func mustAdd(tb testing.TB, ib *exif.IfdBuilder, name string, value any) {
	tb.Helper()
	if err := ib.AddStandardWithName(name, value); err != nil {
		tb.Fatalf("add %s: %v", name, err)
	}
}

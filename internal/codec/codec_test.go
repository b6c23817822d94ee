package codec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/pixelprep/internal/testimage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReportsDimensionsAndFormat(t *testing.T) {
	r, err := NewDecoder().Decode(testimage.PNG(t, 40, 30))
	require.NoError(t, err)

	assert.Equal(t, FormatPNG, r.Format)
	assert.Equal(t, 40, r.Width)
	assert.Equal(t, 30, r.Height)
	assert.Equal(t, 1, r.Frames)
	assert.Equal(t, 1, r.Orientation)
	assert.Nil(t, r.Exif)
}

func TestDecodeJPEGReadsOrientation(t *testing.T) {
	raw := testimage.Exif(t, testimage.ExifSpec{Orientation: 6, GPS: true})
	data := testimage.JPEG(t, testimage.Gradient(20, 10), raw)

	r, err := NewDecoder().Decode(data)
	require.NoError(t, err)

	assert.Equal(t, FormatJPEG, r.Format)
	assert.Equal(t, 20, r.Width)
	assert.Equal(t, 10, r.Height)
	assert.Equal(t, 6, r.Orientation)
	assert.NotEmpty(t, r.Exif)
	assert.Equal(t, len(data), r.SourceBytes)
}

func TestDecodeGIFCountsFrames(t *testing.T) {
	r, err := NewDecoder().Decode(testimage.GIF(t, 8, 6, 3))
	require.NoError(t, err)

	assert.Equal(t, FormatGIF, r.Format)
	assert.Equal(t, 3, r.Frames)
	assert.Equal(t, 8, r.Width)
	assert.Equal(t, 6, r.Height)
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestDecodeEveryInputFormat(t *testing.T) {
	cases := []struct {
		name   string
		data   func(t *testing.T) []byte
		format Format
		width  int
		height int
	}{
		{name: "webp", data: func(t *testing.T) []byte { return readFixture(t, "gopher.lossless.webp") }, format: FormatWEBP, width: 75, height: 100},
		{name: "heif", data: func(t *testing.T) []byte { return readFixture(t, "test8.heic") }, format: FormatHEIF, width: 512, height: 512},
		{name: "psd", data: func(t *testing.T) []byte { return readFixture(t, "rgb8bit.psd") }, format: FormatPSD, width: 64, height: 64},
		{name: "avif", data: func(t *testing.T) []byte { return testimage.AVIF(t, 40, 30) }, format: FormatAVIF, width: 40, height: 30},
		{name: "icns", data: func(t *testing.T) []byte { return testimage.ICNS(t, 64) }, format: FormatICNS, width: 64, height: 64},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewDecoder().Decode(tc.data(t))
			require.NoError(t, err)

			assert.Equal(t, tc.format, r.Format)
			assert.Equal(t, tc.width, r.Width)
			assert.Equal(t, tc.height, r.Height)
			assert.Equal(t, 1, r.Frames)
			assert.Equal(t, 1, r.Orientation)

			out := OutputFormatFor(r.Format)
			encoded, err := Encode(r.Image, out, Options{})
			require.NoError(t, err)

			back, err := NewDecoder().Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, out, back.Format)
			assert.Equal(t, tc.width, back.Width)
			assert.Equal(t, tc.height, back.Height)
		})
	}
}

func TestDecodeRejectsOversizedHeaders(t *testing.T) {
	bomb := testimage.OversizedPNG(t, 20000, 20000)
	require.Less(t, len(bomb), 1024)

	r, err := NewDecoder().Decode(bomb)
	require.Error(t, err)
	assert.Nil(t, r)
	assert.True(t, IsDecodeError(err))
	assert.ErrorIs(t, err, ErrTooManyPixels)

	limited := NewDecoder().WithMaxPixels(100)
	_, err = limited.Decode(testimage.PNG(t, 11, 10))
	assert.ErrorIs(t, err, ErrTooManyPixels)
	_, err = limited.Decode(testimage.PNG(t, 10, 10))
	assert.NoError(t, err)

	_, err = limited.Decode(testimage.ICNS(t, 32))
	assert.ErrorIs(t, err, ErrTooManyPixels)

	unchanged := limited.WithMaxPixels(0)
	_, err = unchanged.Decode(testimage.PNG(t, 11, 10))
	assert.ErrorIs(t, err, ErrTooManyPixels)
}

func TestCountGIFFrames(t *testing.T) {
	data := testimage.GIF(t, 8, 6, 5)
	assert.Equal(t, 5, countGIFFrames(data))
	assert.Less(t, countGIFFrames(data[:len(data)/2]), 5)
	assert.Equal(t, 0, countGIFFrames(data[:8]))
}

func TestICNSConfigReportsLargestIcon(t *testing.T) {
	cfg, err := icnsConfig(testimage.ICNS(t, 128))
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Width)
	assert.Equal(t, 128, cfg.Height)

	_, err = icnsConfig([]byte("icns\x00\x00\x00\x08"))
	assert.Error(t, err)

	_, err = icnsConfig([]byte("icns\x00\x00\x00\x20ic12\x00\x00\x00\x40"))
	assert.Error(t, err)
}

func TestDecodeFailures(t *testing.T) {
	png := testimage.PNG(t, 4, 4)

	cases := []struct {
		name    string
		decoder *Decoder
		data    []byte
		target  error
	}{
		{name: "empty", decoder: NewDecoder(), data: nil, target: ErrEmptyInput},
		{name: "unknown", decoder: NewDecoder(), data: []byte("plain text is not an image"), target: ErrUnknownFormat},
		{name: "not allowed", decoder: NewDecoder(FormatJPEG), data: png, target: ErrFormatNotAllowed},
		{name: "truncated", decoder: NewDecoder(), data: png[:len(png)/2]},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := tc.decoder.Decode(tc.data)
			require.Error(t, err)
			assert.Nil(t, r)
			assert.True(t, IsDecodeError(err))
			assert.False(t, IsEncodeError(err))
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}
		})
	}
}

func TestDecodeJPEG2000WithoutRuntime(t *testing.T) {
	if BackendName() != "stdlib" {
		t.Skip("image runtime decodes jpeg 2000")
	}

	data := append(append([]byte{}, jp2Signature...), make([]byte, 32)...)
	_, err := NewDecoder().Decode(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncodeRoundTrip(t *testing.T) {
	src := testimage.Gradient(12, 9)

	for _, f := range []Format{FormatJPEG, FormatPNG, FormatGIF, FormatBMP, FormatTIFF} {
		t.Run(f.String(), func(t *testing.T) {
			require.True(t, CanEncode(f))

			data, err := Encode(src, f, Options{Quality: 80})
			require.NoError(t, err)
			assert.Equal(t, f, DetectFormat(data))

			r, err := NewDecoder().Decode(data)
			require.NoError(t, err)
			assert.Equal(t, 12, r.Width)
			assert.Equal(t, 9, r.Height)
		})
	}
}

func TestEncodeFailures(t *testing.T) {
	_, err := Encode(nil, FormatPNG, Options{})
	require.Error(t, err)
	assert.True(t, IsEncodeError(err))

	_, err = Encode(testimage.Gradient(2, 2), FormatPSD, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOutputFormatFor(t *testing.T) {
	assert.Equal(t, FormatJPEG, OutputFormatFor(FormatJPEG))
	assert.Equal(t, FormatGIF, OutputFormatFor(FormatGIF))
	assert.Equal(t, FormatPNG, OutputFormatFor(FormatPSD))
	assert.Equal(t, FormatPNG, OutputFormatFor(FormatICNS))
}

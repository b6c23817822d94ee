package pipeline

import (
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelprep/internal/codec"
)

// Box bounds the output of a fit. Both sides are positive.
type Box struct {
	Width  int
	Height int
}

func (b Box) String() string {
	if b.Width == b.Height {
		return strconv.Itoa(b.Width)
	}
	return strconv.Itoa(b.Width) + "x" + strconv.Itoa(b.Height)
}

func (b Box) validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return Invalid("box", "must be positive, got %dx%d", b.Width, b.Height)
	}
	return nil
}

// ParseBox accepts "N" for an N×N box or "WxH".
func ParseBox(raw string) (Box, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Box{}, Invalid("box", "is required")
	}

	w, h, found := strings.Cut(strings.ToLower(raw), "x")
	if !found {
		h = w
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Box{}, Invalid("box", "invalid size %q", raw)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Box{}, Invalid("box", "invalid size %q", raw)
	}

	box := Box{Width: width, Height: height}
	if err := box.validate(); err != nil {
		return Box{}, err
	}
	return box, nil
}

// FitDimensions scales (w, h) by the largest factor that keeps both sides
// inside the box. Sources that already fit are kept at their own size.
func FitDimensions(w, h int, box Box) (int, int) {
	if w <= box.Width && h <= box.Height {
		return w, h
	}

	scale := math.Min(float64(box.Width)/float64(w), float64(box.Height)/float64(h))
	fw := clampSide(int(math.Round(float64(w)*scale)), box.Width)
	fh := clampSide(int(math.Round(float64(h)*scale)), box.Height)
	return fw, fh
}

func clampSide(v, limit int) int {
	return max(1, min(v, limit))
}

// FitWithinBox resamples the raster to FitDimensions with Lanczos. The source
// image is returned as is when no scaling is needed.
func FitWithinBox(r *codec.Raster, box Box) (image.Image, error) {
	if err := box.validate(); err != nil {
		return nil, err
	}
	w, h := FitDimensions(r.Width, r.Height, box)
	if w == r.Width && h == r.Height {
		return r.Image, nil
	}
	return imaging.Resize(r.Image, w, h, imaging.Lanczos), nil
}

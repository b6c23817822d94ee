package pipeline

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelprep/internal/codec"
	"github.com/dunamismax/pixelprep/internal/metadata"
)

// NormalizeOrientation bakes the EXIF orientation into the pixels and resets the
// tag to normal. Rasters that are already normal pass through untouched.
func NormalizeOrientation(r *codec.Raster) {
	if img := applyOrientation(r.Image, r.Orientation); img != r.Image {
		r.SetImage(img)
	}
	r.Orientation = metadata.OrientationNormal
}

// applyOrientation maps EXIF orientations 2..8 onto the transform that makes the
// stored pixels display upright. Rotations are counter-clockwise in imaging, so
// orientation 6 (stored rotated 90° CCW) is fixed by Rotate270.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// StripGeoAndPrivacyMetadata replaces the raster's EXIF block with its sanitized
// form. A block that cannot be parsed is dropped entirely and the parse error is
// returned for reporting only; the raster is always safe to emit afterwards.
func StripGeoAndPrivacyMetadata(r *codec.Raster) error {
	if len(r.Exif) == 0 {
		r.Exif = nil
		return nil
	}
	sanitized, err := metadata.Sanitize(r.Exif)
	if err != nil {
		r.Exif = nil
		return err
	}
	r.Exif = sanitized
	return nil
}

package metadata

import (
	"bytes"

	goexif "github.com/rwcarlsen/goexif/exif"
)

const OrientationNormal = 1

var gpsFields = []goexif.FieldName{
	goexif.GPSInfoIFDPointer,
	goexif.GPSLatitude,
	goexif.GPSLongitude,
	goexif.GPSAltitude,
	goexif.GPSTimeStamp,
	goexif.GPSDateStamp,
}

// Orientation reads the EXIF orientation tag. Missing, unreadable and out of
// range values all report OrientationNormal.
func Orientation(raw []byte) (orientation int) {
	orientation = OrientationNormal
	if len(raw) == 0 {
		return orientation
	}

	defer func() {
		if rec := recover(); rec != nil {
			orientation = OrientationNormal
		}
	}()

	x, _ := goexif.Decode(bytes.NewReader(raw))
	if x == nil {
		return orientation
	}
	tag, err := x.Get(goexif.Orientation)
	if err != nil {
		return orientation
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return orientation
	}
	return v
}

// HasGPS reports whether any GPS field can be read from the block.
func HasGPS(raw []byte) (found bool) {
	if len(raw) == 0 {
		return false
	}

	defer func() {
		if rec := recover(); rec != nil {
			found = false
		}
	}()

	x, _ := goexif.Decode(bytes.NewReader(raw))
	if x == nil {
		return false
	}
	for _, name := range gpsFields {
		if _, err := x.Get(name); err == nil {
			return true
		}
	}
	return false
}

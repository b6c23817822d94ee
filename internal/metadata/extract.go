// Package metadata reads and rewrites EXIF blocks without touching pixels.
package metadata

import (
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
)

// Container selects the EXIF lookup strategy for an upload.
type Container int

const (
	ContainerOther Container = iota
	ContainerJPEG
	ContainerPNG
)

// Extract returns the TIFF-headed EXIF block of an encoded image, or nil when
// there is none or it cannot be located.
func Extract(data []byte, c Container) (raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			raw = nil
		}
	}()

	var err error
	switch c {
	case ContainerJPEG:
		raw, err = extractJPEG(data)
	case ContainerPNG:
		raw, err = extractPNG(data)
	default:
		raw, err = exif.SearchAndExtractExif(data)
	}
	if err != nil || len(raw) == 0 {
		return nil
	}
	return raw
}

func extractJPEG(data []byte) ([]byte, error) {
	segments, err := parseJPEG(data)
	if err != nil {
		return exif.SearchAndExtractExif(data)
	}
	_, raw, err := segments.Exif()
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func extractPNG(data []byte) ([]byte, error) {
	chunks, err := parsePNG(data)
	if err != nil {
		return nil, err
	}
	_, raw, err := chunks.Exif()
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func parseJPEG(data []byte) (*jpegstructure.SegmentList, error) {
	intfc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse jpeg segments: %w", err)
	}
	segments, ok := intfc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("parse jpeg segments: unexpected %T", intfc)
	}
	return segments, nil
}

func parsePNG(data []byte) (*pngstructure.ChunkSlice, error) {
	intfc, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse png chunks: %w", err)
	}
	chunks, ok := intfc.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, fmt.Errorf("parse png chunks: unexpected %T", intfc)
	}
	return chunks, nil
}

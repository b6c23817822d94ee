package metadata

import (
	"bytes"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

const (
	tagOrientation = 0x0112
	tagExifIFD     = 0x8769
	tagGPSIFD      = 0x8825
	tagInteropIFD  = 0xA005
)

// Tags removed from IFD0. Besides identity fields this drops every pointer
// into pixel or thumbnail data, which would dangle once the block is rebuilt.
var rootDenylist = []uint16{
	tagOrientation, // rewritten as normal
	tagExifIFD,     // rebuilt below
	tagGPSIFD,
	0x010D, // DocumentName
	0x010E, // ImageDescription
	0x010F, // Make
	0x0110, // Model
	0x0111, // StripOffsets
	0x0117, // StripByteCounts
	0x0131, // Software
	0x013B, // Artist
	0x013C, // HostComputer
	0x0144, // TileOffsets
	0x0145, // TileByteCounts
	0x0201, // JPEGInterchangeFormat
	0x0202, // JPEGInterchangeFormatLength
	0x02BC, // XMP packet, may carry geotags
	0x83BB, // IPTC
	0x9C9B, // XPTitle
	0x9C9C, // XPComment
	0x9C9D, // XPAuthor
	0x9C9E, // XPKeywords
	0x9C9F, // XPSubject
	0xC4A5, // PrintIM
	0xC634, // DNGPrivateData
}

var exifDenylist = []uint16{
	tagInteropIFD,
	0x9010, // OffsetTime
	0x9011, // OffsetTimeOriginal
	0x9012, // OffsetTimeDigitized
	0x927C, // MakerNote
	0x9286, // UserComment
	0xA420, // ImageUniqueID
	0xA430, // CameraOwnerName
	0xA431, // BodySerialNumber
	0xA433, // LensMake
	0xA434, // LensModel
	0xA435, // LensSerialNumber
}

// Sanitize rebuilds an EXIF block without GPS data, thumbnails and fields that
// identify the device or its owner. Orientation is written as normal, so it
// must only be used on pixels that were already normalized. Sanitizing a
// sanitized block yields the same tags.
func Sanitize(raw []byte) (out []byte, err error) {
	if len(raw) == 0 {
		return nil, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("sanitize exif: %v", rec)
		}
	}()

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("load ifd mapping: %w", err)
	}
	ti := exif.NewTagIndex()

	_, index, err := exif.Collect(im, ti, raw)
	if err != nil {
		return nil, fmt.Errorf("parse exif: %w", err)
	}

	rootIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	if err := rootIb.AddTagsFromExisting(index.RootIfd, nil, rootDenylist); err != nil {
		return nil, fmt.Errorf("copy ifd0 tags: %w", err)
	}

	// A missing Exif sub-IFD is reported as an error; there is nothing to copy then.
	if exifIfd, err := index.RootIfd.ChildWithIfdPath(exifcommon.IfdExifStandardIfdIdentity); err == nil {
		exifIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdExifStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
		if err := exifIb.AddTagsFromExisting(exifIfd, nil, exifDenylist); err != nil {
			return nil, fmt.Errorf("copy exif ifd tags: %w", err)
		}
		if err := rootIb.AddChildIb(exifIb); err != nil {
			return nil, fmt.Errorf("attach exif ifd: %w", err)
		}
	}

	if err := rootIb.AddStandardWithName("Orientation", []uint16{OrientationNormal}); err != nil {
		return nil, fmt.Errorf("set orientation: %w", err)
	}

	out, err = exif.NewIfdByteEncoder().EncodeToExif(rootIb)
	if err != nil {
		return nil, fmt.Errorf("encode exif: %w", err)
	}
	return out, nil
}

// EmbedJPEG replaces any EXIF segment of an encoded JPEG with raw. A nil raw
// leaves the JPEG without EXIF.
func EmbedJPEG(jpegData, raw []byte) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("embed exif: %v", rec)
		}
	}()

	segments, err := parseJPEG(jpegData)
	if err != nil {
		return nil, err
	}
	if _, err := segments.DropExif(); err != nil {
		return nil, fmt.Errorf("drop exif segment: %w", err)
	}

	if len(raw) > 0 {
		im, err := exifcommon.NewIfdMappingWithStandard()
		if err != nil {
			return nil, fmt.Errorf("load ifd mapping: %w", err)
		}
		_, index, err := exif.Collect(im, exif.NewTagIndex(), raw)
		if err != nil {
			return nil, fmt.Errorf("parse exif: %w", err)
		}
		if err := segments.SetExif(exif.NewIfdBuilderFromExistingChain(index.RootIfd)); err != nil {
			return nil, fmt.Errorf("set exif segment: %w", err)
		}
	}

	var b bytes.Buffer
	if err := segments.Write(&b); err != nil {
		return nil, fmt.Errorf("write jpeg: %w", err)
	}
	return b.Bytes(), nil
}

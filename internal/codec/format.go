package codec

import (
	"bytes"
	"fmt"
	"strings"
)

// Format identifies an image container detected from content.
type Format string

const (
	FormatUnknown  Format = ""
	FormatJPEG     Format = "jpeg"
	FormatJPEG2000 Format = "jpeg2000"
	FormatPNG      Format = "png"
	FormatGIF      Format = "gif"
	FormatBMP      Format = "bmp"
	FormatTIFF     Format = "tiff"
	FormatWEBP     Format = "webp"
	FormatHEIF     Format = "heif"
	FormatAVIF     Format = "avif"
	FormatPSD      Format = "psd"
	FormatICNS     Format = "icns"
)

// AllFormats lists every input format the decoder understands.
var AllFormats = []Format{
	FormatJPEG,
	FormatJPEG2000,
	FormatPNG,
	FormatGIF,
	FormatBMP,
	FormatTIFF,
	FormatWEBP,
	FormatHEIF,
	FormatAVIF,
	FormatPSD,
	FormatICNS,
}

var (
	pngSignature  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	jp2Signature  = []byte{0x00, 0x00, 0x00, 0x0C, 'j', 'P', ' ', ' ', '\r', '\n', 0x87, '\n'}
	j2kSignature  = []byte{0xFF, 0x4F, 0xFF, 0x51}
	tiffLESig     = []byte{'I', 'I', 0x2A, 0x00}
	tiffBESig     = []byte{'M', 'M', 0x00, 0x2A}
	psdSignature  = []byte{'8', 'B', 'P', 'S'}
	icnsSignature = []byte{'i', 'c', 'n', 's'}

	heifBrands = map[string]bool{
		"heic": true, "heix": true, "hevc": true, "hevx": true,
		"heim": true, "heis": true, "hevm": true, "hevs": true,
		"mif1": true, "msf1": true,
	}
	avifBrands = map[string]bool{
		"avif": true, "avis": true,
	}
)

// DetectFormat identifies the image container by its magic bytes. Filenames
// and client supplied content types are never consulted.
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG
	case bytes.HasPrefix(data, pngSignature):
		return FormatPNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWEBP
	case bytes.HasPrefix(data, jp2Signature), bytes.HasPrefix(data, j2kSignature):
		return FormatJPEG2000
	case bytes.HasPrefix(data, tiffLESig), bytes.HasPrefix(data, tiffBESig):
		return FormatTIFF
	case bytes.HasPrefix(data, psdSignature):
		return FormatPSD
	case bytes.HasPrefix(data, icnsSignature):
		return FormatICNS
	case len(data) >= 14 && data[0] == 'B' && data[1] == 'M':
		return FormatBMP
	}

	if f := detectISOBMFF(data); f != FormatUnknown {
		return f
	}
	return FormatUnknown
}

// detectISOBMFF inspects the ftyp box shared by HEIF and AVIF. The major brand
// is checked first, then the compatible brands.
func detectISOBMFF(data []byte) Format {
	if len(data) < 16 || !bytes.Equal(data[4:8], []byte("ftyp")) {
		return FormatUnknown
	}

	boxSize := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if boxSize < 16 || boxSize > len(data) {
		boxSize = min(len(data), 64)
	}

	brands := []string{string(data[8:12])}
	for off := 16; off+4 <= boxSize; off += 4 {
		brands = append(brands, string(data[off:off+4]))
	}

	for _, brand := range brands {
		if avifBrands[brand] {
			return FormatAVIF
		}
	}
	for _, brand := range brands {
		if heifBrands[brand] {
			return FormatHEIF
		}
	}
	return FormatUnknown
}

func (f Format) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatJPEG2000:
		return "image/jp2"
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	case FormatWEBP:
		return "image/webp"
	case FormatHEIF:
		return "image/heif"
	case FormatAVIF:
		return "image/avif"
	case FormatPSD:
		return "image/vnd.adobe.photoshop"
	case FormatICNS:
		return "image/x-icns"
	default:
		return "application/octet-stream"
	}
}

func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatJPEG2000:
		return "jp2"
	case FormatUnknown:
		return "bin"
	default:
		return string(f)
	}
}

func (f Format) String() string {
	if f == FormatUnknown {
		return "unknown"
	}
	return string(f)
}

// ParseFormat resolves a configured format name. Common aliases are accepted.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "jpeg2000", "jp2", "j2k":
		return FormatJPEG2000, nil
	case "png":
		return FormatPNG, nil
	case "gif":
		return FormatGIF, nil
	case "bmp":
		return FormatBMP, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	case "webp":
		return FormatWEBP, nil
	case "heif", "heic":
		return FormatHEIF, nil
	case "avif":
		return FormatAVIF, nil
	case "psd":
		return FormatPSD, nil
	case "icns":
		return FormatICNS, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

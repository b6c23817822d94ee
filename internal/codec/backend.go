package codec

import "image"

// backend is an optional native imaging runtime used for formats the pure Go
// decoders and encoders cannot handle.
type backend interface {
	CanDecode(f Format) bool
	DecodeConfig(data []byte) (image.Config, error)
	Decode(data []byte) (image.Image, error)
	CanEncode(f Format) bool
	Encode(img image.Image, f Format, quality int) ([]byte, error)
}

//go:build !govips || !cgo

package codec

import "image"

func Startup() error {
	return nil
}

func Shutdown() {}

func BackendName() string {
	return "stdlib"
}

func newBackend() backend {
	return noBackend{}
}

type noBackend struct{}

func (noBackend) CanDecode(Format) bool { return false }

func (noBackend) DecodeConfig([]byte) (image.Config, error) {
	return image.Config{}, ErrUnsupportedFormat
}

func (noBackend) Decode([]byte) (image.Image, error) {
	return nil, ErrUnsupportedFormat
}

func (noBackend) CanEncode(Format) bool { return false }

func (noBackend) Encode(image.Image, Format, int) ([]byte, error) {
	return nil, ErrUnsupportedFormat
}

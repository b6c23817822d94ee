package codec

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput        = errors.New("codec: empty input")
	ErrUnknownFormat     = errors.New("codec: unrecognized image format")
	ErrUnsupportedFormat = errors.New("codec: unsupported image format")
	ErrFormatNotAllowed  = errors.New("codec: image format not accepted")
	ErrTooManyPixels     = errors.New("codec: image dimensions exceed limit")

	errNoPixels = errors.New("image has no pixels")
)

// DecodeError reports input that could not be turned into a raster. It is
// caused by the upload and is safe to show to the client.
type DecodeError struct {
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s image: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports a failure to serialize a raster. It points at a codec
// problem on our side rather than bad input.
type EncodeError struct {
	Format Format
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s image: %v", e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

func IsEncodeError(err error) bool {
	var ee *EncodeError
	return errors.As(err, &ee)
}

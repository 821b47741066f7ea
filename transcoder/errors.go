package transcoder

import (
	"errors"
	"fmt"
)

var (
	// ErrEncodingFailure is returned when native serialization of a structured value fails
	ErrEncodingFailure = errors.New("encoding failure")

	// ErrCompressionUnavailable means the configured method is not built in. Encode falls back to no compression.
	ErrCompressionUnavailable = errors.New("compression method unavailable")

	// ErrCompressionFailure means the compressor itself failed. Encode keeps the raw body.
	ErrCompressionFailure = errors.New("compression failure")

	// ErrDecompressionFailure fails the whole decode
	ErrDecompressionFailure = errors.New("decompression failure")

	ErrUnsupportedFormat          = errors.New("unsupported serialization format")
	ErrUnknownSerializationType   = errors.New("unknown serialization type")
	ErrUnknownFormatSpecification = errors.New("unknown format specification")
)

// DecodeError carries the flags of a value that could not be decoded
type DecodeError struct {
	Flags uint32
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode flags 0x%08x (%s): %v", e.Flags, UnpackFlags(e.Flags), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

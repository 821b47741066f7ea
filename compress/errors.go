package compress

import "errors"

var (
	// ErrUnsupportedMethod is returned for methods that are not compiled in
	ErrUnsupportedMethod = errors.New("compression method not available")

	// ErrShortInput is returned when a block is too small to carry the length header
	ErrShortInput = errors.New("compressed block shorter than header")

	// ErrCorrupt is returned when the payload cannot be decoded
	ErrCorrupt = errors.New("corrupt compressed payload")

	// ErrSizeMismatch is returned when the payload does not inflate to the header size
	ErrSizeMismatch = errors.New("decompressed size does not match header")

	// ErrTooLarge is returned for sizes outside the 32-bit header range or above MaxDecompressedSize
	ErrTooLarge = errors.New("compressed block too large")
)

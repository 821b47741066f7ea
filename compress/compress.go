// Package compress implements the raw block compression used for stored values.
//
// Every compressed block starts with a 4-byte little-endian header carrying the
// uncompressed length, followed by the method-specific payload. The header lets the
// decompressor size its output buffer up front and detect truncated payloads.
package compress

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Method identifies a compression algorithm. The numeric values are the ones stored
// in bits 5-7 of the value flags, so they must never be renumbered.
type Method uint8

const (
	None   Method = 0
	Zlib   Method = 1
	FastLZ Method = 2
)

// HeaderSize is the length of the original-size prefix
const HeaderSize = 4

// MaxDecompressedSize caps the size a header may claim
var MaxDecompressedSize uint32 = 64 << 20

func (m Method) String() string {
	switch m {
	case None:
		return "none"
	case Zlib:
		return "zlib"
	case FastLZ:
		return "fastlz"
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// ParseMethod converts a configuration string into a Method
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "zlib":
		return Zlib, nil
	case "fastlz":
		return FastLZ, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
	}
}

// Available reports whether the method can be used for Compress/Decompress
func Available(m Method) bool {
	return m == Zlib || m == FastLZ
}

// Compress compresses src with the given method and prefixes the original length.
func Compress(src []byte, m Method) ([]byte, error) {
	if uint64(len(src)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: input of %d bytes exceeds header range", ErrTooLarge, len(src))
	}

	var (
		out []byte
		err error
	)
	switch m {
	case Zlib:
		out, err = zlibCompress(src)
	case FastLZ:
		out = fastlzCompress(src)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, m)
	}
	if err != nil {
		return nil, err
	}

	binary.LittleEndian.PutUint32(out[:HeaderSize], uint32(len(src)))
	return out, nil
}

// Decompress reads the length header and decompresses the remainder of src.
func Decompress(src []byte, m Method) ([]byte, error) {
	if !Available(m) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, m)
	}
	if len(src) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortInput, len(src))
	}

	size := binary.LittleEndian.Uint32(src[:HeaderSize])
	if size > MaxDecompressedSize {
		return nil, fmt.Errorf("%w: header claims %d bytes", ErrTooLarge, size)
	}

	dst := make([]byte, size)
	payload := src[HeaderSize:]

	switch m {
	case Zlib:
		if err := zlibDecompress(payload, dst); err != nil {
			return nil, err
		}
	case FastLZ:
		n, err := fastlzDecompress(payload, dst)
		if err != nil {
			return nil, err
		}
		if n != len(dst) {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrSizeMismatch, len(dst), n)
		}
	}

	return dst, nil
}

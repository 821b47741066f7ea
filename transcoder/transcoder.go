// Package transcoder converts Go values to and from stored document bodies.
//
// A stored value is a byte body plus a 32-bit flags word that records the
// value kind, the common format, and the compression method. The flags carry
// everything needed to decode the body again; the only decode-side option is
// whether JSON objects come back as plain maps or as Object.
package transcoder

import (
	"fmt"

	"github.com/maxpert/pcbc/cfg"
)

// Transcoder encodes values for storage and decodes them back
type Transcoder interface {
	Encode(value interface{}) (EncodedValue, error)
	Decode(data []byte, flags uint32, datatype uint8) (interface{}, error)
}

// Basic applies Encode and Decode with fixed configs
type Basic struct {
	Encoder EncoderConfig
	Decoder DecoderConfig
}

// NewBasic creates a Basic transcoder
func NewBasic(enc EncoderConfig, dec DecoderConfig) *Basic {
	return &Basic{Encoder: enc, Decoder: dec}
}

// Default returns a Basic transcoder configured from cfg.Config.Codec.
// The configuration has already been validated at startup, so conversion errors
// fall back to the zero configs (JSON, no compression).
func Default() *Basic {
	enc, dec, err := ConfigFromCodec(cfg.Config.Codec)
	if err != nil {
		return &Basic{}
	}
	return NewBasic(enc, dec)
}

func (b *Basic) Encode(value interface{}) (EncodedValue, error) {
	return Encode(value, b.Encoder)
}

func (b *Basic) Decode(data []byte, flags uint32, datatype uint8) (interface{}, error) {
	return Decode(data, flags, datatype, b.Decoder)
}

// Passthru stores strings and byte slices untouched with zero flags and decodes
// every body as a string, whatever its flags say.
type Passthru struct{}

func (Passthru) Encode(value interface{}) (EncodedValue, error) {
	switch v := value.(type) {
	case nil:
		return EncodedValue{}, nil
	case string:
		return EncodedValue{Bytes: []byte(v)}, nil
	case []byte:
		return EncodedValue{Bytes: v}, nil
	default:
		return EncodedValue{}, fmt.Errorf("%w: passthru cannot store %T", ErrEncodingFailure, value)
	}
}

func (Passthru) Decode(data []byte, flags uint32, datatype uint8) (interface{}, error) {
	if data == nil {
		return nil, nil
	}
	return string(data), nil
}

var (
	_ Transcoder = (*Basic)(nil)
	_ Transcoder = Passthru{}
)

package transcoder

import (
	"fmt"

	"github.com/maxpert/pcbc/cfg"
	"github.com/maxpert/pcbc/compress"
)

// SerializationFormat selects how structured values are encoded
type SerializationFormat uint8

const (
	SerializeJSON SerializationFormat = iota
	SerializeNative
)

func (s SerializationFormat) String() string {
	switch s {
	case SerializeJSON:
		return "json"
	case SerializeNative:
		return "native"
	default:
		return fmt.Sprintf("serialization(%d)", uint8(s))
	}
}

// EncoderConfig controls Encode
type EncoderConfig struct {
	SerializationFormat  SerializationFormat
	Compression          compress.Method
	CompressionThreshold int     // bodies shorter than this are never compressed
	CompressionMinRatio  float64 // keep compressed form only if raw > compressed*ratio
}

// DecoderConfig controls Decode
type DecoderConfig struct {
	DecodeObjectsAsMaps bool
}

// ConfigFromCodec converts the process configuration into encoder and decoder settings
func ConfigFromCodec(c cfg.CodecConfiguration) (EncoderConfig, DecoderConfig, error) {
	enc := EncoderConfig{
		CompressionThreshold: c.CompressionThreshold,
		CompressionMinRatio:  c.CompressionMinRatio,
	}

	switch c.SerializationFormat {
	case cfg.SerializationJSON, "":
		enc.SerializationFormat = SerializeJSON
	case cfg.SerializationNative:
		enc.SerializationFormat = SerializeNative
	default:
		return EncoderConfig{}, DecoderConfig{}, fmt.Errorf("serialization format %q: %w", c.SerializationFormat, ErrUnsupportedFormat)
	}

	method, err := compress.ParseMethod(string(c.Compression))
	if err != nil {
		return EncoderConfig{}, DecoderConfig{}, err
	}
	enc.Compression = method

	return enc, DecoderConfig{DecodeObjectsAsMaps: c.DecodeJSONAsMaps}, nil
}

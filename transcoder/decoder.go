package transcoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/maxpert/pcbc/compress"
	"github.com/maxpert/pcbc/encoding"
	"github.com/maxpert/pcbc/telemetry"
)

// Object is a decoded JSON object when DecodeObjectsAsMaps is false. It is kept
// distinct from map[string]interface{} so callers can tell objects from
// associative data.
type Object map[string]interface{}

// Decode reverses Encode. Values stored with the JSON common format are parsed
// directly; PRIVATE and EMPTY values are decompressed when marked and then
// dispatched on their value kind; STRING and RAW values are returned verbatim.
//
// Malformed JSON, numeric, and serialized bodies decode to nil with a warning.
// Decompression failures and unknown tags are returned as errors.
func Decode(data []byte, flags uint32, datatype uint8, config DecoderConfig) (interface{}, error) {
	f := UnpackFlags(flags)

	v, err := decode(data, flags, f, config)
	if err != nil {
		telemetry.CodecDecodeTotal.With(f.Format.String(), "error").Inc()
		return nil, &DecodeError{Flags: flags, Err: err}
	}
	telemetry.CodecDecodeTotal.With(f.Format.String(), "ok").Inc()
	return v, nil
}

func decode(data []byte, raw uint32, f Flags, config DecoderConfig) (interface{}, error) {
	switch f.Format {
	case FormatPrivate, FormatEmpty:
		return decodePrivate(data, raw, f, config)
	case FormatJSON:
		return softJSON(data, config, "json_decode")
	case FormatString, FormatRaw:
		return string(data), nil
	default:
		return nil, ErrUnknownFormatSpecification
	}
}

func decodePrivate(data []byte, raw uint32, f Flags, config DecoderConfig) (interface{}, error) {
	if f.Compressed {
		inflated, err := compress.Decompress(data, f.Compression)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecompressionFailure, err)
		}
		data = inflated
	}

	switch f.Kind {
	case KindString:
		if raw == 0 {
			// Untagged legacy document: JSON if it parses, text otherwise
			if v, err := decodeJSON(data, config.DecodeObjectsAsMaps); err == nil {
				return v, nil
			}
		}
		return string(data), nil

	case KindLong:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			softFailure("long", err)
			return nil, nil
		}
		return n, nil

	case KindDouble:
		d, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			softFailure("double", err)
			return nil, nil
		}
		return d, nil

	case KindBool:
		return len(data) > 0 && string(data) != "false", nil

	case KindJSON:
		return softJSON(data, config, "json_decode")

	case KindSerialized:
		v, err := encoding.DecodeValue(data)
		if err != nil {
			softFailure("native_decode", err)
			return nil, nil
		}
		return v, nil

	case KindIgbinary:
		return nil, ErrUnsupportedFormat

	default:
		return nil, ErrUnknownSerializationType
	}
}

func softJSON(data []byte, config DecoderConfig, stage string) (interface{}, error) {
	v, err := decodeJSON(data, config.DecodeObjectsAsMaps)
	if err != nil {
		softFailure(stage, err)
		return nil, nil
	}
	return v, nil
}

func softFailure(stage string, err error) {
	log.Warn().Err(err).Str("stage", stage).Msg("Failed to decode value, returning nil")
	telemetry.CodecSoftFailuresTotal.With(stage).Inc()
}

var errTrailingData = errors.New("trailing data after JSON document")

// decodeJSON parses exactly one JSON document. Integral numbers that fit in
// int64 become int64, all other numbers float64.
func decodeJSON(data []byte, asMaps bool) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}

	return convertJSON(v, asMaps), nil
}

func convertJSON(v interface{}, asMaps bool) interface{} {
	switch t := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return n
		}
		f, _ := strconv.ParseFloat(string(t), 64)
		return f
	case []interface{}:
		for i := range t {
			t[i] = convertJSON(t[i], asMaps)
		}
		return t
	case map[string]interface{}:
		for k, e := range t {
			t[k] = convertJSON(e, asMaps)
		}
		if asMaps {
			return t
		}
		return Object(t)
	default:
		return v
	}
}

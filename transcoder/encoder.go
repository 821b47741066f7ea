package transcoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/maxpert/pcbc/compress"
	"github.com/maxpert/pcbc/encoding"
	"github.com/maxpert/pcbc/telemetry"
)

// EncodedValue is a stored document body plus its metadata
type EncodedValue struct {
	Bytes    []byte
	Flags    uint32
	Datatype uint8
}

// Encode converts a Go value into a tagged body. Strings and byte slices are
// stored as-is, numbers and booleans as their JSON text, everything else through
// the configured serializer. The body is then compressed when the config asks for
// it and the result is small enough to be worth keeping.
//
// Only native serialization errors are returned. JSON serialization and
// compression failures are logged and absorbed.
func Encode(value interface{}, config EncoderConfig) (EncodedValue, error) {
	body, flags, err := serialize(value, config.SerializationFormat)
	if err != nil {
		return EncodedValue{}, err
	}

	if len(body) > 0 {
		body, flags = maybeCompress(body, flags, config)
	}

	telemetry.CodecEncodeTotal.With(flags.Format.String(), flags.Compression.String()).Inc()
	telemetry.CodecEncodedBytes.Observe(float64(len(body)))

	return EncodedValue{Bytes: body, Flags: flags.Pack(), Datatype: 0}, nil
}

func serialize(value interface{}, format SerializationFormat) ([]byte, Flags, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), Flags{Kind: KindString, Format: FormatString}, nil
	case []byte:
		return v, Flags{Kind: KindString, Format: FormatString}, nil
	}

	rv := reflect.ValueOf(value)
	if rv.IsValid() {
		switch rv.Kind() {
		case reflect.String:
			return []byte(rv.String()), Flags{Kind: KindString, Format: FormatString}, nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return strconv.AppendInt(nil, rv.Int(), 10), Flags{Kind: KindLong, Format: FormatJSON}, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			u := rv.Uint()
			if u > math.MaxInt64 {
				// Out of signed range: stored as a double
				return formatDouble(float64(u), 64), Flags{Kind: KindDouble, Format: FormatJSON}, nil
			}
			return strconv.AppendInt(nil, int64(u), 10), Flags{Kind: KindLong, Format: FormatJSON}, nil
		case reflect.Float32:
			return formatDouble(rv.Float(), 32), Flags{Kind: KindDouble, Format: FormatJSON}, nil
		case reflect.Float64:
			return formatDouble(rv.Float(), 64), Flags{Kind: KindDouble, Format: FormatJSON}, nil
		case reflect.Bool:
			if rv.Bool() {
				return []byte("true"), Flags{Kind: KindBool, Format: FormatJSON}, nil
			}
			return []byte("false"), Flags{Kind: KindBool, Format: FormatJSON}, nil
		}
	}

	if format == SerializeNative {
		body, err := encoding.Marshal(value)
		if err != nil {
			return nil, Flags{}, fmt.Errorf("%w: %w", ErrEncodingFailure, err)
		}
		return body, Flags{Kind: KindSerialized, Format: FormatPrivate}, nil
	}

	flags := Flags{Kind: KindJSON, Format: FormatJSON}
	body, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("type", fmt.Sprintf("%T", value)).Msg("Failed to encode value as JSON, storing empty body")
		telemetry.CodecSoftFailuresTotal.With("json_encode").Inc()
		return nil, flags, nil
	}
	return body, flags, nil
}

// formatDouble writes the shortest representation that parses back to f, using
// the same exponent cutoffs as encoding/json. Integral values keep a fractional
// part so they read back as doubles.
func formatDouble(f float64, bits int) []byte {
	abs := math.Abs(f)
	fmtByte := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		fmtByte = 'e'
	}
	s := strconv.FormatFloat(f, fmtByte, -1, bits)
	if fmtByte == 'e' {
		// clean up e-09 to e-9
		if n := len(s); n >= 4 && s[n-4] == 'e' && s[n-3] == '-' && s[n-2] == '0' {
			s = s[:n-2] + s[n-1:]
		}
	}
	if !strings.ContainsAny(s, ".eIN") {
		s += ".0"
	}
	return []byte(s)
}

func maybeCompress(body []byte, flags Flags, config EncoderConfig) ([]byte, Flags) {
	method := config.Compression
	if method == compress.None {
		return body, flags
	}

	if len(body) < config.CompressionThreshold {
		telemetry.CodecCompressionTotal.With(method.String(), "below_threshold").Inc()
		return body, flags
	}

	if !compress.Available(method) {
		log.Warn().Err(ErrCompressionUnavailable).Str("method", method.String()).Msg("Storing value uncompressed")
		telemetry.CodecCompressionTotal.With(method.String(), "unavailable").Inc()
		return body, flags
	}

	compressed, err := compress.Compress(body, method)
	if err != nil {
		if errors.Is(err, compress.ErrUnsupportedMethod) {
			err = fmt.Errorf("%w: %w", ErrCompressionUnavailable, err)
		} else {
			err = fmt.Errorf("%w: %w", ErrCompressionFailure, err)
		}
		log.Warn().Err(err).Str("method", method.String()).Int("size", len(body)).Msg("Storing value uncompressed")
		telemetry.CodecCompressionTotal.With(method.String(), "failed").Inc()
		return body, flags
	}

	// Strict comparison: a tie keeps the raw body
	if !(float64(len(body)) > float64(len(compressed))*config.CompressionMinRatio) {
		telemetry.CodecCompressionTotal.With(method.String(), "ratio_rejected").Inc()
		return body, flags
	}

	telemetry.CodecCompressionTotal.With(method.String(), "accepted").Inc()
	flags.Compressed = true
	flags.Compression = method
	flags.Format = FormatPrivate
	return compressed, flags
}

// Package encoding implements the native serialization used for structured values
// stored with the private common format.
//
// Values are written as msgpack. Decoding into interface{} uses loose decoding, so
// integers come back as int64/uint64, floats as float64, and binary payloads as Go
// strings, which is the shape the transcoder hands back to callers.
//
// Thread Safety: Marshal and Unmarshal are safe for concurrent use.
package encoding

import (
	"bytes"
	"fmt"
	"math"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// encoderPoolEntry provides pooled msgpack encoders for reduced allocations.
type encoderPoolEntry struct {
	buf *bytes.Buffer
	enc *msgpack.Encoder
}

var encoderPool = sync.Pool{
	New: func() interface{} {
		buf := new(bytes.Buffer)
		enc := msgpack.NewEncoder(buf)
		// Map keys are sorted so equal documents serialize to equal bytes
		enc.SetSortMapKeys(true)
		return &encoderPoolEntry{buf: buf, enc: enc}
	},
}

// Marshal encodes a value to msgpack format using a pooled encoder.
func Marshal(v interface{}) ([]byte, error) {
	entry := encoderPool.Get().(*encoderPoolEntry)
	entry.buf.Reset()

	if err := entry.enc.Encode(v); err != nil {
		encoderPool.Put(entry)
		return nil, &MarshalError{Type: fmt.Sprintf("%T", v), Err: err}
	}

	// Copy result before returning to pool
	result := make([]byte, entry.buf.Len())
	copy(result, entry.buf.Bytes())
	encoderPool.Put(entry)

	return result, nil
}

// Unmarshal decodes msgpack data using loose interface decoding.
// Trailing bytes after the first value are rejected.
func Unmarshal(data []byte, v interface{}) error {
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)

	if err := dec.Decode(v); err != nil {
		return &UnmarshalError{Err: err}
	}
	if r.Len() > 0 {
		return &UnmarshalError{Err: fmt.Errorf("%d trailing bytes", r.Len())}
	}

	return nil
}

// DecodeValue decodes a msgpack document into plain Go values. Non-negative
// integers that fit in int64 are returned as int64 regardless of the width
// the writer picked.
func DecodeValue(data []byte) (interface{}, error) {
	var v interface{}
	if err := Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return t
	case []interface{}:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	case map[string]interface{}:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[interface{}]interface{}:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	default:
		return v
	}
}

// MarshalError represents a marshaling error.
type MarshalError struct {
	Type string
	Err  error
}

func (e *MarshalError) Error() string {
	return fmt.Sprintf("msgpack marshal %s: %v", e.Type, e.Err)
}

func (e *MarshalError) Unwrap() error {
	return e.Err
}

// UnmarshalError represents a decoding error.
type UnmarshalError struct {
	Err error
}

func (e *UnmarshalError) Error() string {
	return fmt.Sprintf("msgpack unmarshal: %v", e.Err)
}

func (e *UnmarshalError) Unwrap() error {
	return e.Err
}

package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// zlibWriters pools deflate state; allocating a writer costs far more than a small value
var zlibWriters = sync.Pool{
	New: func() any {
		w, _ := zlib.NewWriterLevel(io.Discard, zlib.DefaultCompression)
		return w
	},
}

func zlibCompress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(src)/2 + 16)
	buf.Write(make([]byte, HeaderSize))

	w := zlibWriters.Get().(*zlib.Writer)
	w.Reset(&buf)
	defer zlibWriters.Put(w)

	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("zlib deflate: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib deflate: %w", err)
	}

	return buf.Bytes(), nil
}

func zlibDecompress(payload, dst []byte) error {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer r.Close()

	if _, err := io.ReadFull(r, dst); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: expected %d bytes", ErrSizeMismatch, len(dst))
		}
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	// The stream must end exactly where the header said it would
	var probe [1]byte
	if n, _ := r.Read(probe[:]); n > 0 {
		return fmt.Errorf("%w: payload inflates past %d bytes", ErrSizeMismatch, len(dst))
	}

	return nil
}

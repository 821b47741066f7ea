package compress

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func samplePayloads() map[string][]byte {
	rng := rand.New(rand.NewSource(42))
	random := make([]byte, 4096)
	rng.Read(random)

	twoSymbols := make([]byte, 3000)
	for i := range twoSymbols {
		twoSymbols[i] = "ab"[rng.Intn(2)]
	}

	return map[string][]byte{
		"single_byte":  {0x7f},
		"three_bytes":  []byte("abc"),
		"short_text":   []byte("hello world"),
		"exactly_66":   bytes.Repeat([]byte("x"), 66),
		"json_doc":     []byte(`{"foo":1.2379813738877118e+19}`),
		"repetitive":   []byte(strings.Repeat("couchbase ", 500)),
		"run_of_zeros": make([]byte, 70000),
		"random":       random,
		"two_symbols":  twoSymbols,
	}
}

func TestRoundTrip(t *testing.T) {
	for _, method := range []Method{Zlib, FastLZ} {
		for name, payload := range samplePayloads() {
			t.Run(method.String()+"/"+name, func(t *testing.T) {
				compressed, err := Compress(payload, method)
				require.NoError(t, err)
				require.GreaterOrEqual(t, len(compressed), HeaderSize)
				assert.Equal(t, uint32(len(payload)), binary.LittleEndian.Uint32(compressed))

				restored, err := Decompress(compressed, method)
				require.NoError(t, err)
				assert.Equal(t, payload, restored)
			})
		}
	}
}

func TestCompress_ShrinksRepetitiveInput(t *testing.T) {
	payload := []byte(strings.Repeat("0123456789", 200))

	for _, method := range []Method{Zlib, FastLZ} {
		compressed, err := Compress(payload, method)
		require.NoError(t, err)
		assert.Less(t, len(compressed), len(payload)/4, "method %s", method)
	}
}

func TestFastLZ_OutputBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{1, 31, 32, 33, 65, 66, 67, 1000, 10000} {
		payload := make([]byte, n)
		rng.Read(payload)

		compressed, err := Compress(payload, FastLZ)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(compressed)-HeaderSize, fastlzBound(n)+1, "n=%d", n)
	}
}

func TestFastLZ_ReferenceVectors(t *testing.T) {
	// Blocks produced by the C fastlz library
	tests := []struct {
		name string
		hex  string
		want string
	}{
		{"seventeen_digits", "1e0000001d7b22666f6f223a312e32333739383133373338383737313138652b31397d", `{"foo":1.2379813738877118e+19}`},
		{"fourteen_digits", "1b0000001a7b22666f6f223a312e32333739383133373338383737652b31397d", `{"foo":1.2379813738877e+19}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Decompress(mustHex(t, tc.hex), FastLZ)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(out))
		})
	}

	// No three-byte repeats, so the block is a single literal run
	compressed, err := Compress([]byte(`{"foo":1.2379813738877118e+19}`), FastLZ)
	require.NoError(t, err)
	assert.Equal(t, tests[0].hex, hex.EncodeToString(compressed))
}

func TestFastLZ_BackReferenceVectors(t *testing.T) {
	// Level 1 blocks as emitted by the C encoder, covering short (2 byte) and
	// long (3 byte) match codes
	tests := []struct {
		name string
		hex  string
		want string
	}{
		{
			"long_match",
			"c8000000" + "09636f7563686261736520" + "e0b209" + "02736520",
			strings.Repeat("couchbase ", 20),
		},
		{
			"short_matches",
			"3a000000" + "087468652063617420732003026f6e20400e036d61742c6008e00617006820220a616e642074686520626174",
			"the cat sat on the mat, the cat sat on the hat and the bat",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Decompress(mustHex(t, tc.hex), FastLZ)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(out))

			// Our encoder may pick different matches but must stay decodable and no larger
			compressed, err := Compress([]byte(tc.want), FastLZ)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(compressed), len(tc.hex)/2+8)
			restored, err := Decompress(compressed, FastLZ)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(restored))
		})
	}

	t.Run("truncated_long_match", func(t *testing.T) {
		_, err := Decompress(mustHex(t, "c8000000"+"09636f7563686261736520"+"e0b2"), FastLZ)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestZlib_ReferenceVectors(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want string
	}{
		{"json", "1e000000789cab564acbcf57b232d4333236b7b430343637b6b030373734b448d536b4ac050076a00767", `{"foo":1.2379813738877118e+19}`},
		{"string", "1d000000789cab564acbcf57b25230343236b7b430343637b6b030373734b4303631ad05006da106fb", `{"foo": 12379813738877118345}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Decompress(mustHex(t, tc.hex), Zlib)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(out))
		})
	}
}

func TestDecompress_Errors(t *testing.T) {
	valid, err := Compress([]byte(strings.Repeat("abcdef", 50)), FastLZ)
	require.NoError(t, err)
	validZlib, err := Compress([]byte(strings.Repeat("abcdef", 50)), Zlib)
	require.NoError(t, err)

	t.Run("short_input", func(t *testing.T) {
		_, err := Decompress([]byte{1, 0}, Zlib)
		assert.ErrorIs(t, err, ErrShortInput)
	})

	t.Run("unsupported_method", func(t *testing.T) {
		_, err := Decompress(valid, None)
		assert.ErrorIs(t, err, ErrUnsupportedMethod)
		_, err = Decompress(valid, Method(7))
		assert.ErrorIs(t, err, ErrUnsupportedMethod)
	})

	t.Run("header_too_large", func(t *testing.T) {
		block := append([]byte{}, valid...)
		binary.LittleEndian.PutUint32(block, MaxDecompressedSize+1)
		_, err := Decompress(block, FastLZ)
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("fastlz_header_too_small", func(t *testing.T) {
		block := append([]byte{}, valid...)
		binary.LittleEndian.PutUint32(block, 10)
		_, err := Decompress(block, FastLZ)
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})

	t.Run("fastlz_header_too_big", func(t *testing.T) {
		block := append([]byte{}, valid...)
		binary.LittleEndian.PutUint32(block, 1000)
		_, err := Decompress(block, FastLZ)
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})

	t.Run("fastlz_truncated", func(t *testing.T) {
		_, err := Decompress(valid[:len(valid)-3], FastLZ)
		assert.Error(t, err)
	})

	t.Run("fastlz_level2_block", func(t *testing.T) {
		_, err := Decompress([]byte{1, 0, 0, 0, 0x20, 'a'}, FastLZ)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("fastlz_bad_reference", func(t *testing.T) {
		// literal 'a' then a match reaching 200 bytes back
		_, err := Decompress([]byte{10, 0, 0, 0, 0x00, 'a', 0x20, 200}, FastLZ)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("zlib_garbage", func(t *testing.T) {
		_, err := Decompress([]byte{5, 0, 0, 0, 'n', 'o', 'p', 'e', '!'}, Zlib)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("zlib_header_too_big", func(t *testing.T) {
		block := append([]byte{}, validZlib...)
		binary.LittleEndian.PutUint32(block, 1000)
		_, err := Decompress(block, Zlib)
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})

	t.Run("zlib_header_too_small", func(t *testing.T) {
		block := append([]byte{}, validZlib...)
		binary.LittleEndian.PutUint32(block, 5)
		_, err := Decompress(block, Zlib)
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})
}

func TestCompress_UnsupportedMethod(t *testing.T) {
	_, err := Compress([]byte("data"), None)
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestParseMethod(t *testing.T) {
	tests := map[string]Method{"": None, "none": None, "ZLIB": Zlib, " fastlz ": FastLZ}
	for in, want := range tests {
		got, err := ParseMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMethod("lz4")
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestCompress_Concurrent(t *testing.T) {
	payload := []byte(strings.Repeat("concurrent zlib writers ", 100))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				compressed, err := Compress(payload, Zlib)
				if err != nil {
					t.Errorf("Compress failed: %v", err)
					return
				}
				restored, err := Decompress(compressed, Zlib)
				if err != nil || !bytes.Equal(restored, payload) {
					t.Errorf("round trip mismatch: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkCompress(b *testing.B) {
	payload := []byte(strings.Repeat(`{"name":"bench","values":[1,2,3,4,5]}`, 64))

	for _, method := range []Method{Zlib, FastLZ} {
		b.Run(method.String(), func(b *testing.B) {
			b.SetBytes(int64(len(payload)))
			for i := 0; i < b.N; i++ {
				_, _ = Compress(payload, method)
			}
		})
	}
}

package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacket_WriteRead(t *testing.T) {
	var buf bytes.Buffer
	in := &packet{
		Magic:    magicRequest,
		Opcode:   opSASLAuth,
		Datatype: 0x01,
		Status:   7,
		Opaque:   0xdeadbeef,
		CAS:      42,
		Extras:   []byte{1, 2},
		Key:      []byte("PLAIN"),
		Value:    []byte("\x00user\x00pass"),
	}
	require.NoError(t, writePacket(&buf, in))

	raw := buf.Bytes()
	require.Len(t, raw, headerLen+2+5+10)
	assert.Equal(t, []byte{0x80, 0x21, 0x00, 0x05, 0x02, 0x01, 0x00, 0x07, 0x00, 0x00, 0x00, 0x11}, raw[:12])

	out, err := readPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadPacket_Invalid(t *testing.T) {
	t.Run("bad_magic", func(t *testing.T) {
		frame := make([]byte, headerLen)
		frame[0] = 0x42
		_, err := readPacket(bytes.NewReader(frame))
		assert.ErrorContains(t, err, "magic")
	})

	t.Run("key_longer_than_body", func(t *testing.T) {
		frame := make([]byte, headerLen)
		frame[0] = magicResponse
		frame[3] = 10
		_, err := readPacket(bytes.NewReader(frame))
		assert.ErrorContains(t, err, "lengths")
	})

	t.Run("truncated_body", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePacket(&buf, &packet{Magic: magicResponse, Value: []byte("hello")}))
		_, err := readPacket(bytes.NewReader(buf.Bytes()[:headerLen+2]))
		assert.Error(t, err)
	})
}

func TestFeatures(t *testing.T) {
	features := []uint16{featureTCPNoDelay, featureXError, featureSelectBucket}
	assert.Equal(t, features, decodeFeatures(encodeFeatures(features)))
	assert.Empty(t, decodeFeatures([]byte{0x01}))
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Opcode: opSASLAuth, Status: StatusAuthError, Message: "Auth failure"}
	assert.True(t, IsAuthError(err))
	assert.Contains(t, err.Error(), "authentication error")
	assert.Contains(t, err.Error(), "Auth failure")

	assert.False(t, IsAuthError(&StatusError{Status: StatusNoBucket}))
	assert.False(t, IsAuthError(assert.AnError))
}

package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Memcached binary protocol framing
const (
	magicRequest  = 0x80
	magicResponse = 0x81
	headerLen     = 24

	// maxBodyLen bounds a single frame body
	maxBodyLen = 20 << 20
)

// Opcodes used during bootstrap
const (
	opNoop         = 0x0a
	opHello        = 0x1f
	opSASLAuth     = 0x21
	opSelectBucket = 0x89
)

// Response status codes
const (
	StatusSuccess        uint16 = 0x0000
	StatusKeyNotFound    uint16 = 0x0001
	StatusNoBucket       uint16 = 0x0008
	StatusAuthError      uint16 = 0x0020
	StatusAuthContinue   uint16 = 0x0021
	StatusAccessError    uint16 = 0x0024
	StatusUnknownCommand uint16 = 0x0081
)

// HELLO feature codes requested by the client
const (
	featureTCPNoDelay   uint16 = 0x03
	featureXError       uint16 = 0x07
	featureSelectBucket uint16 = 0x08
)

// packet is one memcached binary frame. Status holds the vbucket id for requests.
type packet struct {
	Magic    uint8
	Opcode   uint8
	Datatype uint8
	Status   uint16
	Opaque   uint32
	CAS      uint64
	Extras   []byte
	Key      []byte
	Value    []byte
}

func writePacket(w io.Writer, p *packet) error {
	bodyLen := len(p.Extras) + len(p.Key) + len(p.Value)
	if len(p.Key) > 0xFFFF || len(p.Extras) > 0xFF || bodyLen > maxBodyLen {
		return fmt.Errorf("memcached frame too large: key=%d extras=%d body=%d", len(p.Key), len(p.Extras), bodyLen)
	}

	buf := make([]byte, headerLen+bodyLen)
	buf[0] = p.Magic
	buf[1] = p.Opcode
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(p.Key)))
	buf[4] = uint8(len(p.Extras))
	buf[5] = p.Datatype
	binary.BigEndian.PutUint16(buf[6:8], p.Status)
	binary.BigEndian.PutUint32(buf[8:12], uint32(bodyLen))
	binary.BigEndian.PutUint32(buf[12:16], p.Opaque)
	binary.BigEndian.PutUint64(buf[16:24], p.CAS)

	n := headerLen
	n += copy(buf[n:], p.Extras)
	n += copy(buf[n:], p.Key)
	copy(buf[n:], p.Value)

	_, err := w.Write(buf)
	return err
}

func readPacket(r io.Reader) (*packet, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != magicRequest && header[0] != magicResponse {
		return nil, fmt.Errorf("invalid memcached magic 0x%02x", header[0])
	}

	keyLen := int(binary.BigEndian.Uint16(header[2:4]))
	extLen := int(header[4])
	bodyLen := int(binary.BigEndian.Uint32(header[8:12]))
	if bodyLen > maxBodyLen || keyLen+extLen > bodyLen {
		return nil, fmt.Errorf("invalid memcached frame lengths: key=%d extras=%d body=%d", keyLen, extLen, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	return &packet{
		Magic:    header[0],
		Opcode:   header[1],
		Datatype: header[5],
		Status:   binary.BigEndian.Uint16(header[6:8]),
		Opaque:   binary.BigEndian.Uint32(header[12:16]),
		CAS:      binary.BigEndian.Uint64(header[16:24]),
		Extras:   body[:extLen],
		Key:      body[extLen : extLen+keyLen],
		Value:    body[extLen+keyLen:],
	}, nil
}

// StatusError is a non-success response status
type StatusError struct {
	Opcode  uint8
	Status  uint16
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("memcached opcode 0x%02x: status 0x%04x (%s): %s", e.Opcode, e.Status, statusText(e.Status), e.Message)
	}
	return fmt.Sprintf("memcached opcode 0x%02x: status 0x%04x (%s)", e.Opcode, e.Status, statusText(e.Status))
}

// IsAuthError reports whether err is an authentication or authorization failure
func IsAuthError(err error) bool {
	se, ok := err.(*StatusError)
	if !ok {
		return false
	}
	return se.Status == StatusAuthError || se.Status == StatusAccessError
}

func statusText(status uint16) string {
	switch status {
	case StatusSuccess:
		return "success"
	case StatusKeyNotFound:
		return "key not found"
	case StatusNoBucket:
		return "no bucket"
	case StatusAuthError:
		return "authentication error"
	case StatusAuthContinue:
		return "authentication continue"
	case StatusAccessError:
		return "access denied"
	case StatusUnknownCommand:
		return "unknown command"
	default:
		return "unknown status"
	}
}

func encodeFeatures(features []uint16) []byte {
	out := make([]byte, 2*len(features))
	for i, f := range features {
		binary.BigEndian.PutUint16(out[2*i:], f)
	}
	return out
}

func decodeFeatures(b []byte) []uint16 {
	out := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		out = append(out, binary.BigEndian.Uint16(b[i:]))
	}
	return out
}

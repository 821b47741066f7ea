package transcoder

import (
	"fmt"

	"github.com/maxpert/pcbc/compress"
)

// Wire layout of the 32-bit flags field.
const (
	ValMask          uint32 = 0x1F
	CompressedBit    uint32 = 0x10 // shares the value-kind byte
	CompressionMask  uint32 = 0xE0
	CompressionShift        = 5
	CommonFormatMask uint32 = 0xFF000000
	CommonFormatShift       = 24
)

// Kind is the fine-grained value tag used under the PRIVATE and EMPTY formats.
type Kind uint8

const (
	KindString     Kind = 0
	KindLong       Kind = 1
	KindDouble     Kind = 2
	KindBool       Kind = 3
	KindSerialized Kind = 4
	KindIgbinary   Kind = 5
	KindJSON       Kind = 6
)

var kindNames = map[Kind]string{
	KindString:     "string",
	KindLong:       "long",
	KindDouble:     "double",
	KindBool:       "bool",
	KindSerialized: "serialized",
	KindIgbinary:   "igbinary",
	KindJSON:       "json",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Format is the common format tag stored in the top byte.
type Format uint8

const (
	FormatEmpty   Format = 0
	FormatPrivate Format = 1
	FormatJSON    Format = 2
	FormatRaw     Format = 3
	FormatString  Format = 4
)

var formatNames = map[Format]string{
	FormatEmpty:   "empty",
	FormatPrivate: "private",
	FormatJSON:    "json",
	FormatRaw:     "raw",
	FormatString:  "string",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Flags is the unpacked form of the wire flags. Compression is the method
// sub-field; Compressed is the marker bit that lives inside the value-kind byte.
// The decoder only decompresses when Compressed is set.
type Flags struct {
	Kind        Kind
	Format      Format
	Compression compress.Method
	Compressed  bool
}

// Pack returns the 32-bit wire representation.
func (f Flags) Pack() uint32 {
	v := uint32(f.Kind) & ValMask &^ CompressedBit
	if f.Compressed {
		v |= CompressedBit
	}
	v |= (uint32(f.Compression) << CompressionShift) & CompressionMask
	v |= uint32(f.Format) << CommonFormatShift
	return v
}

// UnpackFlags splits wire flags into their sub-fields. Bits 8-23 are not
// part of the layout and are dropped.
func UnpackFlags(v uint32) Flags {
	return Flags{
		Kind:        Kind(v & ValMask &^ CompressedBit),
		Format:      Format((v & CommonFormatMask) >> CommonFormatShift),
		Compression: compress.Method((v & CompressionMask) >> CompressionShift),
		Compressed:  v&CompressedBit != 0,
	}
}

func (f Flags) String() string {
	s := fmt.Sprintf("%s/%s", f.Format, f.Kind)
	if f.Compressed {
		s += "+" + f.Compression.String()
	}
	return s
}

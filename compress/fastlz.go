package compress

import (
	"fmt"
	"math"
)

// FastLZ level 1 block format:
//
//	literal run: 000LLLLL followed by L+1 bytes (1..32 literals)
//	short match: LLLDDDDD DDDDDDDD          (LLL in 1..6, length LLL+2)
//	long match:  111DDDDD LLLLLLLL DDDDDDDD (length 9+L)
//
// D is the back-reference distance minus one (13 bits). The top three bits of the
// first byte carry the level; a level 1 block always opens with a literal run, so
// they are zero.
const (
	fastlzMaxCopy     = 32
	fastlzMinMatch    = 3
	fastlzMaxMatch    = 264
	fastlzMaxDistance = 8191
	fastlzHashLog     = 13
	fastlzHashSize    = 1 << fastlzHashLog
	fastlzMinBound    = 66
)

func fastlzBound(n int) int {
	bound := int(math.Ceil(float64(n) * 1.05))
	if bound < fastlzMinBound {
		bound = fastlzMinBound
	}
	return bound
}

func fastlzHash(b []byte) uint32 {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	return (v * 2654435761) >> (32 - fastlzHashLog)
}

// fastlzCompress returns HeaderSize zero bytes followed by the compressed block.
func fastlzCompress(src []byte) []byte {
	out := make([]byte, HeaderSize, HeaderSize+fastlzBound(len(src))+1)
	n := len(src)
	if n == 0 {
		return out
	}

	var table [fastlzHashSize]int32
	anchor := 0
	ip := 0

	for ip+fastlzMinMatch <= n {
		h := fastlzHash(src[ip:])
		ref := int(table[h])
		table[h] = int32(ip)

		distance := ip - ref - 1
		if ref >= ip || distance > fastlzMaxDistance ||
			src[ref] != src[ip] || src[ref+1] != src[ip+1] || src[ref+2] != src[ip+2] {
			ip++
			continue
		}

		length := fastlzMinMatch
		for ip+length < n && length < fastlzMaxMatch && src[ref+length] == src[ip+length] {
			length++
		}

		out = fastlzLiterals(out, src[anchor:ip])
		out = fastlzMatch(out, length, distance)

		ip += length
		anchor = ip
	}

	return fastlzLiterals(out, src[anchor:])
}

func fastlzLiterals(out, lit []byte) []byte {
	for len(lit) > 0 {
		run := len(lit)
		if run > fastlzMaxCopy {
			run = fastlzMaxCopy
		}
		out = append(out, byte(run-1))
		out = append(out, lit[:run]...)
		lit = lit[run:]
	}
	return out
}

func fastlzMatch(out []byte, length, distance int) []byte {
	code := length - 2
	if code < 7 {
		return append(out, byte(code<<5|distance>>8), byte(distance))
	}
	return append(out, byte(7<<5|distance>>8), byte(code-7), byte(distance))
}

// fastlzDecompress decodes a level 1 block into dst and returns the bytes written.
func fastlzDecompress(src, dst []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	if level := src[0] >> 5; level != 0 {
		return 0, fmt.Errorf("%w: fastlz level %d not supported", ErrCorrupt, level+1)
	}

	ip, op := 1, 0
	ctrl := int(src[0] & 31)

	for {
		if ctrl >= 32 {
			length := (ctrl >> 5) - 1
			ref := op - (ctrl&31)<<8 - 1

			if length == 6 {
				if ip >= len(src) {
					return op, fmt.Errorf("%w: truncated match length", ErrCorrupt)
				}
				length += int(src[ip])
				ip++
			}
			if ip >= len(src) {
				return op, fmt.Errorf("%w: truncated match distance", ErrCorrupt)
			}
			ref -= int(src[ip])
			ip++
			length += 3

			if ref < 0 {
				return op, fmt.Errorf("%w: back reference before start of output", ErrCorrupt)
			}
			if op+length > len(dst) {
				return op, fmt.Errorf("%w: output overflow", ErrSizeMismatch)
			}
			// Byte-wise copy: the reference may overlap the bytes being written
			for i := 0; i < length; i++ {
				dst[op] = dst[ref]
				op++
				ref++
			}
		} else {
			run := ctrl + 1
			if ip+run > len(src) {
				return op, fmt.Errorf("%w: truncated literal run", ErrCorrupt)
			}
			if op+run > len(dst) {
				return op, fmt.Errorf("%w: output overflow", ErrSizeMismatch)
			}
			copy(dst[op:], src[ip:ip+run])
			op += run
			ip += run
		}

		if ip >= len(src) {
			break
		}
		ctrl = int(src[ip])
		ip++
	}

	return op, nil
}

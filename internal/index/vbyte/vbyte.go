// Package vbyte implements the variable-byte integer codec used by every
// on-disk structure in the index. Integers are written as little-endian 7-bit
// groups; the terminal byte carries the high bit. Floats and doubles are
// written as fixed-width big-endian IEEE-754 values.
package vbyte

import (
	"encoding/binary"
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// MaxLen is the longest encoding of a 64-bit value.
const MaxLen = 10

var (
	ErrTruncated = fmt.Errorf("%w: vbyte stream truncated", apperrors.ErrCorruptIndex)
	ErrOverflow  = fmt.Errorf("%w: vbyte value overflows 64 bits", apperrors.ErrCorruptIndex)
)

// AppendUint64 appends the vbyte encoding of v to dst.
func AppendUint64(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v&0x7f))
		v >>= 7
	}
	return append(dst, byte(v)|0x80)
}

// AppendInt64 encodes v by its two's-complement bit pattern, so negative
// values take the full ten bytes.
func AppendInt64(dst []byte, v int64) []byte {
	return AppendUint64(dst, uint64(v))
}

func AppendInt(dst []byte, v int) []byte {
	return AppendUint64(dst, uint64(int64(v)))
}

func AppendFloat32(dst []byte, f float32) []byte {
	return binary.BigEndian.AppendUint32(dst, math.Float32bits(f))
}

func AppendFloat64(dst []byte, f float64) []byte {
	return binary.BigEndian.AppendUint64(dst, math.Float64bits(f))
}

// AppendBytes writes a length-prefixed byte string.
func AppendBytes(dst []byte, b []byte) []byte {
	dst = AppendUint64(dst, uint64(len(b)))
	return append(dst, b...)
}

// Len returns the number of bytes AppendUint64 writes for v.
func Len(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Reader decodes values from an in-memory buffer. The zero value reads from
// an empty buffer.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Uint64 decodes one value.
func (r *Reader) Uint64() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < MaxLen; i++ {
		if r.pos >= len(r.buf) {
			return 0, ErrTruncated
		}
		b := r.buf[r.pos]
		r.pos++
		if i == MaxLen-1 && b&0x7f > 1 {
			return 0, ErrOverflow
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 != 0 {
			return v, nil
		}
		shift += 7
	}
	return 0, ErrOverflow
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

func (r *Reader) Int() (int, error) {
	v, err := r.Uint64()
	return int(int64(v)), err
}

func (r *Reader) Float32() (float32, error) {
	if len(r.buf)-r.pos < 4 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return math.Float32frombits(v), nil
}

func (r *Reader) Float64() (float64, error) {
	if len(r.buf)-r.pos < 8 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return math.Float64frombits(v), nil
}

// Bytes reads a length-prefixed byte string. The result aliases the buffer.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	if uint64(len(r.buf)-r.pos) < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// Skip advances n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || len(r.buf)-r.pos < n {
		return ErrTruncated
	}
	r.pos += n
	return nil
}

// Seek moves to an absolute offset within the buffer.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return ErrTruncated
	}
	r.pos = pos
	return nil
}

func (r *Reader) Pos() int { return r.pos }

func (r *Reader) Len() int { return len(r.buf) - r.pos }

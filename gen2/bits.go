// go-ex10
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-ex10.
//
// go-ex10 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-ex10 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ex10; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package gen2 encodes and decodes Gen2 (ISO/IEC 18000-63) tag commands as
// the bit streams the Ex10 transmits, and decodes tag replies delivered in
// Gen2Transaction event packets.
//
// Bit streams are most significant bit first: bit i of a stream is bit
// 7-i%8 of byte i/8.
package gen2

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// Bit codec errors
var (
	ErrValueTooWide = errors.New("gen2: value wider than field")
	ErrBitOverrun   = errors.New("gen2: bit offset past end of buffer")
	ErrFieldWidth   = errors.New("gen2: unsupported field width")
)

// BitSpan is a run of Len bits stored most significant bit first in Data.
type BitSpan struct {
	Data []byte
	Len  int
}

// SpanFromBytes returns a span covering every bit of b.
func SpanFromBytes(b []byte) BitSpan {
	return BitSpan{Data: b, Len: len(b) * 8}
}

// ByteLen returns the number of bytes needed to hold the span.
func (s BitSpan) ByteLen() int {
	return (s.Len + 7) / 8
}

// Bit returns bit i of the span.
func (s BitSpan) Bit(i int) bool {
	return s.Data[i/8]&(0x80>>(i%8)) != 0
}

// Equal compares the first Len bits of both spans.
func (s BitSpan) Equal(o BitSpan) bool {
	if s.Len != o.Len {
		return false
	}
	for i := 0; i < s.Len; i++ {
		if s.Bit(i) != o.Bit(i) {
			return false
		}
	}
	return true
}

// Bytes returns a copy of the span's storage trimmed to ByteLen, with any
// bits past Len cleared.
func (s BitSpan) Bytes() []byte {
	out := make([]byte, s.ByteLen())
	copy(out, s.Data)
	if r := s.Len % 8; r != 0 {
		out[len(out)-1] &= byte(0xFF << (8 - r))
	}
	return out
}

func (s BitSpan) String() string {
	return fmt.Sprintf("%d bits % X", s.Len, s.Bytes())
}

// BitPack writes the low n bits of v into buf at bit offset off, most
// significant bit first, and returns the offset after the field.
func BitPack[T constraints.Unsigned](buf []byte, off int, v T, n int) (int, error) {
	if n < 0 || n > 64 {
		return off, ErrFieldWidth
	}
	if n < 64 && uint64(v)>>n != 0 {
		return off, fmt.Errorf("%w: %d does not fit %d bits", ErrValueTooWide, uint64(v), n)
	}
	if off < 0 || off+n > len(buf)*8 {
		return off, ErrBitOverrun
	}
	u := uint64(v)
	for i := n - 1; i >= 0; i-- {
		mask := byte(0x80 >> (off % 8))
		if u>>i&1 != 0 {
			buf[off/8] |= mask
		} else {
			buf[off/8] &^= mask
		}
		off++
	}
	return off, nil
}

// BitUnpack reads n bits from buf at bit offset off.
func BitUnpack[T constraints.Unsigned](buf []byte, off, n int) (T, int, error) {
	var zero T
	if n < 0 || n > 64 {
		return zero, off, ErrFieldWidth
	}
	if off < 0 || off+n > len(buf)*8 {
		return zero, off, ErrBitOverrun
	}
	var u uint64
	for i := 0; i < n; i++ {
		u <<= 1
		if buf[off/8]&(0x80>>(off%8)) != 0 {
			u |= 1
		}
		off++
	}
	return T(u), off, nil
}

// Writer appends fields to a bit stream.
type Writer struct {
	buf []byte
	n   int
}

// NewWriter returns a writer whose zeroed buffer holds exactly bits bits.
func NewWriter(bits int) *Writer {
	return &Writer{buf: make([]byte, (bits+7)/8)}
}

// Len returns the number of bits written.
func (w *Writer) Len() int {
	return w.n
}

// Span returns the bits written so far.
func (w *Writer) Span() BitSpan {
	return BitSpan{Data: w.buf[:(w.n+7)/8], Len: w.n}
}

// Pack appends the low n bits of v.
func (w *Writer) Pack(v uint64, n int) error {
	off, err := BitPack(w.buf, w.n, v, n)
	if err != nil {
		return err
	}
	w.n = off
	return nil
}

// PackBool appends one bit.
func (w *Writer) PackBool(b bool) error {
	if b {
		return w.Pack(1, 1)
	}
	return w.Pack(0, 1)
}

// PackMSB appends the top n bits of b, n < 8.
func (w *Writer) PackMSB(b byte, n int) error {
	if n < 0 || n >= 8 {
		return ErrFieldWidth
	}
	return w.Pack(uint64(b>>(8-n)), n)
}

// PackSpan appends every bit of s: whole bytes first, then the remainder
// from the top of the last byte.
func (w *Writer) PackSpan(s BitSpan) error {
	if s.Len > len(s.Data)*8 {
		return ErrBitOverrun
	}
	whole := s.Len / 8
	for i := 0; i < whole; i++ {
		if err := w.Pack(uint64(s.Data[i]), 8); err != nil {
			return err
		}
	}
	if r := s.Len % 8; r != 0 {
		return w.PackMSB(s.Data[whole], r)
	}
	return nil
}

// Reader consumes fields from a bit stream.
type Reader struct {
	span BitSpan
	pos  int
}

// NewReader returns a reader over the first s.Len bits of s.
func NewReader(s BitSpan) *Reader {
	return &Reader{span: s}
}

// Pos returns the number of bits consumed.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of bits left.
func (r *Reader) Remaining() int {
	return r.span.Len - r.pos
}

// Unpack reads n bits.
func (r *Reader) Unpack(n int) (uint64, error) {
	if n > r.Remaining() {
		return 0, ErrBitOverrun
	}
	v, off, err := BitUnpack[uint64](r.span.Data, r.pos, n)
	if err != nil {
		return 0, err
	}
	r.pos = off
	return v, nil
}

// UnpackBool reads one bit.
func (r *Reader) UnpackBool() (bool, error) {
	v, err := r.Unpack(1)
	return v == 1, err
}

// UnpackSpan reads n bits into a freshly allocated span.
func (r *Reader) UnpackSpan(n int) (BitSpan, error) {
	if n < 0 || n > r.Remaining() {
		return BitSpan{}, ErrBitOverrun
	}
	w := NewWriter(n)
	for left := n; left > 0; {
		k := min(left, 8)
		v, err := r.Unpack(k)
		if err != nil {
			return BitSpan{}, err
		}
		if err := w.Pack(v, k); err != nil {
			return BitSpan{}, err
		}
		left -= k
	}
	return w.Span(), nil
}

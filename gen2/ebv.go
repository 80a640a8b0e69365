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

package gen2

import (
	"errors"
	"fmt"
)

// Largest values of the EBV fields used by the commands here.
const (
	EBV81Max = 0x7F
	EBV82Max = 0x3FFF
	EBV83Max = 0x1FFFFF
)

// EBV errors
var (
	ErrEBVOverflow  = errors.New("gen2: value exceeds EBV field maximum")
	ErrEBVMalformed = errors.New("gen2: malformed EBV")
)

const (
	ebvMaxBytes     = 3
	ebvContinuation = 0x80
)

// EBVLen returns the number of bytes EncodeEBV uses for v.
func EBVLen(v uint32) int {
	n := 1
	for v > 0x7F {
		v >>= 7
		n++
	}
	return n
}

// EBVBitLen returns the encoded length of v in bits.
func EBVBitLen(v uint32) int {
	return EBVLen(v) * 8
}

// EncodeEBV encodes v in as few 7-bit groups as possible, most significant
// group first, with the continuation bit set on every byte but the last.
func EncodeEBV(v, maxValue uint32) ([]byte, error) {
	if v > maxValue {
		return nil, fmt.Errorf("%w: 0x%X > 0x%X", ErrEBVOverflow, v, maxValue)
	}
	n := EBVLen(v)
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v & 0x7F)
		if i != n-1 {
			out[i] |= ebvContinuation
		}
		v >>= 7
	}
	return out, nil
}

// DecodeEBV decodes an EBV from the front of b and returns the value and
// the number of bytes consumed.
func DecodeEBV(b []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < len(b) && i < ebvMaxBytes; i++ {
		v = v<<7 | uint32(b[i]&0x7F)
		if b[i]&ebvContinuation == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrEBVMalformed
}

// PackEBV appends v as an EBV, rejecting values over maxValue.
func (w *Writer) PackEBV(v, maxValue uint32) error {
	b, err := EncodeEBV(v, maxValue)
	if err != nil {
		return err
	}
	for _, x := range b {
		if err := w.Pack(uint64(x), 8); err != nil {
			return err
		}
	}
	return nil
}

// UnpackEBV reads one EBV from the stream.
func (r *Reader) UnpackEBV() (uint32, error) {
	var v uint32
	for i := 0; i < ebvMaxBytes; i++ {
		x, err := r.Unpack(8)
		if err != nil {
			return 0, err
		}
		v = v<<7 | uint32(x&0x7F)
		if x&ebvContinuation == 0 {
			return v, nil
		}
	}
	return 0, ErrEBVMalformed
}

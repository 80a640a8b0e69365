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

package frame

import (
	"encoding/binary"
	"errors"
)

// ErrShortSegment is returned when a buffer is too small for a segment
// header.
var ErrShortSegment = errors.New("frame: short segment header")

// Segment is the address/length header used by Read and Write transactions.
type Segment struct {
	Address uint16
	Length  uint16
}

// AppendSegment appends the little-endian header for s to dst.
func AppendSegment(dst []byte, s Segment) []byte {
	return binary.LittleEndian.AppendUint16(
		binary.LittleEndian.AppendUint16(dst, s.Address), s.Length)
}

// ParseSegment decodes a header from the front of b.
func ParseSegment(b []byte) (Segment, error) {
	if len(b) < SegmentHeaderSize {
		return Segment{}, ErrShortSegment
	}
	return Segment{
		Address: binary.LittleEndian.Uint16(b[0:2]),
		Length:  binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}

// PadTo4 returns the number of zero bytes needed to align n to 4.
func PadTo4(n int) int {
	return (4 - n%4) % 4
}

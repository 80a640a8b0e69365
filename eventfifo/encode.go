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

package eventfifo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxPacketSize is the largest packet the one-byte word count can describe.
const MaxPacketSize = 0xFF * 4

// ErrPacketTooLarge is returned when a built packet would not fit its
// length byte.
var ErrPacketTooLarge = errors.New("eventfifo: packet too large")

// Build assembles a wire packet. static is one of the static structs of
// this package (value or pointer) or nil for types without one; dynamic is
// appended after it and the result zero padded to a word boundary.
func Build(t PacketType, usCounter uint32, static any, dynamic []byte) ([]byte, error) {
	var sb bytes.Buffer
	if static != nil {
		if err := binary.Write(&sb, binary.LittleEndian, static); err != nil {
			return nil, fmt.Errorf("eventfifo: encode %s static: %w", t, err)
		}
	}
	if sb.Len() > 0xFF {
		return nil, ErrPacketTooLarge
	}

	size := HeaderSize + sb.Len() + len(dynamic)
	size += (4 - size%4) % 4
	if size > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}

	out := make([]byte, size)
	out[0] = byte(size / 4)
	out[1] = byte(t)
	out[2] = byte(sb.Len())
	binary.LittleEndian.PutUint32(out[4:8], usCounter)
	copy(out[HeaderSize:], sb.Bytes())
	copy(out[HeaderSize+sb.Len():], dynamic)
	return out, nil
}

// MustBuild is Build for fixed inputs known to be valid.
func MustBuild(t PacketType, usCounter uint32, static any, dynamic []byte) []byte {
	b, err := Build(t, usCounter, static, dynamic)
	if err != nil {
		panic(err)
	}
	return b
}

// EmptyPacket returns a header-only Debug packet, used as a marker.
func EmptyPacket() []byte {
	return MustBuild(TypeDebug, 0, nil, nil)
}

// CustomPacket wraps an opaque host payload.
func CustomPacket(payload []byte) ([]byte, error) {
	return Build(TypeCustom, 0, Custom{PayloadLen: uint32(len(payload))}, payload)
}

// Bytes returns a copy of the packet's wire bytes.
func (p Packet) Bytes() []byte {
	return append([]byte(nil), p.Raw...)
}

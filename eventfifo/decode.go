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
	"encoding/binary"
	"errors"
)

// Decode errors
var (
	ErrInvalidPacket = errors.New("eventfifo: invalid packet")
	ErrNoStatic      = errors.New("eventfifo: packet type has no static region")
	ErrWrongType     = errors.New("eventfifo: wrong packet type")
	ErrShortDynamic  = errors.New("eventfifo: dynamic region too short")
)

// Decoder walks a buffer of back-to-back packets.
type Decoder struct {
	buf  []byte
	pos  int
	done bool
}

// NewDecoder returns a decoder over buf. buf is not copied.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Offset returns the byte offset of the next packet.
func (d *Decoder) Offset() int {
	return d.pos
}

// Next returns the next packet. It returns false at the end of the
// buffer, at zero padding, and after a packet that overruns the buffer;
// that last packet is returned with Valid unset.
func (d *Decoder) Next() (Packet, bool) {
	if d.done || len(d.buf)-d.pos < 4 {
		d.done = true
		return Packet{}, false
	}
	b := d.buf[d.pos:]
	words := int(b[0])
	if words == 0 {
		d.done = true
		return Packet{}, false
	}

	size := words * 4
	if size < HeaderSize || size > len(b) {
		d.done = true
		return Packet{Raw: b, Type: PacketType(b[1])}, true
	}

	p := decodeOne(b[:size])
	d.pos += size
	return p, true
}

func decodeOne(raw []byte) Packet {
	p := Packet{
		Raw:  raw,
		Type: PacketType(raw[1]),
		Time: binary.LittleEndian.Uint32(raw[4:8]),
	}
	staticLen := int(raw[2])
	if HeaderSize+staticLen > len(raw) {
		return p
	}
	p.Static = raw[HeaderSize : HeaderSize+staticLen]
	p.Dynamic = raw[HeaderSize+staticLen:]

	want, known := p.Type.StaticSize()
	p.Valid = known && want == staticLen
	return p
}

// Decode returns every packet in buf, in order, including invalid ones.
func Decode(buf []byte) []Packet {
	var out []Packet
	d := NewDecoder(buf)
	for {
		p, ok := d.Next()
		if !ok {
			return out
		}
		out = append(out, p)
	}
}

// TagReadData is a TagRead dynamic region split into its parts.
type TagReadData struct {
	PC  uint16
	EPC []byte
	CRC []byte
	TID []byte
}

// TagReadFields splits the PC word, EPC, stored CRC and any TID out of a
// TagRead packet. The EPC length comes from the PC word. TID runs to the
// end of the packet and may carry up to one word of zero padding.
func TagReadFields(p Packet) (TagReadData, error) {
	tr, err := p.TagRead()
	if err != nil {
		return TagReadData{}, err
	}
	dyn := p.Dynamic
	if len(dyn) < 2 {
		return TagReadData{}, ErrShortDynamic
	}
	pc := binary.BigEndian.Uint16(dyn[0:2])
	epcLen := int(pc>>11) * 2
	if len(dyn) < 2+epcLen+2 {
		return TagReadData{}, ErrShortDynamic
	}
	out := TagReadData{
		PC:  pc,
		EPC: dyn[2 : 2+epcLen],
		CRC: dyn[2+epcLen : 4+epcLen],
	}
	if tr.Type == TagReadEpcWithTid || tr.Type == TagReadEpcWithFastIDTid {
		off := int(tr.TidOffset)
		if off < 4+epcLen || off > len(dyn) {
			return TagReadData{}, ErrShortDynamic
		}
		out.TID = dyn[off:]
	}
	return out, nil
}

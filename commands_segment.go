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

package ex10

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ZaparooProject/go-ex10/internal/frame"
	"github.com/ZaparooProject/go-ex10/registers"
)

// ReadSegment asks for len(Data) bytes starting at Address.
type ReadSegment struct {
	Data    []byte
	Address uint16
}

// WriteSegment writes Data starting at Address.
type WriteSegment struct {
	Data    []byte
	Address uint16
}

// ReadSegmentFor returns a segment covering all of r, with its own buffer.
func ReadSegmentFor(r registers.Info) ReadSegment {
	return ReadSegment{Address: r.Address, Data: make([]byte, r.Size())}
}

const maxSegmentLength = 0xFFFF

func validateSegment(addr uint16, data []byte) error {
	if len(data) == 0 {
		return HostErrNullData
	}
	if int(addr)+len(data) > frame.MaxAddress {
		return HostErrOverMaxDeviceAddress
	}
	return nil
}

// piece maps a span of one transaction's response back to its segment.
type piece struct {
	seg int
	off int
	n   int
}

// Read fills every segment's Data from the device, batching segments into
// as few transactions as the burst size permits. A segment may be split
// across transactions.
func (c *Commands) Read(ctx context.Context, segs []ReadSegment) error {
	if len(segs) == 0 {
		return HostErrBadNumSpans
	}
	for _, s := range segs {
		if err := validateSegment(s.Address, s.Data); err != nil {
			return err
		}
	}
	defer c.acquire()()

	burst := c.burst()
	cmdBuf := frame.GetBuffer()
	defer frame.PutBuffer(cmdBuf)
	resp := make([]byte, burst+frame.StatusSize)

	cmd := append((*cmdBuf)[:0], frame.OpRead)
	var pieces []piece
	respLen := 0

	flush := func() error {
		n, err := c.t.exchange(ctx, cmd, resp[:frame.StatusSize+respLen], c.timeout)
		if err != nil {
			return fmt.Errorf("Read: %w", err)
		}
		if err := checkStatus("Read", resp[:n], respLen); err != nil {
			return err
		}
		pos := frame.StatusSize
		for _, p := range pieces {
			copy(segs[p.seg].Data[p.off:p.off+p.n], resp[pos:pos+p.n])
			pos += p.n
		}
		cmd = cmd[:1]
		pieces = pieces[:0]
		respLen = 0
		return nil
	}

	for si, s := range segs {
		for off := 0; off < len(s.Data); {
			if len(cmd)+frame.SegmentHeaderSize > burst || respLen >= burst {
				if len(pieces) == 0 {
					return HostErrBadCommandedLength
				}
				if err := flush(); err != nil {
					return err
				}
			}
			n := min(len(s.Data)-off, burst-respLen, maxSegmentLength)
			cmd = frame.AppendSegment(cmd, frame.Segment{Address: s.Address + uint16(off), Length: uint16(n)})
			pieces = append(pieces, piece{seg: si, off: off, n: n})
			respLen += n
			off += n
		}
	}
	if len(pieces) > 0 {
		return flush()
	}
	return nil
}

// Write stores every segment, batching segments into as few transactions
// as the burst size permits. Each transaction is acknowledged by one
// status byte.
func (c *Commands) Write(ctx context.Context, segs []WriteSegment) error {
	if len(segs) == 0 {
		return HostErrBadNumSpans
	}
	for _, s := range segs {
		if err := validateSegment(s.Address, s.Data); err != nil {
			return err
		}
	}
	defer c.acquire()()

	burst := c.burst()
	cmdBuf := frame.GetBuffer()
	defer frame.PutBuffer(cmdBuf)
	cmd := append((*cmdBuf)[:0], frame.OpWrite)

	flush := func() error {
		if err := c.simple(ctx, "Write", cmd); err != nil {
			return err
		}
		cmd = cmd[:1]
		return nil
	}

	for _, s := range segs {
		for off := 0; off < len(s.Data); {
			if len(cmd)+frame.SegmentHeaderSize >= burst {
				if len(cmd) == 1 {
					return HostErrBadCommandedLength
				}
				if err := flush(); err != nil {
					return err
				}
			}
			room := burst - len(cmd) - frame.SegmentHeaderSize
			n := min(len(s.Data)-off, room, maxSegmentLength)
			cmd = frame.AppendSegment(cmd, frame.Segment{Address: s.Address + uint16(off), Length: uint16(n)})
			cmd = append(cmd, s.Data[off:off+n]...)
			off += n
		}
	}
	if len(cmd) > 1 {
		return flush()
	}
	return nil
}

func check32(addr uint32, n int) error {
	if addr%4 != 0 || n%4 != 0 {
		return HostErr32BitAlignment
	}
	return nil
}

// TestRead reads len(dst) bytes from a 32-bit device address. Address and
// length must be word aligned.
func (c *Commands) TestRead(ctx context.Context, addr uint32, dst []byte) error {
	if len(dst) == 0 {
		return HostErrNullData
	}
	if err := check32(addr, len(dst)); err != nil {
		return err
	}
	if frame.StatusSize+len(dst) > c.burst()+frame.StatusSize {
		return HostErrBadCommandedLength
	}
	defer c.acquire()()

	cmd := make([]byte, 7)
	cmd[0] = frame.OpTestRead
	binary.LittleEndian.PutUint32(cmd[1:5], addr)
	binary.LittleEndian.PutUint16(cmd[5:7], uint16(len(dst)/4))

	resp := make([]byte, frame.StatusSize+len(dst))
	n, err := c.t.exchange(ctx, cmd, resp, c.timeout)
	if err != nil {
		return fmt.Errorf("TestRead: %w", err)
	}
	if err := checkStatus("TestRead", resp[:n], len(dst)); err != nil {
		return err
	}
	copy(dst, resp[frame.StatusSize:n])
	return nil
}

// TestWrite writes word-aligned data to a 32-bit device address. Only
// addresses inside the register space are reachable.
func (c *Commands) TestWrite(ctx context.Context, addr uint32, data []byte) error {
	if len(data) == 0 {
		return HostErrNullData
	}
	if err := check32(addr, len(data)); err != nil {
		return err
	}
	if uint64(addr)+uint64(len(data)) > frame.MaxAddress {
		return HostErrOverMaxDeviceAddress
	}
	return c.Write(ctx, []WriteSegment{{Address: uint16(addr), Data: data}})
}

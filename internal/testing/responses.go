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

package testing

import (
	"encoding/binary"

	"github.com/ZaparooProject/go-ex10/internal/frame"
	"github.com/ZaparooProject/go-ex10/registers"
)

// BuildStatusResponse creates a lone status byte response
func BuildStatusResponse(code byte) []byte {
	return []byte{code}
}

// BuildReadResponse creates a successful Read response carrying each
// segment's bytes in order
func BuildReadResponse(segments ...[]byte) []byte {
	resp := []byte{StatusSuccess}
	for _, s := range segments {
		resp = append(resp, s...)
	}
	return resp
}

// BuildOpsStatus creates an OpsStatus register value
func BuildOpsStatus(op registers.OpID, busy bool, opErr registers.OpError) []byte {
	return registers.OpsStatusFields{OpID: op, Busy: busy, Error: opErr}.Bytes()
}

// BuildStatusRegister creates a Status register value
func BuildStatusRegister(loc registers.RunningLocation) []byte {
	b := make([]byte, registers.Status.Length)
	b[0] = byte(loc)
	return b
}

// BuildReadCommand creates the Read transaction for regs
func BuildReadCommand(regs ...registers.Info) []byte {
	cmd := []byte{frame.OpRead}
	for _, r := range regs {
		cmd = frame.AppendSegment(cmd, frame.Segment{Address: r.Address, Length: uint16(r.Size())})
	}
	return cmd
}

// BuildWriteCommand creates the Write transaction storing data at r
func BuildWriteCommand(r registers.Info, data []byte) []byte {
	cmd := []byte{frame.OpWrite}
	cmd = frame.AppendSegment(cmd, frame.Segment{Address: r.Address, Length: uint16(len(data))})
	return append(cmd, data...)
}

// ReadTargets decodes the segments a Read transaction asks for. It
// returns nil for anything else.
func ReadTargets(cmd []byte) []frame.Segment {
	if len(cmd) == 0 || cmd[0] != frame.OpRead {
		return nil
	}
	var segs []frame.Segment
	for p := cmd[1:]; len(p) >= frame.SegmentHeaderSize; p = p[frame.SegmentHeaderSize:] {
		segs = append(segs, frame.Segment{
			Address: binary.LittleEndian.Uint16(p),
			Length:  binary.LittleEndian.Uint16(p[2:]),
		})
	}
	return segs
}

// TestImage returns a deterministic firmware image of n bytes.
func TestImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i*7 + i>>8)
	}
	return img
}

// Sample identities served by NewVirtualEx10.
const (
	TestVersionString = "Impinj Ex10 virtual 1.0.0"
)

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
)

// ReadFifo drains len(dst) bytes from fifo sel into dst. The length must be
// a multiple of 4. Each chunk's status byte is kept out of dst so the
// payload always lands on a 4-byte boundary relative to dst.
//
// On any failure nothing read so far is reported: the returned count is 0.
func (c *Commands) ReadFifo(ctx context.Context, sel byte, dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if len(dst)%4 != 0 {
		return 0, HostErr32BitAlignment
	}
	defer c.acquire()()

	chunkMax := (c.burst() - frame.StatusSize) &^ 3
	if chunkMax <= 0 {
		return 0, HostErrBadCommandedLength
	}
	scratch := frame.GetBuffer()
	defer frame.PutBuffer(scratch)
	resp := append((*scratch)[:0], make([]byte, chunkMax+frame.StatusSize)...)

	var cmd [4]byte
	cmd[0] = frame.OpReadFifo
	cmd[1] = sel
	for off := 0; off < len(dst); {
		chunk := min(len(dst)-off, chunkMax)
		binary.LittleEndian.PutUint16(cmd[2:4], uint16(chunk))

		n, err := c.t.exchange(ctx, cmd[:], resp[:frame.StatusSize+chunk], c.timeout)
		if err != nil {
			return 0, fmt.Errorf("ReadFifo: %w", err)
		}
		if err := checkStatus("ReadFifo", resp[:n], chunk); err != nil {
			return 0, err
		}
		copy(dst[off:off+chunk], resp[frame.StatusSize:n])
		off += chunk
	}
	return len(dst), nil
}

// InsertFifoEvent asks the device to push packet into its event fifo and,
// when trigger is set, raise an interrupt. A nil packet only raises the
// interrupt. The packet is zero padded to a word boundary and its leading
// length byte rewritten in words.
func (c *Commands) InsertFifoEvent(ctx context.Context, trigger bool, packet []byte) error {
	irq := byte(0)
	if trigger {
		irq = 1
	}
	cmd := []byte{frame.OpInsertFifoEvent, irq}
	if packet != nil {
		if len(packet) == 0 {
			return HostErrNullData
		}
		padded := len(packet) + frame.PadTo4(len(packet))
		if len(cmd)+padded > c.burst() || padded/4 > 0xFF {
			return HostErrBadCommandedLength
		}
		start := len(cmd)
		cmd = append(cmd, packet...)
		cmd = append(cmd, make([]byte, padded-len(packet))...)
		cmd[start] = byte(padded / 4)
	}
	defer c.acquire()()
	return c.simple(ctx, "InsertFifoEvent", cmd)
}

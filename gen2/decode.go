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

// ErrUnknownOpcode is returned by Decode for streams whose opcode is not one
// of the supported commands.
var ErrUnknownOpcode = errors.New("gen2: unknown opcode")

// Decode parses a transmit bit stream back into its command. Kill always
// decodes as the first phase since both phases share an encoding.
func Decode(s BitSpan) (Command, error) {
	if s.Len < selectOpBits || s.ByteLen() > len(s.Data) {
		return nil, fmt.Errorf("%w: %d bit stream", ErrBitOverrun, s.Len)
	}
	r := NewReader(s)
	u := &unpacker{r: r}
	if s.Data[0]>>4 == OpSelect {
		return decodeSelect(u)
	}

	op := u.unpack(opBits)
	if u.err != nil {
		return nil, u.err
	}
	var cmd Command
	switch op {
	case OpRead:
		c := Read{}
		c.MemoryBank = MemoryBank(u.unpack(2))
		c.WordPointer = u.ebv()
		c.WordCount = uint8(u.unpack(8))
		cmd = c
	case OpWrite:
		c := Write{}
		c.MemoryBank = MemoryBank(u.unpack(2))
		c.WordPointer = u.ebv()
		c.Data = uint16(u.unpack(16))
		cmd = c
	case OpKill:
		c := Kill{Password: uint16(u.unpack(16))}
		u.unpack(3)
		cmd = c
	case OpLock:
		var mask, action [10]bool
		for i := range mask {
			mask[i] = u.flag()
		}
		for i := range action {
			action[i] = u.flag()
		}
		cmd = Lock{Mask: lockBitsFrom(mask), Action: lockBitsFrom(action)}
	case OpAccess:
		cmd = Access{Password: uint16(u.unpack(16))}
	case OpBlockWrite:
		c := BlockWrite{}
		c.MemoryBank = MemoryBank(u.unpack(2))
		c.WordPointer = u.ebv()
		c.WordCount = uint8(u.unpack(8))
		c.Data = u.rest()
		cmd = c
	case OpBlockPermalock:
		c := BlockPermalock{}
		u.unpack(8)
		c.ReadLock = ReadLock(u.unpack(1))
		c.MemoryBank = MemoryBank(u.unpack(2))
		c.BlockPointer = u.ebv()
		c.BlockRange = uint8(u.unpack(8))
		c.Mask = u.rest()
		cmd = c
	case OpAuthenticate:
		c := Authenticate{}
		u.unpack(2)
		c.SendRep = u.flag()
		c.IncRepLen = u.flag()
		c.CSI = uint8(u.unpack(8))
		c.Length = uint16(u.unpack(authLengthBits))
		c.Message = u.rest()
		cmd = c
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, op)
	}
	if u.err != nil {
		return nil, fmt.Errorf("gen2: decode %s: %w", cmd.Kind(), u.err)
	}
	return cmd, nil
}

func decodeSelect(u *unpacker) (Command, error) {
	c := Select{}
	u.unpack(selectOpBits)
	c.Target = SelectTarget(u.unpack(3))
	c.Action = SelectAction(u.unpack(3))
	c.MemoryBank = SelectMemoryBank(u.unpack(2))
	c.BitPointer = u.ebv()
	c.BitCount = uint8(u.unpack(8))
	if u.err == nil {
		c.Mask = u.span(u.r.Remaining() - 1)
	}
	c.Truncate = u.flag()
	if u.err != nil {
		return nil, fmt.Errorf("gen2: decode Select: %w", u.err)
	}
	return c, nil
}

type unpacker struct {
	r   *Reader
	err error
}

func (u *unpacker) unpack(n int) uint64 {
	if u.err != nil {
		return 0
	}
	v, err := u.r.Unpack(n)
	u.err = err
	return v
}

func (u *unpacker) flag() bool {
	return u.unpack(1) == 1
}

func (u *unpacker) ebv() uint32 {
	if u.err != nil {
		return 0
	}
	v, err := u.r.UnpackEBV()
	u.err = err
	return v
}

func (u *unpacker) span(n int) BitSpan {
	if u.err != nil {
		return BitSpan{}
	}
	s, err := u.r.UnpackSpan(n)
	u.err = err
	return s
}

func (u *unpacker) rest() BitSpan {
	if u.err != nil {
		return BitSpan{}
	}
	return u.span(u.r.Remaining())
}

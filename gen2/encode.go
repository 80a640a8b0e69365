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

// Encode errors
var (
	ErrInvalidArgument = errors.New("gen2: invalid command argument")
	ErrUnknownCommand  = errors.New("gen2: unknown command")
)

const (
	selectOpBits    = 4
	opBits          = 8
	authLengthBits  = 12
	maxAuthLength   = 1<<authLengthBits - 1
	lockPayloadBits = 20
)

// BitLength returns the encoded length of cmd in bits.
func BitLength(cmd Command) (int, error) {
	switch c := cmd.(type) {
	case Select:
		return selectOpBits + 3 + 3 + 2 + EBVBitLen(c.BitPointer) + 8 + c.Mask.Len + 1, nil
	case Read:
		return opBits + 2 + EBVBitLen(c.WordPointer) + 8, nil
	case Write:
		return opBits + 2 + EBVBitLen(c.WordPointer) + 16, nil
	case Kill:
		return opBits + 16 + 3, nil
	case Lock:
		return opBits + lockPayloadBits, nil
	case Access:
		return opBits + 16, nil
	case BlockWrite:
		return opBits + 2 + EBVBitLen(c.WordPointer) + 8 + c.Data.Len, nil
	case BlockPermalock:
		return opBits + 8 + 1 + 2 + EBVBitLen(c.BlockPointer) + 8 + c.Mask.Len, nil
	case Authenticate:
		return opBits + 2 + 1 + 1 + 8 + authLengthBits + c.Message.Len, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

func validate(cmd Command) error {
	switch c := cmd.(type) {
	case Select:
		if c.Target > TargetSL || c.Action > Action111 || c.MemoryBank > SelectFile0 {
			return fmt.Errorf("%w: select field out of range", ErrInvalidArgument)
		}
		if c.BitPointer > EBV82Max {
			return fmt.Errorf("%w: select pointer 0x%X", ErrInvalidArgument, c.BitPointer)
		}
		if c.Mask.Len != int(c.BitCount) || c.Mask.ByteLen() > len(c.Mask.Data) {
			return fmt.Errorf("%w: select mask is %d bits, length %d",
				ErrInvalidArgument, c.Mask.Len, c.BitCount)
		}
	case Read:
		return checkBankPointer(c.MemoryBank, c.WordPointer)
	case Write:
		return checkBankPointer(c.MemoryBank, c.WordPointer)
	case BlockWrite:
		if err := checkBankPointer(c.MemoryBank, c.WordPointer); err != nil {
			return err
		}
		if c.Data.Len != 16*int(c.WordCount) || c.Data.ByteLen() > len(c.Data.Data) {
			return fmt.Errorf("%w: block write data is %d bits for %d words",
				ErrInvalidArgument, c.Data.Len, c.WordCount)
		}
	case BlockPermalock:
		if c.MemoryBank > BankUser || c.ReadLock > ReadLockPermalock {
			return fmt.Errorf("%w: block permalock field out of range", ErrInvalidArgument)
		}
		if c.BlockPointer > EBV81Max {
			return fmt.Errorf("%w: block pointer 0x%X", ErrInvalidArgument, c.BlockPointer)
		}
		want := 0
		if c.ReadLock == ReadLockPermalock {
			want = 16 * int(c.BlockRange)
		}
		if c.Mask.Len != want || c.Mask.ByteLen() > len(c.Mask.Data) {
			return fmt.Errorf("%w: permalock mask is %d bits, want %d",
				ErrInvalidArgument, c.Mask.Len, want)
		}
	case Authenticate:
		if c.Length > maxAuthLength || int(c.Length) != c.Message.Len ||
			c.Message.ByteLen() > len(c.Message.Data) {
			return fmt.Errorf("%w: authenticate length %d, message %d bits",
				ErrInvalidArgument, c.Length, c.Message.Len)
		}
	}
	return nil
}

func checkBankPointer(bank MemoryBank, ptr uint32) error {
	if bank > BankUser {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, bank)
	}
	if ptr > EBV83Max {
		return fmt.Errorf("%w: word pointer 0x%X", ErrInvalidArgument, ptr)
	}
	return nil
}

// Encode returns the transmit bit stream for cmd. Invalid arguments are
// reported as errors. If the stream written does not match the computed
// length the result is an empty span and a nil error; callers treat a zero
// length as an encode failure.
func Encode(cmd Command) (BitSpan, error) {
	if err := validate(cmd); err != nil {
		return BitSpan{}, err
	}
	bits, err := BitLength(cmd)
	if err != nil {
		return BitSpan{}, err
	}
	w := NewWriter(bits)
	if err := encodeInto(w, cmd); err != nil {
		return BitSpan{}, err
	}
	if w.Len() != bits {
		return BitSpan{}, nil
	}
	return w.Span(), nil
}

func encodeInto(w *Writer, cmd Command) error {
	p := &packer{w: w}
	switch c := cmd.(type) {
	case Select:
		p.pack(OpSelect, selectOpBits)
		p.pack(uint64(c.Target), 3)
		p.pack(uint64(c.Action), 3)
		p.pack(uint64(c.MemoryBank), 2)
		p.ebv(c.BitPointer, EBV82Max)
		p.pack(uint64(c.BitCount), 8)
		p.span(c.Mask)
		p.flag(c.Truncate)
	case Read:
		p.pack(OpRead, opBits)
		p.pack(uint64(c.MemoryBank), 2)
		p.ebv(c.WordPointer, EBV83Max)
		p.pack(uint64(c.WordCount), 8)
	case Write:
		p.pack(OpWrite, opBits)
		p.pack(uint64(c.MemoryBank), 2)
		p.ebv(c.WordPointer, EBV83Max)
		p.pack(uint64(c.Data), 16)
	case Kill:
		p.pack(OpKill, opBits)
		p.pack(uint64(c.Password), 16)
		p.pack(0, 3)
	case Lock:
		p.pack(OpLock, opBits)
		for _, b := range c.Mask.list() {
			p.flag(b)
		}
		for _, b := range c.Action.list() {
			p.flag(b)
		}
	case Access:
		p.pack(OpAccess, opBits)
		p.pack(uint64(c.Password), 16)
	case BlockWrite:
		p.pack(OpBlockWrite, opBits)
		p.pack(uint64(c.MemoryBank), 2)
		p.ebv(c.WordPointer, EBV83Max)
		p.pack(uint64(c.WordCount), 8)
		p.span(c.Data)
	case BlockPermalock:
		p.pack(OpBlockPermalock, opBits)
		p.pack(0, 8) // RFU
		p.pack(uint64(c.ReadLock), 1)
		p.pack(uint64(c.MemoryBank), 2)
		p.ebv(c.BlockPointer, EBV81Max)
		p.pack(uint64(c.BlockRange), 8)
		p.span(c.Mask)
	case Authenticate:
		p.pack(OpAuthenticate, opBits)
		p.pack(0, 2) // RFU
		p.flag(c.SendRep)
		p.flag(c.IncRepLen)
		p.pack(uint64(c.CSI), 8)
		p.pack(uint64(c.Length), authLengthBits)
		p.span(c.Message)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return p.err
}

// packer keeps the first error so field sequences read straight through.
type packer struct {
	w   *Writer
	err error
}

func (p *packer) pack(v uint64, n int) {
	if p.err == nil {
		p.err = p.w.Pack(v, n)
	}
}

func (p *packer) flag(b bool) {
	if p.err == nil {
		p.err = p.w.PackBool(b)
	}
}

func (p *packer) ebv(v, maxValue uint32) {
	if p.err == nil {
		p.err = p.w.PackEBV(v, maxValue)
	}
}

func (p *packer) span(s BitSpan) {
	if p.err == nil {
		p.err = p.w.PackSpan(s)
	}
}

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

// Package aggregate builds instruction streams for the Ex10 AggregateOp.
//
// An aggregate buffer is a byte stream of instructions, each a one byte
// code followed by its payload. The firmware runs it top to bottom when the
// AggregateOp is started, so register writes and op runs can be chained
// without a host round trip per step.
package aggregate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ZaparooProject/go-ex10/eventfifo"
	"github.com/ZaparooProject/go-ex10/registers"
)

// Code is an aggregate instruction code.
type Code uint8

const (
	CodeReserved        Code = 0x00
	CodeWrite           Code = 0x02
	CodeReset           Code = 0x08
	CodeInsertFifoEvent Code = 0x0E
	CodeRunOp           Code = 0x30
	CodeGoToIndex       Code = 0x31
	CodeExit            Code = 0x32
	CodeIdentifier      Code = 0x33
)

func (c Code) String() string {
	switch c {
	case CodeReserved:
		return "Reserved"
	case CodeWrite:
		return "Write"
	case CodeReset:
		return "Reset"
	case CodeInsertFifoEvent:
		return "InsertFifoEvent"
	case CodeRunOp:
		return "RunOp"
	case CodeGoToIndex:
		return "GoToIndex"
	case CodeExit:
		return "Exit"
	case CodeIdentifier:
		return "Identifier"
	default:
		return fmt.Sprintf("Code(0x%02X)", uint8(c))
	}
}

// Capacity is the size of the AggregateOpBuffer register.
const Capacity = 0x100

// Builder errors
var (
	ErrBufferOverflow     = errors.New("aggregate: instruction does not fit buffer")
	ErrInvalidJump        = errors.New("aggregate: jump target is not an instruction")
	ErrInvalidInstruction = errors.New("aggregate: invalid instruction")
)

// Instruction is one decoded instruction. Only the fields of its Code are
// set; Data and Packet alias the builder's buffer.
type Instruction struct {
	Data       []byte
	Packet     []byte
	Offset     int
	Size       int
	Address    uint16
	JumpIndex  uint16
	ID         uint16
	Code       Code
	Dest       uint8
	Op         registers.OpID
	Repeat     uint8
	TriggerIRQ bool
}

// Builder accumulates instructions. The zero value is not usable; use New.
type Builder struct {
	logger *slog.Logger
	buf    []byte
}

// New returns an empty builder. A nil logger discards.
func New(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{logger: logger, buf: make([]byte, 0, Capacity)}
}

// Len returns the number of bytes built.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Bytes returns a copy of the built stream.
func (b *Builder) Bytes() []byte {
	return append([]byte(nil), b.buf...)
}

// Reset discards every instruction.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

func (b *Builder) overflows(size int) bool {
	return len(b.buf)+size >= Capacity
}

func (b *Builder) append(inst []byte) error {
	if b.overflows(len(inst)) {
		return fmt.Errorf("%w: %s needs %d bytes, %d used of %d",
			ErrBufferOverflow, Code(inst[0]), len(inst), len(b.buf), Capacity)
	}
	b.buf = append(b.buf, inst...)
	return nil
}

// AppendWrite appends a register write of data at addr.
func (b *Builder) AppendWrite(addr uint16, data []byte) error {
	if len(data) == 0 || len(data) > Capacity {
		return fmt.Errorf("%w: write of %d bytes", ErrInvalidInstruction, len(data))
	}
	inst := make([]byte, 5, 5+len(data))
	inst[0] = byte(CodeWrite)
	binary.LittleEndian.PutUint16(inst[1:], addr)
	binary.LittleEndian.PutUint16(inst[3:], uint16(len(data)))
	return b.append(append(inst, data...))
}

// AppendRegWrite appends a write of data to r, which must be writable and
// no larger than the register.
func (b *Builder) AppendRegWrite(r registers.Info, data []byte) error {
	if !r.Writable() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidInstruction, r.Name, r.Access)
	}
	if len(data) > r.Size() {
		return fmt.Errorf("%w: %d bytes for %s", ErrInvalidInstruction, len(data), r)
	}
	return b.AppendWrite(r.Address, data)
}

// AppendReset appends a reset into dest.
func (b *Builder) AppendReset(dest uint8) error {
	return b.append([]byte{byte(CodeReset), dest})
}

// AppendInsertFifoEvent appends an event fifo insertion. A nil packet
// inserts a header-only packet, which can raise the interrupt without
// delivering data.
func (b *Builder) AppendInsertFifoEvent(triggerIRQ bool, packet []byte) error {
	if packet == nil {
		packet = eventfifo.EmptyPacket()
	}
	size := int(packet[0]) * 4
	if size == 0 || size > len(packet) {
		return fmt.Errorf("%w: packet header claims %d bytes, have %d",
			ErrInvalidInstruction, size, len(packet))
	}
	irq := byte(0)
	if triggerIRQ {
		irq = 1
	}
	inst := append([]byte{byte(CodeInsertFifoEvent), irq}, packet[:size]...)
	return b.append(inst)
}

// AppendRunOp appends an op run. The firmware waits for the op to finish
// before the next instruction.
func (b *Builder) AppendRunOp(op registers.OpID) error {
	return b.append([]byte{byte(CodeRunOp), byte(op)})
}

// AppendGoTo appends a jump to byte index, taken repeat times. A target
// inside the current stream must start an instruction; a target at or
// past the end is accepted as a forward jump.
func (b *Builder) AppendGoTo(index uint16, repeat uint8) error {
	if int(index) >= len(b.buf) {
		b.logger.Debug("aggregate forward jump", "index", index, "len", len(b.buf))
	} else if _, err := b.InstructionAt(int(index)); err != nil {
		return fmt.Errorf("%w: index %d: %w", ErrInvalidJump, index, err)
	}
	inst := []byte{byte(CodeGoToIndex), 0, 0, repeat}
	binary.LittleEndian.PutUint16(inst[1:], index)
	return b.append(inst)
}

// AppendIdentifier appends a marker reported in AggregateOpSummary events.
func (b *Builder) AppendIdentifier(id uint16) error {
	inst := []byte{byte(CodeIdentifier), 0, 0}
	binary.LittleEndian.PutUint16(inst[1:], id)
	return b.append(inst)
}

// AppendExit appends the end of the stream.
func (b *Builder) AppendExit() error {
	return b.append([]byte{byte(CodeExit)})
}

// decodeAt decodes the instruction starting at off.
func decodeAt(buf []byte, off int) (Instruction, error) {
	if off < 0 || off >= len(buf) {
		return Instruction{}, fmt.Errorf("%w: offset %d outside %d bytes", ErrInvalidInstruction, off, len(buf))
	}
	inst := Instruction{Offset: off, Code: Code(buf[off])}
	p := buf[off+1:]
	need := func(n int) error {
		if len(p) < n {
			return fmt.Errorf("%w: truncated %s at %d", ErrInvalidInstruction, inst.Code, off)
		}
		return nil
	}
	switch inst.Code {
	case CodeWrite:
		if err := need(4); err != nil {
			return inst, err
		}
		inst.Address = binary.LittleEndian.Uint16(p)
		n := int(binary.LittleEndian.Uint16(p[2:]))
		if err := need(4 + n); err != nil {
			return inst, err
		}
		inst.Data = p[4 : 4+n]
		inst.Size = 5 + n
	case CodeReset:
		if err := need(1); err != nil {
			return inst, err
		}
		inst.Dest = p[0]
		inst.Size = 2
	case CodeInsertFifoEvent:
		if err := need(2); err != nil {
			return inst, err
		}
		inst.TriggerIRQ = p[0] != 0
		n := int(p[1]) * 4
		if err := need(1 + n); err != nil {
			return inst, err
		}
		inst.Packet = p[1 : 1+n]
		inst.Size = 2 + n
	case CodeRunOp:
		if err := need(1); err != nil {
			return inst, err
		}
		inst.Op = registers.OpID(p[0])
		inst.Size = 2
	case CodeGoToIndex:
		if err := need(3); err != nil {
			return inst, err
		}
		inst.JumpIndex = binary.LittleEndian.Uint16(p)
		inst.Repeat = p[2]
		inst.Size = 4
	case CodeIdentifier:
		if err := need(2); err != nil {
			return inst, err
		}
		inst.ID = binary.LittleEndian.Uint16(p)
		inst.Size = 3
	case CodeExit:
		inst.Size = 1
	default:
		return inst, fmt.Errorf("%w: code 0x%02X at %d", ErrInvalidInstruction, uint8(inst.Code), off)
	}
	return inst, nil
}

// InstructionAt walks the stream from the start and returns the
// instruction beginning at byte index. Indexes inside an instruction are
// an error.
func (b *Builder) InstructionAt(index int) (Instruction, error) {
	off := 0
	for off < len(b.buf) {
		inst, err := decodeAt(b.buf, off)
		if err != nil {
			return Instruction{}, err
		}
		if off == index {
			return inst, nil
		}
		if off > index {
			break
		}
		off += inst.Size
	}
	return Instruction{}, fmt.Errorf("%w: no instruction starts at %d", ErrInvalidInstruction, index)
}

// Instructions decodes the whole stream.
func (b *Builder) Instructions() ([]Instruction, error) {
	return Parse(b.buf)
}

// Parse decodes an aggregate stream. Trailing zero bytes, as read back
// from a cleared device buffer, end the stream.
func Parse(buf []byte) ([]Instruction, error) {
	var out []Instruction
	for off := 0; off < len(buf); {
		if Code(buf[off]) == CodeReserved {
			break
		}
		inst, err := decodeAt(buf, off)
		if err != nil {
			return out, err
		}
		out = append(out, inst)
		off += inst.Size
	}
	return out, nil
}

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

package aggregate

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-ex10/registers"
)

// RegisterWriter writes Ex10 registers.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, r registers.Info, data []byte) error
}

// OpStarter loads registers and starts ops.
type OpStarter interface {
	RegisterWriter
	StartOp(ctx context.Context, op registers.OpID) error
}

// atomically runs fn and drops whatever it appended if it fails.
func (b *Builder) atomically(fn func() error) error {
	mark := len(b.buf)
	if err := fn(); err != nil {
		b.buf = b.buf[:mark]
		return err
	}
	return nil
}

func (b *Builder) regWriteOp(op registers.OpID, writes ...func() error) error {
	return b.atomically(func() error {
		for _, w := range writes {
			if err := w(); err != nil {
				return err
			}
		}
		return b.AppendRunOp(op)
	})
}

func (b *Builder) write32(r registers.Info, v uint32) func() error {
	return func() error { return b.AppendRegWrite(r, registers.Value(r, v)) }
}

// AppendSetRfMode loads RfMode and runs SetRfMode.
func (b *Builder) AppendSetRfMode(mode uint16) error {
	return b.regWriteOp(registers.OpSetRfMode, b.write32(registers.RfMode, uint32(mode)))
}

// AppendSetGpio loads the GPIO level and enable registers and runs SetGpio.
func (b *Builder) AppendSetGpio(levels, enables uint32) error {
	return b.regWriteOp(registers.OpSetGpio,
		b.write32(registers.GpioOutputLevel, levels),
		b.write32(registers.GpioOutputEnable, enables))
}

// AppendTxRampUp loads DcOffset and runs TxRampUp.
func (b *Builder) AppendTxRampUp(dcOffset uint32) error {
	return b.regWriteOp(registers.OpTxRampUp, b.write32(registers.DcOffset, dcOffset))
}

// AppendTxRampDown runs TxRampDown.
func (b *Builder) AppendTxRampDown() error {
	return b.AppendRunOp(registers.OpTxRampDown)
}

// AppendStartTimer loads DelayUs and starts the microsecond timer.
func (b *Builder) AppendStartTimer(delayUs uint32) error {
	return b.regWriteOp(registers.OpUsTimerStart, b.write32(registers.DelayUs, delayUs))
}

// AppendWaitTimer waits for the timer started by AppendStartTimer.
func (b *Builder) AppendWaitTimer() error {
	return b.AppendRunOp(registers.OpUsTimerWait)
}

// AppendStartInventoryRound loads both inventory round control registers
// and starts a round.
func (b *Builder) AppendStartInventoryRound(control, control2 uint32) error {
	return b.regWriteOp(registers.OpStartInventoryRound,
		b.write32(registers.InventoryRoundControl, control),
		b.write32(registers.InventoryRoundControl2, control2))
}

// ClearBuffer zeroes the device aggregate buffer.
func ClearBuffer(ctx context.Context, w RegisterWriter) error {
	r := registers.AggregateOpBuffer
	if err := w.WriteRegister(ctx, r, make([]byte, r.Size())); err != nil {
		return fmt.Errorf("clear aggregate buffer: %w", err)
	}
	return nil
}

// SetBuffer writes the built stream to the start of the device buffer.
// Bytes past the stream are left as they are.
func (b *Builder) SetBuffer(ctx context.Context, w RegisterWriter) error {
	if len(b.buf) == 0 {
		return nil
	}
	if len(b.buf) > Capacity {
		return fmt.Errorf("%w: %d bytes", ErrBufferOverflow, len(b.buf))
	}
	r, err := registers.AggregateOpBuffer.Partial(0, len(b.buf))
	if err != nil {
		return err
	}
	if err := w.WriteRegister(ctx, r, b.buf); err != nil {
		return fmt.Errorf("set aggregate buffer: %w", err)
	}
	return nil
}

// Run loads the stream and starts the AggregateOp. Completion is reported
// like any other op.
func (b *Builder) Run(ctx context.Context, dev OpStarter) error {
	if err := b.SetBuffer(ctx, dev); err != nil {
		return err
	}
	if err := dev.StartOp(ctx, registers.OpAggregate); err != nil {
		return fmt.Errorf("start aggregate op: %w", err)
	}
	return nil
}

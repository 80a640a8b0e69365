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

// InterruptCallback is told which interrupts fired and returns whether
// the event fifo should be drained. It runs with the link held and must
// not call the device.
type InterruptCallback func(registers.InterruptStatusFields) bool

// FifoCallback receives a drained fifo buffer and owns it until it calls
// Release.
type FifoCallback func(*FifoBuffer)

// RegisterInterruptCallback unmasks the interrupts in enable and installs
// cb to be called for them.
func (d *Device) RegisterInterruptCallback(ctx context.Context, enable registers.InterruptStatusFields,
	cb InterruptCallback,
) error {
	if cb == nil {
		return fmt.Errorf("interrupt callback: %w", ErrInvalidParameter)
	}
	if err := d.WriteRegister(ctx, registers.InterruptMask, enable.Bytes()); err != nil {
		return fmt.Errorf("set interrupt mask: %w", err)
	}
	d.state.mu.Lock()
	d.state.irqCallback = cb
	d.state.mu.Unlock()
	return nil
}

// UnregisterInterruptCallback masks every interrupt and drops the callback.
func (d *Device) UnregisterInterruptCallback(ctx context.Context) error {
	d.state.mu.Lock()
	d.state.irqCallback = nil
	d.state.mu.Unlock()
	if err := d.WriteRegister(ctx, registers.InterruptMask, registers.Value(registers.InterruptMask, 0)); err != nil {
		return fmt.Errorf("clear interrupt mask: %w", err)
	}
	return nil
}

// RegisterFifoCallback installs cb to receive drained fifo buffers.
func (d *Device) RegisterFifoCallback(cb FifoCallback) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	d.state.fifoCallback = cb
}

// UnregisterFifoCallback drops the fifo callback. Later drains go back to
// the pool.
func (d *Device) UnregisterFifoCallback() {
	d.RegisterFifoCallback(nil)
}

var irqSnapshot = []registers.Info{registers.Status, registers.InterruptStatus, registers.EventFifoNumBytes}

// HandleInterrupt services one IRQ_N assertion. It reads Status,
// InterruptStatus and EventFifoNumBytes in one transaction and returns at
// once unless the application is running. The interrupt callback decides
// whether the fifo is drained; a drain is read into a pooled buffer and
// handed to the fifo callback, or straight back to the pool when there is
// none. The link is held from the snapshot through the drain, so the
// interrupt callback must not call the device. The fifo callback runs after
// the link is released.
func (d *Device) HandleInterrupt(ctx context.Context) error {
	d.state.mu.Lock()
	irqCB, fifoCB := d.state.irqCallback, d.state.fifoCallback
	d.state.mu.Unlock()

	var buf *FifoBuffer
	err := d.Exclusive(ctx, func(held *Device) error {
		var err error
		buf, err = held.serviceInterrupt(ctx, irqCB)
		return err
	})
	if err != nil || buf == nil {
		return err
	}
	if fifoCB == nil {
		buf.Release()
		return nil
	}
	fifoCB(buf)
	return nil
}

// serviceInterrupt does the link work of HandleInterrupt. It returns the
// filled buffer, or nil when nothing was drained.
func (d *Device) serviceInterrupt(ctx context.Context, irqCB InterruptCallback) (*FifoBuffer, error) {
	snap, err := d.ReadMultiple(ctx, irqSnapshot)
	if err != nil {
		return nil, fmt.Errorf("interrupt snapshot: %w", err)
	}
	if loc := registers.ParseStatus(snap[0]); loc != registers.Application {
		debugf("interrupt ignored in %s", loc)
		return nil, nil
	}
	irq := registers.ParseInterruptStatus(snap[1])
	pending := int(binary.LittleEndian.Uint16(snap[2]))

	if irqCB == nil || !irqCB(irq) || pending == 0 {
		return nil, nil
	}

	buf, ok := d.fifo.Get()
	if !ok {
		d.logger.Warn("no free fifo buffer", "pending", pending)
		return nil, nil
	}
	n := min(pending&^3, buf.Cap())
	if n == 0 {
		buf.Release()
		return nil, nil
	}
	if _, err := d.cmds.ReadFifo(ctx, frame.FifoEvent, buf.data[:n]); err != nil {
		buf.Release()
		return nil, fmt.Errorf("drain event fifo: %w", err)
	}
	buf.n = n
	return buf, nil
}

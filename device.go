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
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ZaparooProject/go-ex10/internal/frame"
	"github.com/ZaparooProject/go-ex10/registers"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig bounds how long a reset is given to come back
	RetryConfig *RetryConfig
	// Timeout bounds each READY_N wait
	Timeout time.Duration
	// OpTimeout is the default WaitOpCompletion timeout
	OpTimeout          time.Duration
	BurstSize          int
	FifoBuffers        int
	FifoBufferSize     int
	BootloaderClockHz  int64
	ApplicationClockHz int64
	FrefKHz            uint32
	FifoThreshold      uint16
}

// DefaultOpTimeout is how long WaitOpCompletion waits by default.
const DefaultOpTimeout = 10 * time.Second

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig:        DefaultRetryConfig(),
		Timeout:            DefaultReadyTimeout,
		OpTimeout:          DefaultOpTimeout,
		BurstSize:          DefaultBurstSize,
		FifoBuffers:        DefaultFifoBuffers,
		FifoBufferSize:     DefaultFifoBufferSize,
		BootloaderClockHz:  BootloaderClockHz,
		ApplicationClockHz: ApplicationClockHz,
		FrefKHz:            frame.TCXOFreqKHz,
		FifoThreshold:      frame.EventFifoSize / 2,
	}
}

// deviceState is shared between a Device and the views Exclusive hands out.
type deviceState struct {
	irqCallback  InterruptCallback
	fifoCallback FifoCallback
	upload       uploadState
	mu           sync.Mutex
	closed       bool
}

// Device is the protocol context for one Ex10: register access, ops,
// flash, and interrupt servicing over a single link.
//
// Thread Safety: every method is safe for concurrent use. Each call is
// atomic on the link; use Exclusive when several calls must not be
// interleaved with other goroutines.
type Device struct {
	link   Link
	cmds   *Commands
	config *DeviceConfig
	logger *slog.Logger
	state  *deviceState
	fifo   *FifoBufferPool
}

// New creates a Device on link.
func New(link Link, opts ...Option) (*Device, error) {
	if link == nil {
		return nil, fmt.Errorf("link: %w", ErrInvalidParameter)
	}
	d := &Device{
		link:   link,
		config: DefaultDeviceConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:  &deviceState{},
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	t, err := NewTransactor(link, d.config.BurstSize)
	if err != nil {
		return nil, err
	}
	d.cmds = NewCommands(t, d.config.Timeout)
	d.fifo = NewFifoBufferPool(d.config.FifoBuffers, d.config.FifoBufferSize)
	return d, nil
}

// Link returns the underlying link
func (d *Device) Link() Link {
	return d.link
}

// Commands returns the wire codec the device drives.
func (d *Device) Commands() *Commands {
	return d.cmds
}

// Config returns a copy of the device configuration.
func (d *Device) Config() DeviceConfig {
	return *d.config
}

// FifoPool returns the pool event fifo drains are read into.
func (d *Device) FifoPool() *FifoBufferPool {
	return d.fifo
}

// SetTimeout sets the READY_N timeout for each transaction
func (d *Device) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("timeout %v: %w", timeout, ErrInvalidParameter)
	}
	d.config.Timeout = timeout
	if d.cmds != nil {
		d.cmds.timeout = timeout
	}
	return nil
}

// SetRetryConfig updates the retry configuration
func (d *Device) SetRetryConfig(config *RetryConfig) {
	d.config.RetryConfig = config
}

// Exclusive runs fn with the link held, so the calls fn makes on the
// device it is handed are not interleaved with any other caller. fn must
// not use the outer Device.
func (d *Device) Exclusive(ctx context.Context, fn func(*Device) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := d.cmds.Transactor()
	t.Lock()
	defer t.Unlock()
	view := *d
	view.cmds = d.cmds.heldView()
	return fn(&view)
}

// Close drops the callbacks and closes the link.
func (d *Device) Close() error {
	d.state.mu.Lock()
	if d.state.closed {
		d.state.mu.Unlock()
		return nil
	}
	d.state.closed = true
	d.state.irqCallback = nil
	d.state.fifoCallback = nil
	d.state.mu.Unlock()

	if err := d.link.Close(); err != nil {
		return fmt.Errorf("failed to close link: %w", err)
	}
	return nil
}

func (d *Device) checkOpen() error {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	if d.state.closed {
		return ErrDeviceClosed
	}
	return nil
}

// ReadRegister reads all of r.
func (d *Device) ReadRegister(ctx context.Context, r registers.Info) ([]byte, error) {
	if !r.Readable() {
		return nil, fmt.Errorf("read %s: %w", r, ErrInvalidParameter)
	}
	out, err := d.ReadMultiple(ctx, []registers.Info{r})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// WriteRegister writes data to the start of r. data may be shorter than
// the register.
func (d *Device) WriteRegister(ctx context.Context, r registers.Info, data []byte) error {
	return d.WriteMultiple(ctx, []registers.Info{r}, [][]byte{data})
}

// ReadIndex reads entry idx of an array register.
func (d *Device) ReadIndex(ctx context.Context, r registers.Info, idx int) ([]byte, error) {
	e, err := r.Entry(idx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	return d.ReadRegister(ctx, e)
}

// WriteIndex writes entry idx of an array register.
func (d *Device) WriteIndex(ctx context.Context, r registers.Info, idx int, data []byte) error {
	e, err := r.Entry(idx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	return d.WriteRegister(ctx, e, data)
}

// ReadPartial reads length bytes of r starting offset bytes in.
func (d *Device) ReadPartial(ctx context.Context, r registers.Info, offset, length int) ([]byte, error) {
	p, err := r.Partial(offset, length)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	return d.ReadRegister(ctx, p)
}

// WritePartial writes data into r starting offset bytes in.
func (d *Device) WritePartial(ctx context.Context, r registers.Info, offset int, data []byte) error {
	p, err := r.Partial(offset, len(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	return d.WriteRegister(ctx, p, data)
}

// ReadMultiple reads every register in one batched read.
func (d *Device) ReadMultiple(ctx context.Context, regs []registers.Info) ([][]byte, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	segs := make([]ReadSegment, len(regs))
	for i, r := range regs {
		if !r.Readable() {
			return nil, fmt.Errorf("read %s: %w", r, ErrInvalidParameter)
		}
		segs[i] = ReadSegmentFor(r)
	}
	if err := d.cmds.Read(ctx, segs); err != nil {
		return nil, err
	}
	out := make([][]byte, len(segs))
	for i, s := range segs {
		out[i] = s.Data
	}
	return out, nil
}

// WriteMultiple writes data[i] to regs[i] in one batched write.
func (d *Device) WriteMultiple(ctx context.Context, regs []registers.Info, data [][]byte) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if len(regs) != len(data) {
		return fmt.Errorf("%d registers, %d buffers: %w", len(regs), len(data), ErrInvalidParameter)
	}
	segs := make([]WriteSegment, len(regs))
	for i, r := range regs {
		if !r.Writable() {
			return fmt.Errorf("write %s: %w", r, ErrInvalidParameter)
		}
		if len(data[i]) > r.Size() {
			return fmt.Errorf("write %d bytes to %s: %w", len(data[i]), r, ErrDataTooLarge)
		}
		segs[i] = WriteSegment{Address: r.Address, Data: data[i]}
	}
	return d.cmds.Write(ctx, segs)
}

// TestRead reads n bytes from a 32-bit device address, split into
// word-aligned chunks that fit a transaction.
func (d *Device) TestRead(ctx context.Context, addr uint32, n int) ([]byte, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := check32(addr, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	chunk := d.cmds.burst() &^ 3
	for off := 0; off < n; off += chunk {
		end := min(off+chunk, n)
		if err := d.cmds.TestRead(ctx, addr+uint32(off), out[off:end]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TestWrite writes word-aligned data to a 32-bit device address.
func (d *Device) TestWrite(ctx context.Context, addr uint32, data []byte) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.cmds.TestWrite(ctx, addr, data)
}

// TestTransfer runs a loopback transaction.
func (d *Device) TestTransfer(ctx context.Context, data []byte, verify bool) ([]byte, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	return d.cmds.TestTransfer(ctx, data, verify)
}

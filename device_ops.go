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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ex10/internal/frame"
	"github.com/ZaparooProject/go-ex10/registers"
)

const opPollInterval = time.Millisecond

// StartOp writes op to OpsControl.
func (d *Device) StartOp(ctx context.Context, op registers.OpID) error {
	debugf("start op %s", op)
	if err := d.WriteRegister(ctx, registers.OpsControl, []byte{byte(op)}); err != nil {
		return fmt.Errorf("start op %s: %w", op, err)
	}
	return nil
}

// StopOp starts the Idle op, which aborts whatever is running.
func (d *Device) StopOp(ctx context.Context) error {
	return d.StartOp(ctx, registers.OpIdle)
}

// IsOpRunning reports whether OpsControl holds anything but Idle.
func (d *Device) IsOpRunning(ctx context.Context) (bool, error) {
	b, err := d.ReadRegister(ctx, registers.OpsControl)
	if err != nil {
		return false, err
	}
	return registers.OpID(b[0]) != registers.OpIdle, nil
}

// WaitOpCompletion waits up to the configured op timeout for the running
// op to finish.
func (d *Device) WaitOpCompletion(ctx context.Context) (OpCompletionStatus, error) {
	return d.WaitOpCompletionTimeout(ctx, d.config.OpTimeout)
}

// WaitOpCompletionTimeout polls OpsStatus until the busy flag clears or
// timeout passes. An op error, a failed poll or a timeout is returned as
// *OpError alongside the status.
func (d *Device) WaitOpCompletionTimeout(ctx context.Context, timeout time.Duration) (OpCompletionStatus, error) {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	deadline := time.Now().Add(timeout)
	var st OpCompletionStatus
	for {
		b, err := d.ReadRegister(ctx, registers.OpsStatus)
		if err != nil {
			st.CommandErr = err
			return st, &OpError{Status: st}
		}
		ops, err := registers.ParseOpsStatus(b)
		if err != nil {
			st.CommandErr = err
			return st, &OpError{Status: st}
		}
		st.OpsStatus = ops
		if !ops.Busy {
			if ops.Error != registers.OpErrNone {
				return st, &OpError{Status: st}
			}
			return st, nil
		}
		if !time.Now().Before(deadline) {
			st.TimedOut = true
			return st, &OpError{Status: st}
		}
		if err := sleepCtx(ctx, opPollInterval); err != nil {
			st.CommandErr = err
			return st, &OpError{Status: st}
		}
	}
}

// RunOp starts op and waits for it to finish.
func (d *Device) RunOp(ctx context.Context, op registers.OpID) (OpCompletionStatus, error) {
	if err := d.StartOp(ctx, op); err != nil {
		return OpCompletionStatus{}, err
	}
	return d.WaitOpCompletion(ctx)
}

// RunningLocation reads which image the device is executing.
func (d *Device) RunningLocation(ctx context.Context) (registers.RunningLocation, error) {
	b, err := d.ReadRegister(ctx, registers.Status)
	if err != nil {
		return 0, err
	}
	return registers.ParseStatus(b), nil
}

func resetDestination(dest registers.RunningLocation) (byte, error) {
	switch dest {
	case registers.Application:
		return frame.DestApplication, nil
	case registers.Bootloader:
		return frame.DestBootloader, nil
	default:
		return 0, fmt.Errorf("reset into %s: %w", dest, ErrInvalidParameter)
	}
}

// Reset restarts the device into dest and waits until it answers again.
// The link runs at the bootloader clock until the application is
// confirmed. It returns where the device came up, which is the bootloader
// when the application image is invalid.
func (d *Device) Reset(ctx context.Context, dest registers.RunningLocation) (registers.RunningLocation, error) {
	code, err := resetDestination(dest)
	if err != nil {
		return 0, err
	}
	if err := d.checkOpen(); err != nil {
		return 0, err
	}
	if err := setClock(d.link, d.config.BootloaderClockHz); err != nil {
		return 0, fmt.Errorf("reset: set clock: %w", err)
	}
	if err := d.cmds.Reset(ctx, code); err != nil {
		return 0, err
	}
	d.state.mu.Lock()
	d.state.upload = uploadState{}
	d.state.mu.Unlock()
	return d.confirmLocation(ctx)
}

// HardReset pulses RESET_N and waits for the device to boot.
func (d *Device) HardReset(ctx context.Context) (registers.RunningLocation, error) {
	if err := d.checkOpen(); err != nil {
		return 0, err
	}
	if err := setClock(d.link, d.config.BootloaderClockHz); err != nil {
		return 0, fmt.Errorf("hard reset: set clock: %w", err)
	}
	if err := d.link.AssertReset(); err != nil {
		return 0, NewTransportError("hard reset", "", err, ErrorTypeTransient)
	}
	if err := sleepCtx(ctx, time.Millisecond); err != nil {
		_ = d.link.DeassertReset()
		return 0, err
	}
	if err := d.link.DeassertReset(); err != nil {
		return 0, NewTransportError("hard reset", "", err, ErrorTypeTransient)
	}
	return d.confirmLocation(ctx)
}

func (d *Device) confirmLocation(ctx context.Context) (registers.RunningLocation, error) {
	var loc registers.RunningLocation
	err := RetryWithConfig(ctx, d.config.RetryConfig, func() error {
		l, err := d.RunningLocation(ctx)
		if err != nil {
			return err
		}
		if l != registers.Application && l != registers.Bootloader {
			return NewTransportError("reset", "", fmt.Errorf("%w: status %s", ErrResetFailed, l),
				ErrorTypeTransient)
		}
		loc = l
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrResetFailed) {
			err = fmt.Errorf("%w: %w", ErrResetFailed, err)
		}
		return 0, err
	}
	if loc == registers.Application {
		if err := setClock(d.link, d.config.ApplicationClockHz); err != nil {
			return loc, fmt.Errorf("reset: set clock: %w", err)
		}
	}
	d.logger.Info("ex10 reset", "location", loc.String())
	return loc, nil
}

// InitInterrupts masks every interrupt, sets the fifo threshold and clears
// anything pending. It does nothing in the bootloader.
func (d *Device) InitInterrupts(ctx context.Context) error {
	loc, err := d.RunningLocation(ctx)
	if err != nil {
		return err
	}
	if loc != registers.Application {
		debugf("init interrupts skipped in %s", loc)
		return nil
	}
	if err := d.WriteRegister(ctx, registers.InterruptMask, registers.Value(registers.InterruptMask, 0)); err != nil {
		return fmt.Errorf("mask interrupts: %w", err)
	}
	if err := d.SetEventFifoThreshold(ctx, d.config.FifoThreshold); err != nil {
		return err
	}
	if _, err := d.ReadRegister(ctx, registers.InterruptStatus); err != nil {
		return fmt.Errorf("clear interrupts: %w", err)
	}
	return nil
}

// SetEventFifoThreshold sets the fill level, in bytes, that raises
// EventFifoAboveThresh.
func (d *Device) SetEventFifoThreshold(ctx context.Context, bytes uint16) error {
	if int(bytes) > frame.EventFifoSize {
		return fmt.Errorf("fifo threshold %d: %w", bytes, ErrInvalidParameter)
	}
	return d.WriteRegister(ctx, registers.EventFifoIntLevel, registers.Value(registers.EventFifoIntLevel, bytes))
}

// InsertFifoEvent pushes packet into the device event fifo; see
// Commands.InsertFifoEvent.
func (d *Device) InsertFifoEvent(ctx context.Context, trigger bool, packet []byte) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.cmds.InsertFifoEvent(ctx, trigger, packet)
}

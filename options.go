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
	"fmt"
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithRetryConfig sets the retry policy used while confirming a reset
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.SetRetryConfig(config)
		return nil
	}
}

// WithTimeout sets the READY_N timeout for each transaction
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		return d.SetTimeout(timeout)
	}
}

// WithOpTimeout sets the default WaitOpCompletion timeout
func WithOpTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("op timeout %v: %w", timeout, ErrInvalidParameter)
		}
		d.config.OpTimeout = timeout
		return nil
	}
}

// WithBurstSize caps the size of a single transaction. Sizes above the
// device limit are rejected.
func WithBurstSize(size int) Option {
	return func(d *Device) error {
		if size < 8 || size > DefaultBurstSize {
			return fmt.Errorf("burst size %d: %w", size, ErrInvalidParameter)
		}
		d.config.BurstSize = size
		return nil
	}
}

// WithFifoBuffers sizes the pool event fifo drains are read into.
func WithFifoBuffers(count, size int) Option {
	return func(d *Device) error {
		if count <= 0 || size < 4 {
			return fmt.Errorf("fifo buffers %dx%d: %w", count, size, ErrInvalidParameter)
		}
		d.config.FifoBuffers = count
		d.config.FifoBufferSize = size
		return nil
	}
}

// WithFifoThreshold sets the EventFifoIntLevel written by InitInterrupts.
func WithFifoThreshold(bytes uint16) Option {
	return func(d *Device) error {
		d.config.FifoThreshold = bytes
		return nil
	}
}

// WithLogger sets the logger for device events. Protocol tracing still
// goes through SetDebugEnabled.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) error {
		if l == nil {
			return fmt.Errorf("logger: %w", ErrInvalidParameter)
		}
		d.logger = l
		return nil
	}
}

// WithClock sets the bus clocks used in the bootloader and application.
func WithClock(bootloaderHz, applicationHz int64) Option {
	return func(d *Device) error {
		if bootloaderHz <= 0 || applicationHz <= 0 {
			return fmt.Errorf("clock %d/%d: %w", bootloaderHz, applicationHz, ErrInvalidParameter)
		}
		d.config.BootloaderClockHz = bootloaderHz
		d.config.ApplicationClockHz = applicationHz
		return nil
	}
}

// WithFrefKHz sets the reference clock written before flash operations.
func WithFrefKHz(khz uint32) Option {
	return func(d *Device) error {
		if khz == 0 {
			return fmt.Errorf("fref: %w", ErrInvalidParameter)
		}
		d.config.FrefKHz = khz
		return nil
	}
}

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

package config

import (
	"fmt"

	ex10 "github.com/ZaparooProject/go-ex10"
)

// eventFifoSize is the size of the device event fifo.
const eventFifoSize = 0x1000

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is empty")
	}

	// ------------------------------------------------------------
	// LINK
	// ------------------------------------------------------------

	l := cfg.Link
	switch l.Kind {
	case LinkSPI:
		if cfg.Pins.ReadyN == "" || cfg.Pins.ResetN == "" {
			return fmt.Errorf("link %q: pins.ready_n and pins.reset_n are required", l.Kind)
		}
	case LinkUART:
		if l.Port == "" {
			return fmt.Errorf("link %q: port is required", l.Kind)
		}
		if l.BaudRate <= 0 {
			return fmt.Errorf("link %q: baud_rate must be positive, got %d", l.Kind, l.BaudRate)
		}
	default:
		return fmt.Errorf("link.kind must be %q or %q, got %q", LinkSPI, LinkUART, l.Kind)
	}
	if l.SpeedHz <= 0 || l.BootloaderSpeedHz <= 0 {
		return fmt.Errorf("link speeds must be positive, got %d/%d", l.SpeedHz, l.BootloaderSpeedHz)
	}
	if l.BootloaderSpeedHz > l.SpeedHz {
		return fmt.Errorf(
			"link.bootloader_speed_hz (%d) must not exceed link.speed_hz (%d)",
			l.BootloaderSpeedHz,
			l.SpeedHz,
		)
	}

	// ------------------------------------------------------------
	// PROTOCOL
	// ------------------------------------------------------------

	p := cfg.Protocol
	if p.BurstSize < 8 || p.BurstSize > ex10.DefaultBurstSize {
		return fmt.Errorf("protocol.burst_size must be in [8, %d], got %d", ex10.DefaultBurstSize, p.BurstSize)
	}
	if p.ReadyTimeoutMs <= 0 {
		return fmt.Errorf("protocol.ready_timeout_ms must be positive, got %d", p.ReadyTimeoutMs)
	}
	if p.OpTimeoutMs <= 0 {
		return fmt.Errorf("protocol.op_timeout_ms must be positive, got %d", p.OpTimeoutMs)
	}

	// ------------------------------------------------------------
	// EVENT FIFO
	// ------------------------------------------------------------

	f := cfg.Fifo
	if f.Buffers <= 0 {
		return fmt.Errorf("fifo.buffers must be positive, got %d", f.Buffers)
	}
	if f.BufferSize < 4 || f.BufferSize%4 != 0 {
		return fmt.Errorf("fifo.buffer_size must be a positive multiple of 4, got %d", f.BufferSize)
	}
	if f.Threshold == 0 || int(f.Threshold) > eventFifoSize {
		return fmt.Errorf("fifo.threshold must be in [1, %d], got %d", eventFifoSize, f.Threshold)
	}
	if int(f.Threshold) > f.BufferSize {
		return fmt.Errorf(
			"fifo.threshold (%d) exceeds fifo.buffer_size (%d): a drain would not fit",
			f.Threshold,
			f.BufferSize,
		)
	}

	return nil
}

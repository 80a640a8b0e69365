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
	"time"

	ex10 "github.com/ZaparooProject/go-ex10"
	tspi "github.com/ZaparooProject/go-ex10/transport/spi"
	tuart "github.com/ZaparooProject/go-ex10/transport/uart"
)

// Normalize fills every unset field with the driver default.
// It is allowed to mutate configuration and runs before Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	l := &cfg.Link
	if l.Kind == "" {
		l.Kind = LinkSPI
	}
	if l.SpeedHz == 0 {
		l.SpeedHz = ex10.ApplicationClockHz
	}
	if l.BootloaderSpeedHz == 0 {
		l.BootloaderSpeedHz = ex10.BootloaderClockHz
	}
	if l.Kind == LinkUART && l.BaudRate == 0 {
		l.BaudRate = tuart.DefaultBaudRate
	}

	// pins only matter on a native bus
	if l.Kind == LinkSPI {
		p := &cfg.Pins
		if p.ReadyN == "" {
			p.ReadyN = tspi.DefaultReadyPin
		}
		if p.IrqN == "" {
			p.IrqN = tspi.DefaultIrqPin
		}
		if p.ResetN == "" {
			p.ResetN = tspi.DefaultResetPin
		}
	}

	pr := &cfg.Protocol
	if pr.BurstSize == 0 {
		pr.BurstSize = ex10.DefaultBurstSize
	}
	if pr.ReadyTimeoutMs == 0 {
		pr.ReadyTimeoutMs = int(ex10.DefaultReadyTimeout / time.Millisecond)
	}
	if pr.OpTimeoutMs == 0 {
		pr.OpTimeoutMs = int(ex10.DefaultOpTimeout / time.Millisecond)
	}

	f := &cfg.Fifo
	if f.Buffers == 0 {
		f.Buffers = ex10.DefaultFifoBuffers
	}
	if f.BufferSize == 0 {
		f.BufferSize = ex10.DefaultFifoBufferSize
	}
	if f.Threshold == 0 {
		f.Threshold = uint16(f.BufferSize / 2)
	}
}

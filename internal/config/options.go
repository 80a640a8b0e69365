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
	"log/slog"
	"time"

	ex10 "github.com/ZaparooProject/go-ex10"
	tspi "github.com/ZaparooProject/go-ex10/transport/spi"
	tuart "github.com/ZaparooProject/go-ex10/transport/uart"
)

// ReadyTimeout returns protocol.ready_timeout_ms as a duration.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Protocol.ReadyTimeoutMs) * time.Millisecond
}

// DeviceOptions returns the driver options the config describes.
func (c *Config) DeviceOptions(logger *slog.Logger) []ex10.Option {
	opts := []ex10.Option{
		ex10.WithTimeout(c.ReadyTimeout()),
		ex10.WithOpTimeout(time.Duration(c.Protocol.OpTimeoutMs) * time.Millisecond),
		ex10.WithBurstSize(c.Protocol.BurstSize),
		ex10.WithFifoBuffers(c.Fifo.Buffers, c.Fifo.BufferSize),
		ex10.WithFifoThreshold(c.Fifo.Threshold),
		ex10.WithClock(c.Link.BootloaderSpeedHz, c.Link.SpeedHz),
	}
	if logger != nil {
		opts = append(opts, ex10.WithLogger(logger))
	}
	return opts
}

// SPI returns the native bus settings. The link starts at the bootloader
// clock; Device.Reset raises it once the application is confirmed.
func (c *Config) SPI(logger *slog.Logger) tspi.Config {
	return tspi.Config{
		Logger:   logger,
		Port:     c.Link.Port,
		ReadyPin: c.Pins.ReadyN,
		IrqPin:   c.Pins.IrqN,
		ResetPin: c.Pins.ResetN,
		SpeedHz:  c.Link.BootloaderSpeedHz,
	}
}

// UART returns the serial bridge settings.
func (c *Config) UART(logger *slog.Logger) tuart.Config {
	cfg := tuart.DefaultConfig(c.Link.Port)
	cfg.Logger = logger
	cfg.BaudRate = c.Link.BaudRate
	return cfg
}

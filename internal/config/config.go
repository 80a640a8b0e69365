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

// Package config loads the YAML description of an Ex10 board: how it is
// linked to the host and how the driver should talk to it.
package config

// Link kinds.
const (
	LinkSPI  = "spi"
	LinkUART = "uart"
)

type Config struct {
	Link     LinkConfig     `yaml:"link"`
	Pins     PinsConfig     `yaml:"pins"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Fifo     FifoConfig     `yaml:"fifo"`
}

// ---- LINK ----

type LinkConfig struct {
	Kind              string `yaml:"kind"`
	Port              string `yaml:"port"`
	SpeedHz           int64  `yaml:"speed_hz"`
	BootloaderSpeedHz int64  `yaml:"bootloader_speed_hz"`
	BaudRate          int    `yaml:"baud_rate"` // uart only
}

// ---- PINS (spi only) ----

type PinsConfig struct {
	ReadyN string `yaml:"ready_n"`
	IrqN   string `yaml:"irq_n"`
	ResetN string `yaml:"reset_n"`
}

// ---- PROTOCOL ----

type ProtocolConfig struct {
	BurstSize      int `yaml:"burst_size"`
	ReadyTimeoutMs int `yaml:"ready_timeout_ms"`
	OpTimeoutMs    int `yaml:"op_timeout_ms"`
}

// ---- EVENT FIFO ----

type FifoConfig struct {
	Buffers    int    `yaml:"buffers"`
	BufferSize int    `yaml:"buffer_size"`
	Threshold  uint16 `yaml:"threshold"`
}

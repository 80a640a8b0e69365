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
	"time"
)

// Link is the physical half-duplex connection to an Ex10: a byte pipe
// framed by the READY_N handshake line and the RESET_N line. SPI and
// serial bridge backends implement it.
type Link interface {
	// Write clocks p out to the device as one transaction.
	Write(p []byte) (int, error)

	// Read clocks len(p) bytes in from the device as one transaction.
	Read(p []byte) (int, error)

	// WaitReady blocks until READY_N is asserted or the timeout expires.
	WaitReady(timeout time.Duration) error

	// AssertReset drives RESET_N low.
	AssertReset() error

	// DeassertReset releases RESET_N.
	DeassertReset() error

	// Close releases the link
	Close() error
}

// InterruptSource is implemented by links that expose the IRQ_N line.
type InterruptSource interface {
	// WaitForInterrupt blocks until IRQ_N falls. It returns false when the
	// timeout expires first.
	WaitForInterrupt(timeout time.Duration) (bool, error)
}

// ClockSetter is implemented by links whose bus clock can be changed. The
// bootloader needs a slower clock than the application.
type ClockSetter interface {
	SetClock(hz int64) error
}

// LinkType names a link backend.
type LinkType string

const (
	// LinkSPI is a native SPI bus with GPIO handshake lines.
	LinkSPI LinkType = "spi"
	// LinkUART is a serial-attached SPI bridge.
	LinkUART LinkType = "uart"
	// LinkMock is an in-memory link used in tests.
	LinkMock LinkType = "mock"
)

// Typed is implemented by links that can name their backend.
type Typed interface {
	Type() LinkType
}

// LinkTypeOf returns the backend name of l, or "" when it does not say.
func LinkTypeOf(l Link) LinkType {
	if t, ok := l.(Typed); ok {
		return t.Type()
	}
	return ""
}

// Clock rates used around a reset.
const (
	BootloaderClockHz  int64 = 1_000_000
	ApplicationClockHz int64 = 4_000_000
)

func setClock(l Link, hz int64) error {
	if cs, ok := l.(ClockSetter); ok {
		return cs.SetClock(hz)
	}
	return nil
}

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

/*
Package ex10 provides a pure Go host driver for Impinj Ex10 series RFID
reader chips (E310, E510, E710, E910).

The Ex10 is a UHF RAIN RFID reader on a chip. The host talks to it over
SPI with a READY_N handshake line, an IRQ_N interrupt line and a RESET_N
line. This library exposes the host interface as a Device: register
access through a typed catalog, ops, the event fifo, flash upload and
interrupt servicing.

Features:
  - SPI links on Linux through periph.io, or a serial SPI bridge
  - Register catalog with bounds checked indexed and partial access
  - Ops, aggregate ops and op completion waits
  - Event fifo decoding and CBOR capture
  - Gen2 command encoding, reply decoding and transmit slot management
  - Bootloader flash upload and info page writes
  - Interrupt monitor with pooled fifo buffers
  - Reader auto-detection

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-ex10"
	    "github.com/ZaparooProject/go-ex10/transport/spi"
	)

	// Open the native SPI bus with the default reader wiring
	link, err := spi.Open(spi.DefaultConfig())
	if err != nil {
	    log.Fatal(err)
	}

	// Create the device
	dev, err := ex10.New(link, ex10.WithTimeout(time.Second))
	if err != nil {
	    log.Fatal(err)
	}
	defer dev.Close()

	// Make sure the application is running
	ctx := context.Background()
	loc, err := dev.Reset(ctx, registers.Application)
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println("running:", loc)

	// Read a register
	version, err := dev.ReadRegister(ctx, registers.VersionString)

Connecting by path or auto-detection:

	dev, err := ex10.ConnectDevice("", ex10.WithAutoDetection(),
	    ex10.WithLinkFromDeviceFactory(openDetected))

Interrupts:

	dev.RegisterFifoCallback(func(b *ex10.FifoBuffer) {
	    defer b.Release()
	    for _, p := range b.Packets() {
	        fmt.Println(p.Type)
	    }
	})

Servicing IRQ_N in the background is done by the polling package.

Thread Safety:

Device methods are safe for concurrent use. Each call is one atomic
transaction on the link; Exclusive groups several calls.

Error Handling:

Errors carry an ErrorType that IsRetryable and
GetErrorType report. Device-side failures surface as DeviceError,
OpError and UploadError values.
*/
package ex10

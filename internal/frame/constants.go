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

// Package frame provides wire constants and buffer helpers for the Ex10 host
// protocol.
package frame

// Command opcodes. The first byte of every host transaction.
const (
	OpRead            = 0x01
	OpWrite           = 0x02
	OpReadFifo        = 0x03
	OpStartUpload     = 0x04
	OpContinueUpload  = 0x05
	OpCompleteUpload  = 0x06
	OpReValidateImage = 0x07
	OpReset           = 0x08
	OpCallRAMImage    = 0x09
	OpTestTransfer    = 0x0A
	OpWriteInfoPage   = 0x0B
	OpTestRead        = 0x0C
	OpInsertFifoEvent = 0x0E
)

// Size limits.
const (
	// MaxCommandSize is the largest transaction the device accepts.
	MaxCommandSize = 2052
	// SegmentHeaderSize is the address + length prefix of a segment.
	SegmentHeaderSize = 4
	// StatusSize is the response code byte that leads every response.
	StatusSize = 1
	// MaxInfoPageData is the largest info page payload.
	MaxInfoPageData = MaxCommandSize - 4
	// MaxAddress is one past the highest register address.
	MaxAddress = 0x10000
	// EventFifoSize is the device event fifo capacity in bytes.
	EventFifoSize = 0x1000
	// MaxImageBytes bounds an uploaded firmware image.
	MaxImageBytes = 254000
)

// Reset destinations.
const (
	DestBootloader  = 0x01
	DestApplication = 0x02
)

// DestFlash is the upload destination for the application image.
const DestFlash = 0x01

// Fifo selectors for ReadFifo.
const (
	FifoEvent = 0x00
)

// Flash info pages.
const (
	InfoPageSize = 2048
	// TCXOFreqKHz is the reference clock the dev kit boards carry.
	TCXOFreqKHz = 24000
)

// InfoPageBase maps an info page id to its TestRead address.
var InfoPageBase = [...]uint32{
	0x10010000,
	0x1FFD0000,
	0x1FFD4000,
	0x1FFD8000,
	0x1FFDC000,
}

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

package frame

import "github.com/sigurn/crc16"

var ccittTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// CRC16 computes the CRC-16/CCITT-FALSE checksum used to seal info pages
// (poly 0x1021, init 0xFFFF, no reflection, no final xor).
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, ccittTable)
}

// InfoPageCRC returns the seal for an info page payload. An empty payload
// erases the page and carries a zero seal.
func InfoPageCRC(data []byte) uint16 {
	if len(data) == 0 {
		return 0
	}
	return CRC16(data)
}

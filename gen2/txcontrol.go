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

package gen2

import (
	"fmt"

	"github.com/ZaparooProject/go-ex10/registers"
)

// rx_length covers the reply header and trailing CRC/handle: 32 bits for
// replies without a header bit, 33 with one, 41 for in-process replies.
var txControlTable = map[Kind]registers.Gen2TxnControlsFields{
	KindSelect: {
		ResponseType: registers.ResponseNone, AppendCRC16: true,
	},
	KindRead: {
		ResponseType: registers.ResponseImmediate, HasHeaderBit: true,
		AppendHandle: true, AppendCRC16: true, RxLength: 33,
	},
	KindWrite: {
		ResponseType: registers.ResponseDelayed, HasHeaderBit: true, UseCoverCode: true,
		AppendHandle: true, AppendCRC16: true, RxLength: 33,
	},
	KindKill1: {
		ResponseType: registers.ResponseImmediate,
		AppendHandle: true, AppendCRC16: true, IsKillCommand: true, RxLength: 32,
	},
	KindKill2: {
		ResponseType: registers.ResponseDelayed, HasHeaderBit: true,
		AppendHandle: true, AppendCRC16: true, IsKillCommand: true, RxLength: 33,
	},
	KindLock: {
		ResponseType: registers.ResponseDelayed, HasHeaderBit: true,
		AppendHandle: true, AppendCRC16: true, RxLength: 33,
	},
	KindAccess: {
		ResponseType: registers.ResponseImmediate, UseCoverCode: true,
		AppendHandle: true, AppendCRC16: true, RxLength: 32,
	},
	KindBlockWrite: {
		ResponseType: registers.ResponseDelayed, HasHeaderBit: true,
		AppendHandle: true, AppendCRC16: true, RxLength: 33,
	},
	KindBlockPermalock: {
		ResponseType: registers.ResponseDelayed, HasHeaderBit: true,
		AppendHandle: true, AppendCRC16: true, RxLength: 33,
	},
	KindAuthenticate: {
		ResponseType: registers.ResponseInProcess,
		AppendHandle: true, AppendCRC16: true, RxLength: 41,
	},
}

// TxControlConfig returns the Gen2TxnControls entry the modem needs to
// transmit cmd and receive its reply.
func TxControlConfig(cmd Command) (registers.Gen2TxnControlsFields, error) {
	cfg, ok := txControlTable[cmd.Kind()]
	if !ok {
		return registers.Gen2TxnControlsFields{}, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Kind())
	}
	switch c := cmd.(type) {
	case Read:
		cfg.RxLength += 16 * uint16(c.WordCount)
	case BlockPermalock:
		if c.ReadLock == ReadLockRead {
			cfg.RxLength += 16 * uint16(c.BlockRange)
			cfg.ResponseType = registers.ResponseImmediate
		}
	case Authenticate:
		if c.SendRep {
			cfg.RxLength += c.RepLenBits
			if c.IncRepLen {
				cfg.RxLength += 16
			}
		}
	}
	return cfg, nil
}

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

package registers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLittleEndianHelpers(t *testing.T) {
	t.Parallel()

	b := make([]byte, 4)
	PutLE(b, uint32(0x11223344))
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, b)
	assert.Equal(t, uint32(0x11223344), LE[uint32](b))
	assert.Equal(t, uint16(0x3344), LE[uint16](b[:2]))
	assert.Equal(t, []byte{0xB0, 0x00}, Value(EventFifoIntLevel, 0xB0))
}

func TestOpsStatus(t *testing.T) {
	t.Parallel()

	s, err := ParseOpsStatus([]byte{0xB9, 0x01, 0x09, 0x00})
	require.NoError(t, err)
	assert.Equal(t, OpAggregate, s.OpID)
	assert.True(t, s.Busy)
	assert.Equal(t, OpErrAggregateInnerOpError, s.Error)
	assert.Equal(t, []byte{0xB9, 0x01, 0x09, 0x00}, s.Bytes())
	assert.Equal(t, "AggregateOp", s.OpID.String())
	assert.Equal(t, "AggregateInnerOpError", s.Error.String())

	_, err = ParseOpsStatus([]byte{0xA0})
	require.Error(t, err)
}

func TestInterruptStatusBits(t *testing.T) {
	t.Parallel()

	s := ParseInterruptStatus([]byte{0x85, 0, 0, 0})
	assert.True(t, s.OpDone)
	assert.True(t, s.EventFifoAboveThresh)
	assert.True(t, s.AggregateOpDone)
	assert.False(t, s.Halted)
	assert.Equal(t, []byte{0x85, 0, 0, 0}, s.Bytes())
	assert.True(t, s.Any())
	assert.False(t, InterruptStatusFields{}.Any())
}

func TestGen2TxnControlsLayout(t *testing.T) {
	t.Parallel()

	c := Gen2TxnControlsFields{
		ResponseType: ResponseDelayed,
		HasHeaderBit: true,
		UseCoverCode: true,
		AppendHandle: true,
		AppendCRC16:  true,
		RxLength:     33,
	}
	b := c.Bytes()
	assert.Equal(t, []byte{0x7A, 0x00, 33, 0x00}, b)

	got, err := ParseGen2TxnControls(b)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestCommandResultAndValidity(t *testing.T) {
	t.Parallel()

	cr, err := ParseCommandResult([]byte{0x0E, 0x0B, 0x02, 0x01})
	require.NoError(t, err)
	assert.Equal(t, uint8(0x0E), cr.FailedResultCode)
	assert.Equal(t, uint8(0x0B), cr.FailedCommandCode)
	assert.Equal(t, uint16(0x0102), cr.CommandsSinceFirstError)

	v := ParseImageValidity([]byte{0x02})
	assert.False(t, v.ImageValid)
	assert.True(t, v.ImageNonValid)
	assert.Equal(t, Application, ParseStatus([]byte{2, 0}))
	assert.Equal(t, "Bootloader", Bootloader.String())
}

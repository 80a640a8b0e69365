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

package testing

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-ex10/aggregate"
	"github.com/ZaparooProject/go-ex10/eventfifo"
	"github.com/ZaparooProject/go-ex10/internal/frame"
	"github.com/ZaparooProject/go-ex10/registers"
)

func transact(t *testing.T, v *VirtualEx10, cmd []byte, n int) []byte {
	t.Helper()
	_, err := v.Write(cmd)
	require.NoError(t, err)
	if n == 0 {
		return nil
	}
	resp := make([]byte, n)
	_, err = v.Read(resp)
	require.NoError(t, err)
	return resp
}

func TestVirtualRegisterRoundTrip(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()

	resp := transact(t, v, BuildWriteCommand(registers.EventFifoIntLevel, []byte{0x10, 0x00}), 1)
	assert.Equal(t, []byte{StatusSuccess}, resp)

	resp = transact(t, v, BuildReadCommand(registers.EventFifoIntLevel, registers.Status), 5)
	assert.Equal(t, BuildReadResponse([]byte{0x10, 0x00}, BuildStatusRegister(registers.Application)), resp)
}

func TestVirtualMalformedAndUnknown(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()

	assert.Equal(t, []byte{StatusCommandMalformed}, transact(t, v, []byte{frame.OpRead, 0x00}, 1))
	assert.Equal(t, []byte{StatusCommandInvalid}, transact(t, v, []byte{0x7F}, 1))
	assert.Equal(t, []byte{StatusCommandInvalid}, transact(t, v, []byte{frame.OpCompleteUpload}, 1))
}

func TestVirtualCommandResultIsSticky(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()

	v.FailNext(StatusArgumentInvalid)
	assert.Equal(t, []byte{StatusArgumentInvalid}, transact(t, v, BuildReadCommand(registers.Status), 1))
	transact(t, v, []byte{0x7F}, 1)

	got := v.Memory(registers.CommandResult.Address, 4)
	assert.Equal(t, byte(StatusArgumentInvalid), got[0])
	assert.Equal(t, byte(frame.OpRead), got[1])
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(got[2:]))
}

func TestVirtualOpsAndInterrupts(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()
	transact(t, v, BuildWriteCommand(registers.InterruptMask, registers.InterruptStatusFields{OpDone: true}.Bytes()), 1)

	v.HoldOps(true)
	transact(t, v, BuildWriteCommand(registers.OpsControl, []byte{byte(registers.OpMeasureAdc)}), 1)
	resp := transact(t, v, BuildReadCommand(registers.OpsStatus), 5)
	assert.Equal(t, BuildOpsStatus(registers.OpMeasureAdc, true, registers.OpErrNone), resp[1:])

	fired, err := v.WaitForInterrupt(time.Millisecond)
	require.NoError(t, err)
	assert.False(t, fired)

	v.FinishOp()
	fired, err = v.WaitForInterrupt(time.Second)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, []registers.OpID{registers.OpMeasureAdc}, v.Ops())

	// reading InterruptStatus clears it
	resp = transact(t, v, BuildReadCommand(registers.InterruptStatus), 5)
	assert.Equal(t, byte(1), resp[1])
	resp = transact(t, v, BuildReadCommand(registers.InterruptStatus), 5)
	assert.Equal(t, byte(0), resp[1])
}

func TestVirtualEventFifo(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()
	pkt := eventfifo.MustBuild(eventfifo.TypeHelloWorld, 5, eventfifo.HelloWorld{Sku: 0x0710}, nil)

	v.PushEvent(pkt)
	assert.Equal(t, len(pkt), v.FifoLen())

	cmd := []byte{frame.OpReadFifo, frame.FifoEvent, 0, 0}
	binary.LittleEndian.PutUint16(cmd[2:], uint16(len(pkt)))
	resp := transact(t, v, cmd, 1+len(pkt))
	assert.Equal(t, pkt, resp[1:])
	assert.Zero(t, v.FifoLen())
}

func TestVirtualAggregateRun(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()

	b := aggregate.New(nil)
	require.NoError(t, b.AppendIdentifier(0x4242))
	require.NoError(t, b.AppendRegWrite(registers.EventFifoIntLevel, []byte{0x20, 0x00}))
	require.NoError(t, b.AppendRunOp(registers.OpMeasureAdc))
	require.NoError(t, b.AppendExit())
	v.SetMemory(registers.AggregateOpBuffer.Address, b.Bytes())

	transact(t, v, BuildWriteCommand(registers.OpsControl, []byte{byte(registers.OpAggregate)}), 1)
	assert.Equal(t, []byte{0x20, 0x00}, v.Memory(registers.EventFifoIntLevel.Address, 2))

	cmd := []byte{frame.OpReadFifo, frame.FifoEvent, 0, 0}
	binary.LittleEndian.PutUint16(cmd[2:], uint16(v.FifoLen()))
	resp := transact(t, v, cmd, 1+v.FifoLen())
	pkts := eventfifo.Decode(resp[1:])
	require.Len(t, pkts, 1)
	sum, err := pkts[0].AggregateOpSummary()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4242), sum.Identifier)
	assert.Equal(t, uint32(1), sum.WriteCount)
	assert.Equal(t, uint32(1), sum.OpRunCount)
}

func TestVirtualResetDestinations(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()

	assert.Nil(t, transact(t, v, []byte{frame.OpReset, 0x01}, 0))
	assert.Equal(t, registers.Bootloader, v.Location())
	assert.Nil(t, transact(t, v, []byte{frame.OpReset, 0x02}, 0))
	assert.Equal(t, registers.Application, v.Location())
	assert.Nil(t, transact(t, v, []byte{frame.OpReset, 0x00}, 0))
	assert.Equal(t, registers.Application, v.Location(), "unknown destinations are ignored")
}

func TestVirtualResetAndBootloader(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()
	v.SetImageValid(false)

	assert.Nil(t, transact(t, v, []byte{frame.OpReset, frame.DestApplication}, 0))
	assert.Equal(t, registers.Bootloader, v.Location())

	assert.Equal(t, []byte{StatusUploadStateInvalid}, transact(t, v, []byte{frame.OpContinueUpload, 1}, 1))
	transact(t, v, []byte{frame.OpStartUpload, frame.DestFlash, 1, 2}, 1)
	transact(t, v, []byte{frame.OpContinueUpload, 3}, 1)
	transact(t, v, []byte{frame.OpCompleteUpload}, 1)
	assert.Equal(t, []byte{1, 2, 3}, v.Image())

	require.NoError(t, v.AssertReset())
	v.SetImageValid(true)
	require.NoError(t, v.DeassertReset())
	assert.Equal(t, registers.Application, v.Location())
}

func TestVirtualInfoPage(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()
	v.SetLocation(registers.Bootloader)

	data := []byte{1, 2, 3, 4}
	cmd := append([]byte{frame.OpWriteInfoPage, 1}, data...)
	cmd = binary.LittleEndian.AppendUint16(cmd, frame.InfoPageCRC(data))
	assert.Equal(t, []byte{StatusSuccess}, transact(t, v, cmd, 1))
	page, ok := v.InfoPage(1)
	require.True(t, ok)
	assert.Equal(t, data, page)

	cmd[len(cmd)-1] ^= 0xFF
	assert.Equal(t, []byte{StatusBadCrc}, transact(t, v, cmd, 1))
}

func TestVirtualBurstViolations(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()
	v.SetBurstSize(8)

	transact(t, v, BuildReadCommand(registers.Status), 3)
	transact(t, v, BuildWriteCommand(registers.AggregateOpBuffer, make([]byte, 16)), 1)
	assert.Len(t, v.Transactions(), 2)
	require.Len(t, v.Violations(), 1)
	assert.Equal(t, byte(frame.OpWrite), v.Violations()[0].Cmd[0])
}

func TestVirtualClosed(t *testing.T) {
	t.Parallel()
	v := NewVirtualEx10()
	require.NoError(t, v.Close())

	_, err := v.Write([]byte{frame.OpRead})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, v.WaitReady(time.Millisecond), ErrClosed)

	v2 := NewVirtualEx10()
	v2.SetNotReady(true)
	require.ErrorIs(t, v2.WaitReady(time.Millisecond), ErrReadyTimeout)
}

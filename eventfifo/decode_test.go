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

package eventfifo

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  PacketType
		want int
	}{
		{TypeTxRampUp, 4},
		{TypeInventoryRoundSummary, 28},
		{TypeQChanged, 4},
		{TypeTagRead, 8},
		{TypeGen2Transaction, 4},
		{TypeContinuousInventorySummary, 16},
		{TypeHelloWorld, 8},
		{TypePowerControlLoopSummary, 8},
		{TypeAggregateOpSummary, 24},
		{TypeSjcMeasurement, 8},
		{TypeDebug, 0},
		{TypeWriteProfileData, 0},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			t.Parallel()
			got, ok := tt.typ.StaticSize()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := PacketType(0x42).StaticSize()
	assert.False(t, ok)
}

func TestDecodeStream(t *testing.T) {
	t.Parallel()

	hello := MustBuild(TypeHelloWorld, 10, HelloWorld{Sku: 0x0710, ResetReason: 1}, nil)
	rampUp := MustBuild(TypeTxRampUp, 20, TxRampUp{CarrierFrequency: 915250}, nil)
	summary := MustBuild(TypeInventoryRoundSummary, 30, InventoryRoundSummary{
		Reason: 1, FinalQ: 4, DurationUs: 12000, TotalSlots: 16, SingleSlots: 3,
	}, nil)

	var buf []byte
	buf = append(buf, hello...)
	buf = append(buf, rampUp...)
	buf = append(buf, summary...)
	buf = append(buf, make([]byte, 12)...)

	packets := Decode(buf)
	require.Len(t, packets, 3)
	for _, p := range packets {
		assert.True(t, p.Valid, p.Type.String())
	}
	assert.Equal(t, uint32(20), packets[1].Time)

	hw, err := packets[0].HelloWorld()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0710), hw.Sku)

	ru, err := packets[1].TxRampUp()
	require.NoError(t, err)
	assert.Equal(t, uint32(915250), ru.CarrierFrequency)

	rs, err := packets[2].InventoryRoundSummary()
	require.NoError(t, err)
	if diff := cmp.Diff(InventoryRoundSummary{
		Reason: 1, FinalQ: 4, DurationUs: 12000, TotalSlots: 16, SingleSlots: 3,
	}, rs); diff != "" {
		t.Errorf("InventoryRoundSummary mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeIsZeroCopy(t *testing.T) {
	t.Parallel()

	buf := MustBuild(TypeCustom, 0, Custom{PayloadLen: 4}, []byte{1, 2, 3, 4})
	p := Decode(buf)[0]
	buf[HeaderSize+4] = 0x99
	assert.Equal(t, byte(0x99), p.Dynamic[0])
}

func TestDecodeUnknownTypeMarkedInvalid(t *testing.T) {
	t.Parallel()

	unknown := MustBuild(PacketType(0x40), 0, nil, []byte{1, 2, 3, 4})
	next := MustBuild(TypeDebug, 5, nil, []byte("dbg!"))
	packets := Decode(append(unknown, next...))

	require.Len(t, packets, 2)
	assert.False(t, packets[0].Valid)
	assert.True(t, packets[1].Valid)
	assert.Equal(t, []byte("dbg!"), packets[1].Dynamic)

	_, err := packets[0].StaticFields()
	require.ErrorIs(t, err, ErrInvalidPacket)
}

func TestDecodeStaticLengthMismatch(t *testing.T) {
	t.Parallel()

	b := MustBuild(TypeTagRead, 0, TagRead{}, make([]byte, 8))
	b[2] = 4
	p := Decode(b)[0]
	assert.False(t, p.Valid)
}

func TestDecodeOverrunEndsIteration(t *testing.T) {
	t.Parallel()

	good := MustBuild(TypeHalted, 0, Halted{HaltedHandle: 0x1234}, nil)
	truncated := MustBuild(TypeCustom, 0, Custom{PayloadLen: 16}, make([]byte, 16))
	buf := append(append([]byte{}, good...), truncated[:12]...)

	d := NewDecoder(buf)
	p, ok := d.Next()
	require.True(t, ok)
	assert.True(t, p.Valid)

	p, ok = d.Next()
	require.True(t, ok)
	assert.False(t, p.Valid)

	_, ok = d.Next()
	assert.False(t, ok)
}

func TestDecodePaddingOnly(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Decode(make([]byte, 64)))
	assert.Empty(t, Decode(nil))
	assert.Empty(t, Decode([]byte{0x02, 0x01}))
}

func TestTagReadFields(t *testing.T) {
	t.Parallel()

	epc := []byte{0xE2, 0x00, 0x68, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99}
	tid := []byte{0xE2, 0x80, 0x11, 0x05, 0x20, 0x00, 0x41, 0x42}
	var dyn []byte
	dyn = append(dyn, 0x30, 0x00)
	dyn = append(dyn, epc...)
	dyn = append(dyn, 0xAB, 0xCD)
	tidOffset := len(dyn)
	dyn = append(dyn, tid...)

	b := MustBuild(TypeTagRead, 77, TagRead{
		Type:      TagReadEpcWithTid,
		TidOffset: uint8(tidOffset),
		Rssi:      0x0450,
	}, dyn)
	p := Decode(b)[0]
	require.True(t, p.Valid)

	got, err := TagReadFields(p)
	require.NoError(t, err)
	want := TagReadData{PC: 0x3000, EPC: epc, CRC: []byte{0xAB, 0xCD}, TID: tid}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("TagReadFields mismatch (-want +got):\n%s", diff)
	}

	tr, err := p.TagRead()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0450), tr.Rssi)

	_, err = p.Gen2Transaction()
	require.ErrorIs(t, err, ErrWrongType)
}

func TestTagReadFieldsShort(t *testing.T) {
	t.Parallel()

	b := MustBuild(TypeTagRead, 0, TagRead{Type: TagReadEpc}, []byte{0x30, 0x00, 0x01, 0x02})
	_, err := TagReadFields(Decode(b)[0])
	require.ErrorIs(t, err, ErrShortDynamic)
}

func TestBuildLayout(t *testing.T) {
	t.Parallel()

	b, err := Build(TypeGen2Transaction, 0x01020304, Gen2Transaction{TransactionID: 3, NumBits: 33}, []byte{0x00, 0x12, 0x34, 0x80, 0x00})
	require.NoError(t, err)
	assert.Len(t, b, 20)
	assert.Equal(t, []byte{5, byte(TypeGen2Transaction), 4, 0, 0x04, 0x03, 0x02, 0x01}, b[:8])
	assert.Equal(t, []byte{0, 3, 33, 0}, b[8:12])

	_, err = Build(TypeCustom, 0, Custom{}, make([]byte, MaxPacketSize))
	require.ErrorIs(t, err, ErrPacketTooLarge)

	assert.Equal(t, []byte{2, byte(TypeDebug), 0, 0, 0, 0, 0, 0}, EmptyPacket())
}

func TestCaptureRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	require.NoError(t, err)

	stream := append(
		MustBuild(TypeQChanged, 1, QChanged{NumSlots: 8, Q: 3}, nil),
		MustBuild(TypeSjcMeasurement, 2, SjcMeasurement{ResidueI: -12, ResidueQ: 40}, nil)...,
	)
	n, err := rec.RecordBuffer(stream)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, rec.Count())

	records, err := ReadCapture(&buf)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint32(1), records[1].Seq)

	sjc, err := records[1].Packet().SjcMeasurement()
	require.NoError(t, err)
	assert.Equal(t, int32(-12), sjc.ResidueI)
	assert.Equal(t, int32(40), sjc.ResidueQ)
}

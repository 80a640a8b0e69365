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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-ex10/registers"
)

type regWrite struct {
	data []byte
	reg  registers.Info
}

// fakeRegisters records writes and serves reads from what was written.
type fakeRegisters struct {
	err    error
	mem    map[uint16][]byte
	writes []regWrite
	multi  int
}

func newFakeRegisters() *fakeRegisters {
	return &fakeRegisters{mem: make(map[uint16][]byte)}
}

func (f *fakeRegisters) WriteRegister(_ context.Context, r registers.Info, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, regWrite{reg: r, data: append([]byte(nil), data...)})
	f.mem[r.Address] = append([]byte(nil), data...)
	return nil
}

func (f *fakeRegisters) WriteMultiple(ctx context.Context, regs []registers.Info, data [][]byte) error {
	f.multi++
	for i, r := range regs {
		if err := f.WriteRegister(ctx, r, data[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRegisters) ReadRegister(_ context.Context, r registers.Info) ([]byte, error) {
	b := make([]byte, r.Size())
	copy(b, f.mem[r.Address])
	return b, nil
}

func (f *fakeRegisters) last(r registers.Info) []byte {
	for i := len(f.writes) - 1; i >= 0; i-- {
		if f.writes[i].reg.Address == r.Address {
			return f.writes[i].data
		}
	}
	return nil
}

func TestManagerWriteLayout(t *testing.T) {
	t.Parallel()

	m := NewTxCommandManager(nil)
	idx, err := m.Append(Select{MemoryBank: SelectEPC}, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	idx, err = m.Append(Read{MemoryBank: BankTID, WordCount: 6}, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	regs := newFakeRegisters()
	require.NoError(t, m.Write(context.Background(), regs))
	assert.Equal(t, 1, regs.multi)
	require.Len(t, regs.writes, 5)
	assert.Equal(t, registers.Gen2TxBuffer.Address, regs.writes[4].reg.Address)

	offsets := regs.last(registers.Gen2Offsets)
	assert.Equal(t, []byte{0, 4, 0, 0, 0, 0, 0, 0, 0, 0}, offsets)
	lengths := regs.last(registers.Gen2Lengths)
	assert.Equal(t, []byte{29, 0, 26, 0}, lengths[:4])
	assert.Equal(t, make([]byte, 16), lengths[4:])
	ids := regs.last(registers.Gen2TransactionIds)
	assert.Equal(t, []byte{7, 9}, ids[:2])

	controls := regs.last(registers.Gen2TxnControls)
	require.Len(t, controls, 40)
	readCfg, err := registers.ParseGen2TxnControls(controls[4:8])
	require.NoError(t, err)
	assert.Equal(t, uint16(33+6*16), readCfg.RxLength)
	assert.Equal(t, make([]byte, 32), controls[8:])

	buf := regs.last(registers.Gen2TxBuffer)
	require.Len(t, buf, int(registers.Gen2TxBuffer.Length))
	assert.Equal(t, []byte{0xA0, 0x10, 0x00, 0x00, 0xC2, 0x80, 0x01, 0x80}, buf[:8])
}

func TestManagerSlotLimits(t *testing.T) {
	t.Parallel()

	m := NewTxCommandManager(nil)
	for i := 0; i < MaxCommands; i++ {
		_, err := m.Append(Access{Password: uint16(i)}, uint8(i))
		require.NoError(t, err)
	}
	_, err := m.Append(Access{}, 0)
	require.ErrorIs(t, err, ErrNumCommands)

	require.NoError(t, m.ClearIndex(3))
	idx, err := m.Append(Kill{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	require.ErrorIs(t, m.ClearIndex(MaxCommands), ErrNumCommands)

	m.Clear()
	for _, c := range m.Commands() {
		assert.False(t, c.Valid)
	}
}

func TestManagerBufferOverflow(t *testing.T) {
	t.Parallel()

	data := make([]byte, 2*0x40)
	m := NewTxCommandManager(nil)
	_, err := m.Append(BlockWrite{MemoryBank: BankUser, WordCount: 0x40, Data: SpanFromBytes(data)}, 0)
	require.NoError(t, err)

	regs := newFakeRegisters()
	err = m.Write(context.Background(), regs)
	require.ErrorIs(t, err, ErrBufferLength)
	assert.Empty(t, regs.writes)
}

func TestManagerAppendErrors(t *testing.T) {
	t.Parallel()

	m := NewTxCommandManager(nil)
	_, err := m.Append(Read{WordPointer: EBV83Max + 1}, 0)
	require.ErrorIs(t, err, ErrCommandEncode)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = m.AppendEncoded(SpanFromBytes([]byte{0x00, 0x00}), 0)
	require.ErrorIs(t, err, ErrCommandDecode)

	span, err := Encode(Write{MemoryBank: BankUser, Data: 0x55AA})
	require.NoError(t, err)
	idx, err := m.AppendEncoded(span, 4)
	require.NoError(t, err)
	got := m.Commands()[idx]
	assert.Equal(t, Write{MemoryBank: BankUser, Data: 0x55AA}, got.Decoded)
	assert.Equal(t, uint8(4), got.TransactionID)
}

func TestManagerEnables(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewTxCommandManager(nil)
	_, err := m.Append(Select{}, 0)
	require.NoError(t, err)
	_, err = m.Append(Read{WordCount: 1}, 1)
	require.NoError(t, err)

	regs := newFakeRegisters()
	require.NoError(t, m.WriteSelectEnables(ctx, regs, []bool{true}))
	assert.Equal(t, []byte{0x01, 0x00}, regs.last(registers.Gen2SelectEnable))

	require.NoError(t, m.WriteAccessEnables(ctx, regs, []bool{false, true}))
	assert.Equal(t, []byte{0x02, 0x00}, regs.last(registers.Gen2AccessEnable))

	err = m.WriteAutoAccessEnables(ctx, regs, []bool{true, true})
	require.ErrorIs(t, err, ErrCommandEnableMismatch)
	assert.Equal(t, []byte{0x03, 0x00}, regs.last(registers.Gen2AutoAccessEnable))

	before := len(regs.writes)
	err = m.WriteAccessEnables(ctx, regs, []bool{false, false, true})
	require.ErrorIs(t, err, ErrEnabledEmptyCommand)
	assert.Len(t, regs.writes, before)

	err = m.WriteSelectEnables(ctx, regs, make([]bool, MaxCommands+1))
	require.ErrorIs(t, err, ErrNumCommands)
}

func TestManagerClearDevice(t *testing.T) {
	t.Parallel()

	regs := newFakeRegisters()
	m := NewTxCommandManager(nil)
	require.NoError(t, m.ClearDevice(context.Background(), regs))
	require.Len(t, regs.writes, 4)
	assert.Equal(t, make([]byte, 20), regs.last(registers.Gen2Lengths))
	assert.Equal(t, []byte{0, 0}, regs.last(registers.Gen2AutoAccessEnable))

	regs.err = errors.New("bus fault")
	require.Error(t, m.ClearDevice(context.Background(), regs))
}

func TestManagerReadDevice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := NewTxCommandManager(nil)
	_, err := src.Append(Select{Target: TargetSL, MemoryBank: SelectTID}, 2)
	require.NoError(t, err)
	_, err = src.Append(Access{Password: 0x1111}, 3)
	require.NoError(t, err)
	regs := newFakeRegisters()
	require.NoError(t, src.Write(ctx, regs))

	dst := NewTxCommandManager(nil)
	require.NoError(t, dst.ReadDevice(ctx, regs))
	got := dst.Commands()
	require.True(t, got[0].Valid)
	require.True(t, got[1].Valid)
	assert.False(t, got[2].Valid)
	assert.Equal(t, Access{Password: 0x1111}, got[1].Decoded)
	assert.Equal(t, uint8(3), got[1].TransactionID)
	assert.True(t, got[0].Encoded.Equal(src.Commands()[0].Encoded))
}

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

func TestCatalogNoOverlap(t *testing.T) {
	t.Parallel()

	all := All()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		assert.LessOrEqual(t, prev.End(), int(cur.Address),
			"%s overlaps %s", prev.Name, cur.Name)
	}
	for _, r := range all {
		assert.LessOrEqual(t, r.End(), AddressSpace, r.Name)
	}
}

func TestBootloaderRegisters(t *testing.T) {
	t.Parallel()

	regs := BootloaderRegisters()
	assert.Equal(t, []Info{ImageValidity, FrefFreqBootloader}, regs)
	regs[0] = Info{}
	assert.Equal(t, ImageValidity, BootloaderRegisters()[0], "callers get a copy")
	assert.Equal(t, "Bootloader", Bootloader.String())
}

func TestByAddressAndName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr uint16
		want Info
	}{
		{name: "status", addr: 0x0006, want: Status},
		{name: "ops control", addr: 0x0300, want: OpsControl},
		{name: "txn controls", addr: 0x1060, want: Gen2TxnControls},
		{name: "calibration", addr: 0xE800, want: CalibrationInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ByAddress(tt.addr)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)

			byName, ok := ByName(tt.want.Name)
			require.True(t, ok)
			assert.Equal(t, tt.want, byName)
		})
	}

	_, ok := ByAddress(0x0001)
	assert.False(t, ok)
	r, ok := ByName("inventoryroundcontrol_2")
	require.True(t, ok)
	assert.Equal(t, uint16(0x1004), r.Address)
	r, ok = ByName("imagevalidity")
	require.True(t, ok)
	assert.Equal(t, ImageValidity, r)
}

func TestContaining(t *testing.T) {
	t.Parallel()

	r, ok := Containing(0x0705)
	require.True(t, ok)
	assert.Equal(t, AggregateOpBuffer, r)

	_, ok = Containing(0x0200)
	assert.False(t, ok)
}

func TestInfoGeometry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 40, Gen2TxnControls.Size())
	addr, err := Gen2TxnControls.EntryAddress(3)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x106C), addr)

	_, err = Gen2TxnControls.EntryAddress(10)
	require.Error(t, err)

	e, err := Gen2Lengths.Entry(9)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1042), e.Address)
	assert.Equal(t, 2, e.Size())

	p, err := VersionString.Partial(4, 8)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x000C), p.Address)
	assert.Equal(t, 8, p.Size())

	_, err = VersionString.Partial(30, 8)
	require.Error(t, err)
}

func TestAccessRights(t *testing.T) {
	t.Parallel()

	assert.True(t, Status.Readable())
	assert.False(t, Status.Writable())
	assert.True(t, InterruptMaskSet.Writable())
	assert.False(t, InterruptMaskSet.Readable())
	assert.True(t, OpsControl.Readable())
	assert.True(t, OpsControl.Writable())
	assert.Equal(t, "RW", ReadWrite.String())
}

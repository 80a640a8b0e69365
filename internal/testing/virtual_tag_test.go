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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-ex10/eventfifo"
	"github.com/ZaparooProject/go-ex10/gen2"
)

func execute(t *testing.T, tag *VirtualTag, cmd gen2.Command) (gen2.Reply, error) {
	t.Helper()
	pkts := eventfifo.Decode(tag.Execute(cmd, 7))
	require.Len(t, pkts, 1)
	return gen2.DecodeReply(cmd.Kind(), pkts[0])
}

func TestVirtualTagRead(t *testing.T) {
	t.Parallel()
	tag := NewVirtualTag(TestEPC, TestTID, 4)

	reply, err := execute(t, tag, gen2.Read{MemoryBank: gen2.BankTID, WordPointer: 0, WordCount: 2})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0xE280, 0x1160}, reply.Words)

	reply, err = execute(t, tag, gen2.Read{MemoryBank: gen2.BankEPC, WordPointer: 2})
	require.NoError(t, err)
	assert.Equal(t, TestEPC, reply.Words)

	reply, err = execute(t, tag, gen2.Read{MemoryBank: gen2.BankUser, WordPointer: 3, WordCount: 2})
	require.ErrorIs(t, err, gen2.ErrTagError)
	assert.Equal(t, gen2.TagErrMemoryOverrun, reply.ErrorCode)
}

func TestVirtualTagWrite(t *testing.T) {
	t.Parallel()
	tag := NewVirtualTag(TestEPC, TestTID, 4)

	reply, err := execute(t, tag, gen2.Write{MemoryBank: gen2.BankUser, WordPointer: 1, Data: 0xBEEF})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x5A5A}, reply.Words)

	data := gen2.SpanFromBytes([]byte{0x01, 0x02, 0x03, 0x04})
	_, err = execute(t, tag, gen2.BlockWrite{MemoryBank: gen2.BankUser, WordPointer: 2, WordCount: 2, Data: data})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0000, 0xBEEF, 0x0102, 0x0304}, tag.Words(gen2.BankUser))

	tag.LockBank(gen2.BankUser)
	reply, err = execute(t, tag, gen2.Write{MemoryBank: gen2.BankUser, Data: 1})
	require.ErrorIs(t, err, gen2.ErrTagError)
	assert.Equal(t, gen2.TagErrMemoryLocked, reply.ErrorCode)
}

func TestVirtualTagAccess(t *testing.T) {
	t.Parallel()
	tag := NewVirtualTag(TestEPC, TestTID, 2)
	tag.SetAccessPassword(0x12345678)

	reply, err := execute(t, tag, gen2.Write{MemoryBank: gen2.BankEPC, WordPointer: 2, Data: 1})
	require.ErrorIs(t, err, gen2.ErrTagError)
	assert.Equal(t, gen2.TagErrInsufficientPrivileges, reply.ErrorCode)

	_, err = execute(t, tag, gen2.Access{Password: 0xFFFF})
	require.ErrorIs(t, err, gen2.ErrTransactionFailed)

	_, err = execute(t, tag, gen2.Access{Password: 0x1234})
	require.NoError(t, err)
	_, err = execute(t, tag, gen2.Access{Password: 0x5678})
	require.NoError(t, err)

	_, err = execute(t, tag, gen2.Write{MemoryBank: gen2.BankEPC, WordPointer: 2, Data: 1})
	require.NoError(t, err)
	assert.Equal(t, uint16(1), tag.Words(gen2.BankEPC)[2])
}

func TestVirtualTagLockAndKill(t *testing.T) {
	t.Parallel()
	tag := NewVirtualTag(TestEPC, TestTID, 2)

	_, err := execute(t, tag, gen2.Lock{
		Mask:   gen2.LockBits{File0Write: true},
		Action: gen2.LockBits{File0Write: true},
	})
	require.NoError(t, err)
	_, err = execute(t, tag, gen2.Write{MemoryBank: gen2.BankUser, Data: 1})
	require.ErrorIs(t, err, gen2.ErrTagError)

	_, err = execute(t, tag, gen2.Kill{Password: 0})
	require.NoError(t, err)
	assert.False(t, tag.Killed())
	_, err = execute(t, tag, gen2.Kill{Password: 0, Second: true})
	require.NoError(t, err)
	assert.True(t, tag.Killed())

	_, err = execute(t, tag, gen2.Read{MemoryBank: gen2.BankTID})
	require.ErrorIs(t, err, gen2.ErrTransactionFailed)
}

func TestVirtualTagRemoved(t *testing.T) {
	t.Parallel()
	tag := NewVirtualTag(TestEPC, TestTID, 2)

	tag.Remove()
	_, err := execute(t, tag, gen2.Read{MemoryBank: gen2.BankTID})
	require.ErrorIs(t, err, gen2.ErrTransactionFailed)

	tag.Insert()
	_, err = execute(t, tag, gen2.Read{MemoryBank: gen2.BankTID})
	require.NoError(t, err)
}

func TestVirtualTagUnsupported(t *testing.T) {
	t.Parallel()
	tag := NewVirtualTag(TestEPC, TestTID, 2)

	pkts := eventfifo.Decode(tag.Execute(gen2.BlockPermalock{MemoryBank: gen2.BankUser}, 1))
	require.Len(t, pkts, 1)
	reply, err := gen2.DecodeReply(gen2.KindBlockPermalock, pkts[0])
	require.ErrorIs(t, err, gen2.ErrTagError)
	assert.Equal(t, gen2.TagErrNotSupported, reply.ErrorCode)
}

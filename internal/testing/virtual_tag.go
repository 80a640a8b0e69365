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
	"github.com/ZaparooProject/go-ex10/eventfifo"
	"github.com/ZaparooProject/go-ex10/gen2"
)

// VirtualTag is an in-memory Gen2 tag that answers access commands with
// the Gen2Transaction packets the Ex10 would report for them.
type VirtualTag struct {
	banks        map[gen2.MemoryBank][]uint16
	locked       map[gen2.MemoryBank]bool
	accessPwd    uint32
	handle       uint16
	secured      bool
	killed       bool
	present      bool
	accessPwdSet bool
	accessHalf   bool
}

// NewVirtualTag returns a present tag with the given EPC and TID and
// userWords words of zeroed User memory.
func NewVirtualTag(epc, tid []uint16, userWords int) *VirtualTag {
	// EPC bank: CRC, PC, then the EPC itself
	pc := uint16(len(epc)) << 11
	epcBank := append([]uint16{0x0000, pc}, epc...)
	return &VirtualTag{
		banks: map[gen2.MemoryBank][]uint16{
			gen2.BankReserved: make([]uint16, 4),
			gen2.BankEPC:      epcBank,
			gen2.BankTID:      append([]uint16(nil), tid...),
			gen2.BankUser:     make([]uint16, userWords),
		},
		locked:  make(map[gen2.MemoryBank]bool),
		handle:  0x5A5A,
		present: true,
		secured: true,
	}
}

// Sample tag contents.
var (
	TestEPC = []uint16{0x3000, 0xE280, 0x1160, 0x6000, 0x0209}
	TestTID = []uint16{0xE280, 0x1160, 0x2000, 0x7A3B, 0x0C2D, 0x0001}
)

// SetAccessPassword stores a password; a tag with one is not secured
// until an Access command presents it.
func (v *VirtualTag) SetAccessPassword(pwd uint32) {
	v.banks[gen2.BankReserved][2] = uint16(pwd >> 16)
	v.banks[gen2.BankReserved][3] = uint16(pwd)
	v.accessPwd = pwd
	v.accessPwdSet = pwd != 0
	v.secured = !v.accessPwdSet
}

// LockBank makes writes to bank fail with a memory locked error.
func (v *VirtualTag) LockBank(bank gen2.MemoryBank) {
	v.locked[bank] = true
}

// Words returns a copy of a memory bank.
func (v *VirtualTag) Words(bank gen2.MemoryBank) []uint16 {
	return append([]uint16(nil), v.banks[bank]...)
}

// Killed reports whether a full kill sequence has been received.
func (v *VirtualTag) Killed() bool {
	return v.killed
}

// Remove takes the tag out of the field
func (v *VirtualTag) Remove() {
	v.present = false
}

// Insert puts the tag back in the field
func (v *VirtualTag) Insert() {
	v.present = true
}

func (v *VirtualTag) reply(id uint8, bits int, payload []byte) []byte {
	return eventfifo.MustBuild(eventfifo.TypeGen2Transaction, 0,
		eventfifo.Gen2Transaction{TransactionID: id, NumBits: uint16(bits)}, payload)
}

func (v *VirtualTag) errorReply(id uint8, code gen2.TagErrorCode) []byte {
	return v.reply(id, 9, []byte{0x01, byte(code)})
}

// noReply is the failed transaction reported when the tag stays silent.
func (v *VirtualTag) noReply(id uint8) []byte {
	return eventfifo.MustBuild(eventfifo.TypeGen2Transaction, 0,
		eventfifo.Gen2Transaction{Status: 1, TransactionID: id}, nil)
}

// handleReply is the header bit followed by the tag handle.
func (v *VirtualTag) handleReply(id uint8) []byte {
	return v.reply(id, 17, []byte{0x00, byte(v.handle >> 8), byte(v.handle)})
}

// Execute runs cmd against the tag and returns the Gen2Transaction packet
// for it. A removed or killed tag does not answer and Execute returns a
// failed transaction.
func (v *VirtualTag) Execute(cmd gen2.Command, id uint8) []byte {
	if !v.present || v.killed {
		return v.noReply(id)
	}
	switch c := cmd.(type) {
	case gen2.Read:
		return v.read(c, id)
	case gen2.Write:
		return v.write(c.MemoryBank, c.WordPointer, []uint16{c.Data}, id)
	case gen2.BlockWrite:
		return v.write(c.MemoryBank, c.WordPointer, spanWords(c.Data), id)
	case gen2.Access:
		return v.access(c, id)
	case gen2.Kill:
		if c.Second {
			v.killed = true
			return v.handleReply(id)
		}
		return v.reply(id, 16, []byte{byte(v.handle >> 8), byte(v.handle)})
	case gen2.Lock:
		if !v.secured {
			return v.errorReply(id, gen2.TagErrInsufficientPrivileges)
		}
		v.applyLock(c)
		return v.handleReply(id)
	default:
		return v.errorReply(id, gen2.TagErrNotSupported)
	}
}

func (v *VirtualTag) read(c gen2.Read, id uint8) []byte {
	bank := v.banks[c.MemoryBank]
	start := int(c.WordPointer)
	end := len(bank)
	if c.WordCount != 0 {
		end = start + int(c.WordCount)
	}
	if start > len(bank) || end > len(bank) {
		return v.errorReply(id, gen2.TagErrMemoryOverrun)
	}
	payload := []byte{0x00}
	for _, w := range bank[start:end] {
		payload = append(payload, byte(w>>8), byte(w))
	}
	return v.reply(id, 1+16*(end-start), payload)
}

func (v *VirtualTag) write(bankID gen2.MemoryBank, ptr uint32, words []uint16, id uint8) []byte {
	if !v.secured && bankID != gen2.BankUser {
		return v.errorReply(id, gen2.TagErrInsufficientPrivileges)
	}
	if v.locked[bankID] {
		return v.errorReply(id, gen2.TagErrMemoryLocked)
	}
	bank := v.banks[bankID]
	if int(ptr)+len(words) > len(bank) {
		return v.errorReply(id, gen2.TagErrMemoryOverrun)
	}
	copy(bank[ptr:], words)
	return v.handleReply(id)
}

// access takes the password high half first, then the low half.
func (v *VirtualTag) access(c gen2.Access, id uint8) []byte {
	want := uint16(v.accessPwd >> 16)
	if v.accessHalf {
		want = uint16(v.accessPwd)
	}
	if c.Password != want {
		v.accessHalf = false
		return v.noReply(id)
	}
	if v.accessHalf {
		v.secured = true
	}
	v.accessHalf = !v.accessHalf
	return v.reply(id, 16, []byte{byte(v.handle >> 8), byte(v.handle)})
}

func (v *VirtualTag) applyLock(c gen2.Lock) {
	set := func(mask, action bool, bank gen2.MemoryBank) {
		if mask {
			v.locked[bank] = action
		}
	}
	set(c.Mask.EPCWrite, c.Action.EPCWrite, gen2.BankEPC)
	set(c.Mask.TIDWrite, c.Action.TIDWrite, gen2.BankTID)
	set(c.Mask.File0Write, c.Action.File0Write, gen2.BankUser)
}

func spanWords(s gen2.BitSpan) []uint16 {
	b := s.Bytes()
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}

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

import "fmt"

// Kind identifies a Gen2 command.
type Kind uint8

const (
	KindSelect Kind = iota
	KindRead
	KindWrite
	KindKill1
	KindKill2
	KindLock
	KindAccess
	KindBlockWrite
	KindBlockPermalock
	KindAuthenticate
)

var kindNames = [...]string{
	"Select", "Read", "Write", "Kill1", "Kill2", "Lock", "Access",
	"BlockWrite", "BlockPermalock", "Authenticate",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Command opcodes.
const (
	OpSelect         = 0xA // 4-bit prefix
	OpRead           = 0xC2
	OpWrite          = 0xC3
	OpKill           = 0xC4
	OpLock           = 0xC5
	OpAccess         = 0xC6
	OpBlockWrite     = 0xC7
	OpBlockPermalock = 0xC9
	OpAuthenticate   = 0xD5
)

// Command is one of the command structs of this package.
type Command interface {
	Kind() Kind
}

// SelectTarget is the flag a Select modifies.
type SelectTarget uint8

const (
	TargetSession0 SelectTarget = iota
	TargetSession1
	TargetSession2
	TargetSession3
	TargetSL
)

// SelectAction is the Gen2 Select action code (0-7).
type SelectAction uint8

const (
	Action000 SelectAction = iota
	Action001
	Action010
	Action011
	Action100
	Action101
	Action110
	Action111
)

// SelectMemoryBank is the bank a Select mask is compared against.
type SelectMemoryBank uint8

const (
	SelectFileType SelectMemoryBank = iota
	SelectEPC
	SelectTID
	SelectFile0
)

// MemoryBank addresses tag memory for access commands.
type MemoryBank uint8

const (
	BankReserved MemoryBank = iota
	BankEPC
	BankTID
	BankUser
)

func (b MemoryBank) String() string {
	switch b {
	case BankReserved:
		return "Reserved"
	case BankEPC:
		return "EPC"
	case BankTID:
		return "TID"
	case BankUser:
		return "User"
	default:
		return fmt.Sprintf("MemoryBank(%d)", uint8(b))
	}
}

// Select filters the tag population.
type Select struct {
	Mask       BitSpan
	BitPointer uint32
	Target     SelectTarget
	Action     SelectAction
	MemoryBank SelectMemoryBank
	BitCount   uint8
	Truncate   bool
}

// Read reads WordCount words from a memory bank. A zero count reads to
// the end of the bank.
type Read struct {
	WordPointer uint32
	MemoryBank  MemoryBank
	WordCount   uint8
}

// Write writes one word.
type Write struct {
	WordPointer uint32
	Data        uint16
	MemoryBank  MemoryBank
}

// Kill carries one half of the kill password. Second selects the second
// phase of the two-step exchange.
type Kill struct {
	Password uint16
	Second   bool
}

// LockBits is one set of the ten Lock payload flags.
type LockBits struct {
	KillPasswordReadWrite   bool
	KillPasswordPermalock   bool
	AccessPasswordReadWrite bool
	AccessPasswordPermalock bool
	EPCWrite                bool
	EPCPermalock            bool
	TIDWrite                bool
	TIDPermalock            bool
	File0Write              bool
	File0Permalock          bool
}

func (b LockBits) list() [10]bool {
	return [10]bool{
		b.KillPasswordReadWrite, b.KillPasswordPermalock,
		b.AccessPasswordReadWrite, b.AccessPasswordPermalock,
		b.EPCWrite, b.EPCPermalock,
		b.TIDWrite, b.TIDPermalock,
		b.File0Write, b.File0Permalock,
	}
}

func lockBitsFrom(v [10]bool) LockBits {
	return LockBits{
		KillPasswordReadWrite: v[0], KillPasswordPermalock: v[1],
		AccessPasswordReadWrite: v[2], AccessPasswordPermalock: v[3],
		EPCWrite: v[4], EPCPermalock: v[5],
		TIDWrite: v[6], TIDPermalock: v[7],
		File0Write: v[8], File0Permalock: v[9],
	}
}

// Lock changes lock state: Mask selects which flags Action applies to.
type Lock struct {
	Mask   LockBits
	Action LockBits
}

// Access carries one half of the access password.
type Access struct {
	Password uint16
}

// BlockWrite writes WordCount words; Data must hold 16*WordCount bits.
type BlockWrite struct {
	Data        BitSpan
	WordPointer uint32
	MemoryBank  MemoryBank
	WordCount   uint8
}

// ReadLock selects the BlockPermalock operation.
type ReadLock uint8

const (
	// ReadLockRead reads permalock status.
	ReadLockRead ReadLock = 0
	// ReadLockPermalock permalocks the blocks set in Mask.
	ReadLockPermalock ReadLock = 1
)

// BlockPermalock reads or sets permalock state for BlockRange 16-block
// ranges. Mask carries 16*BlockRange bits when permalocking and is empty
// when reading.
type BlockPermalock struct {
	Mask         BitSpan
	BlockPointer uint32
	ReadLock     ReadLock
	MemoryBank   MemoryBank
	BlockRange   uint8
}

// Authenticate sends a crypto suite message. RepLenBits is the expected
// tag reply length; it is not transmitted but sizes the receive window.
type Authenticate struct {
	Message    BitSpan
	Length     uint16
	RepLenBits uint16
	CSI        uint8
	SendRep    bool
	IncRepLen  bool
}

func (Select) Kind() Kind         { return KindSelect }
func (Read) Kind() Kind           { return KindRead }
func (Write) Kind() Kind          { return KindWrite }
func (Lock) Kind() Kind           { return KindLock }
func (Access) Kind() Kind         { return KindAccess }
func (BlockWrite) Kind() Kind     { return KindBlockWrite }
func (BlockPermalock) Kind() Kind { return KindBlockPermalock }
func (Authenticate) Kind() Kind   { return KindAuthenticate }

func (k Kill) Kind() Kind {
	if k.Second {
		return KindKill2
	}
	return KindKill1
}

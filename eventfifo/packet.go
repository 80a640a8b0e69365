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

// Package eventfifo decodes and builds Ex10 event fifo packets.
//
// Every packet is a whole number of 32-bit words:
//
//	off 0  u8  packet length in words, header included
//	off 1  u8  packet type
//	off 2  u8  static region length in bytes
//	off 3  u8  reserved
//	off 4  u32 device microsecond counter
//	off 8  static region, then dynamic region, zero padded
//
// Decoded packets are views into the caller's buffer and are only valid
// while that buffer is held.
package eventfifo

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed packet header length in bytes.
const HeaderSize = 8

// PacketType identifies the static layout of a packet.
type PacketType uint8

const (
	TypeInvalid                    PacketType = 0x00
	TypeTxRampUp                   PacketType = 0x01
	TypeTxRampDown                 PacketType = 0x02
	TypeInventoryRoundSummary      PacketType = 0x03
	TypeQChanged                   PacketType = 0x04
	TypeTagRead                    PacketType = 0x05
	TypeGen2Transaction            PacketType = 0x06
	TypeContinuousInventorySummary PacketType = 0x07
	TypeHelloWorld                 PacketType = 0x08
	TypeCustom                     PacketType = 0x09
	TypePowerControlLoopSummary    PacketType = 0x0A
	TypeMeasureRssiSummary         PacketType = 0x0B
	TypeAggregateOpSummary         PacketType = 0x0C
	TypeHalted                     PacketType = 0x0D
	TypeSjcMeasurement             PacketType = 0x0E
	TypeDebug                      PacketType = 0x0F
	TypeWriteProfileData           PacketType = 0x10
)

var typeNames = map[PacketType]string{
	TypeTxRampUp:                   "TxRampUp",
	TypeTxRampDown:                 "TxRampDown",
	TypeInventoryRoundSummary:      "InventoryRoundSummary",
	TypeQChanged:                   "QChanged",
	TypeTagRead:                    "TagRead",
	TypeGen2Transaction:            "Gen2Transaction",
	TypeContinuousInventorySummary: "ContinuousInventorySummary",
	TypeHelloWorld:                 "HelloWorld",
	TypeCustom:                     "Custom",
	TypePowerControlLoopSummary:    "PowerControlLoopSummary",
	TypeMeasureRssiSummary:         "MeasureRssiSummary",
	TypeAggregateOpSummary:         "AggregateOpSummary",
	TypeHalted:                     "Halted",
	TypeSjcMeasurement:             "SjcMeasurement",
	TypeDebug:                      "Debug",
	TypeWriteProfileData:           "WriteProfileData",
}

func (t PacketType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("PacketType(0x%02X)", uint8(t))
}

// Known reports whether t is a packet type this package can decode.
func (t PacketType) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// StaticSize returns the static region length a packet of type t carries.
func (t PacketType) StaticSize() (int, bool) {
	if !t.Known() {
		return 0, false
	}
	proto := newStatic(t)
	if proto == nil {
		return 0, true
	}
	return binary.Size(proto), true
}

// Packet is a decoded view of one fifo packet.
type Packet struct {
	// Raw is the whole packet including padding.
	Raw     []byte
	Static  []byte
	Dynamic []byte
	// Time is the device microsecond counter when the packet was queued.
	Time  uint32
	Type  PacketType
	Valid bool
}

// Len returns the packet size in bytes.
func (p Packet) Len() int {
	return len(p.Raw)
}

// TxRampUp is the static region of a TxRampUp packet.
type TxRampUp struct {
	CarrierFrequency uint32
}

// TxRampDown is the static region of a TxRampDown packet.
type TxRampDown struct {
	Reason uint32
}

// InventoryRoundSummary closes one inventory round.
type InventoryRoundSummary struct {
	Reason        uint8
	FinalQ        uint8
	MinQCount     uint8
	Rfu           uint8
	DurationUs    uint32
	TotalSlots    uint32
	NumSlots      uint32
	EmptySlots    uint32
	SingleSlots   uint32
	CollidedSlots uint32
}

// QChanged reports a Q algorithm adjustment.
type QChanged struct {
	NumSlots uint16
	Q        uint8
	Sign     uint8
}

// TagReadType says what follows the EPC in a TagRead dynamic region.
type TagReadType uint8

const (
	TagReadNone TagReadType = iota
	TagReadEpc
	TagReadEpcWithTid
	TagReadEpcWithFastIDTid
)

// TagRead is the static region of a TagRead packet.
type TagRead struct {
	Type        TagReadType
	TidOffset   uint8
	HaltedOnTag uint8
	Rfu         uint8
	Rssi        uint16
	Rfu2        uint16
}

// Gen2Transaction carries a tag reply to a Gen2 access command.
type Gen2Transaction struct {
	Status        uint8
	TransactionID uint8
	NumBits       uint16
}

// Gen2TransactionOK is the Gen2Transaction status for a complete reply.
const Gen2TransactionOK = 0

// ContinuousInventorySummary closes a continuous inventory run.
type ContinuousInventorySummary struct {
	DurationUs              uint32
	NumberOfInventoryRounds uint32
	NumberOfTags            uint32
	Reason                  uint8
	LastOpID                uint8
	LastOpError             uint8
	Rfu                     uint8
}

// HelloWorld is emitted once after the application boots.
type HelloWorld struct {
	Sku         uint16
	ResetReason uint16
	CrashInfo   uint32
}

// Custom announces an opaque host-defined payload in the dynamic region.
type Custom struct {
	PayloadLen uint32
}

// PowerControlLoopSummary closes a power control loop op.
type PowerControlLoopSummary struct {
	FinalTxFineGain uint16
	FinalError      int16
	IterationCount  uint8
	Rfu             uint8
	Rfu2            uint16
}

// MeasureRssiSummary reports a MeasureRssi op result.
type MeasureRssiSummary struct {
	RssiLog2 uint16
	Rfu      uint16
}

// AggregateOpSummary closes an aggregate op run.
type AggregateOpSummary struct {
	OpRunCount           uint32
	WriteCount           uint32
	InsertFifoCount      uint32
	TotalJumpCount       uint32
	FinalBufferByteIndex uint16
	LastInnerOpRun       uint8
	LastInnerOpError     uint8
	Identifier           uint16
	Rfu                  uint16
}

// Halted reports the handle of the tag the reader halted on.
type Halted struct {
	HaltedHandle uint16
	Rfu          uint16
}

// SjcMeasurement reports self-jammer cancellation residue.
type SjcMeasurement struct {
	ResidueI int32
	ResidueQ int32
}

func newStatic(t PacketType) any {
	switch t {
	case TypeTxRampUp:
		return &TxRampUp{}
	case TypeTxRampDown:
		return &TxRampDown{}
	case TypeInventoryRoundSummary:
		return &InventoryRoundSummary{}
	case TypeQChanged:
		return &QChanged{}
	case TypeTagRead:
		return &TagRead{}
	case TypeGen2Transaction:
		return &Gen2Transaction{}
	case TypeContinuousInventorySummary:
		return &ContinuousInventorySummary{}
	case TypeHelloWorld:
		return &HelloWorld{}
	case TypeCustom:
		return &Custom{}
	case TypePowerControlLoopSummary:
		return &PowerControlLoopSummary{}
	case TypeMeasureRssiSummary:
		return &MeasureRssiSummary{}
	case TypeAggregateOpSummary:
		return &AggregateOpSummary{}
	case TypeHalted:
		return &Halted{}
	case TypeSjcMeasurement:
		return &SjcMeasurement{}
	default:
		return nil
	}
}

// StaticFields decodes the static region into its typed struct, returned
// as a pointer (for example *TagRead). Types without a static region and
// invalid packets yield an error.
func (p Packet) StaticFields() (any, error) {
	if !p.Valid {
		return nil, ErrInvalidPacket
	}
	v := newStatic(p.Type)
	if v == nil {
		return nil, fmt.Errorf("%s: %w", p.Type, ErrNoStatic)
	}
	if err := binary.Read(bytes.NewReader(p.Static), binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("%s static: %w", p.Type, err)
	}
	return v, nil
}

func staticAs[T any](p Packet, want PacketType) (T, error) {
	var zero T
	if p.Type != want {
		return zero, fmt.Errorf("packet is %s, not %s: %w", p.Type, want, ErrWrongType)
	}
	v, err := p.StaticFields()
	if err != nil {
		return zero, err
	}
	return *(v.(*T)), nil
}

// TagRead decodes a TagRead static region.
func (p Packet) TagRead() (TagRead, error) {
	return staticAs[TagRead](p, TypeTagRead)
}

// Gen2Transaction decodes a Gen2Transaction static region.
func (p Packet) Gen2Transaction() (Gen2Transaction, error) {
	return staticAs[Gen2Transaction](p, TypeGen2Transaction)
}

// InventoryRoundSummary decodes an InventoryRoundSummary static region.
func (p Packet) InventoryRoundSummary() (InventoryRoundSummary, error) {
	return staticAs[InventoryRoundSummary](p, TypeInventoryRoundSummary)
}

// ContinuousInventorySummary decodes a ContinuousInventorySummary static
// region.
func (p Packet) ContinuousInventorySummary() (ContinuousInventorySummary, error) {
	return staticAs[ContinuousInventorySummary](p, TypeContinuousInventorySummary)
}

// AggregateOpSummary decodes an AggregateOpSummary static region.
func (p Packet) AggregateOpSummary() (AggregateOpSummary, error) {
	return staticAs[AggregateOpSummary](p, TypeAggregateOpSummary)
}

// HelloWorld decodes a HelloWorld static region.
func (p Packet) HelloWorld() (HelloWorld, error) {
	return staticAs[HelloWorld](p, TypeHelloWorld)
}

// TxRampUp decodes a TxRampUp static region.
func (p Packet) TxRampUp() (TxRampUp, error) {
	return staticAs[TxRampUp](p, TypeTxRampUp)
}

// PowerControlLoopSummary decodes a PowerControlLoopSummary static region.
func (p Packet) PowerControlLoopSummary() (PowerControlLoopSummary, error) {
	return staticAs[PowerControlLoopSummary](p, TypePowerControlLoopSummary)
}

// SjcMeasurement decodes a SjcMeasurement static region.
func (p Packet) SjcMeasurement() (SjcMeasurement, error) {
	return staticAs[SjcMeasurement](p, TypeSjcMeasurement)
}

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

// Package registers is the static catalog of Ex10 device registers.
//
// Every register the host touches is described by an Info value: its
// name, 16-bit address, per-entry length, entry count and access rights.
// The catalog is immutable; callers receive copies.
package registers

import (
	"fmt"
	"sort"
	"strings"
)

// Access describes what the host may do with a register.
type Access uint8

const (
	// ReadOnly registers may only be read.
	ReadOnly Access = iota
	// WriteOnly registers may only be written.
	WriteOnly
	// ReadWrite registers may be read and written.
	ReadWrite
	// Restricted registers are reserved for firmware use.
	Restricted
)

// String returns the short access mnemonic.
func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "RO"
	case WriteOnly:
		return "WO"
	case ReadWrite:
		return "RW"
	case Restricted:
		return "Restricted"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// AddressSpace is the size of the 16-bit register address space.
const AddressSpace = 0x10000

// Info describes one register.
type Info struct {
	Name       string
	Address    uint16
	Length     uint16
	NumEntries uint16
	Access     Access
}

// Size returns the total number of bytes covered by the register.
func (i Info) Size() int {
	n := int(i.NumEntries)
	if n == 0 {
		n = 1
	}
	return int(i.Length) * n
}

// EntryAddress returns the address of entry idx.
func (i Info) EntryAddress(idx int) (uint16, error) {
	if idx < 0 || idx >= int(max(i.NumEntries, 1)) {
		return 0, fmt.Errorf("%s: entry %d out of range [0,%d)", i.Name, idx, max(i.NumEntries, 1))
	}
	return i.Address + uint16(idx)*i.Length, nil
}

// End returns the first address past the register.
func (i Info) End() int {
	return int(i.Address) + i.Size()
}

// Readable reports whether the host may read the register.
func (i Info) Readable() bool {
	return i.Access == ReadOnly || i.Access == ReadWrite
}

// Writable reports whether the host may write the register.
func (i Info) Writable() bool {
	return i.Access == WriteOnly || i.Access == ReadWrite
}

// Entry returns a single-entry view of entry idx.
func (i Info) Entry(idx int) (Info, error) {
	addr, err := i.EntryAddress(idx)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:       fmt.Sprintf("%s[%d]", i.Name, idx),
		Address:    addr,
		Length:     i.Length,
		NumEntries: 1,
		Access:     i.Access,
	}, nil
}

// Partial returns a view covering length bytes starting offset bytes into
// the register.
func (i Info) Partial(offset, length int) (Info, error) {
	if offset < 0 || length <= 0 || offset+length > i.Size() {
		return Info{}, fmt.Errorf("%s: partial [%d,+%d) outside %d bytes", i.Name, offset, length, i.Size())
	}
	return Info{
		Name:       i.Name,
		Address:    i.Address + uint16(offset),
		Length:     uint16(length),
		NumEntries: 1,
		Access:     i.Access,
	}, nil
}

func (i Info) String() string {
	return fmt.Sprintf("%s@0x%04X[%dx%d %s]", i.Name, i.Address, i.Length, max(i.NumEntries, 1), i.Access)
}

func reg(name string, addr, length, entries uint16, access Access) Info {
	return Info{Name: name, Address: addr, Length: length, NumEntries: entries, Access: access}
}

// Application registers.
var (
	CommandResult     = reg("CommandResult", 0x0000, 4, 1, ReadOnly)
	ResetCause        = reg("ResetCause", 0x0004, 2, 1, ReadOnly)
	Status            = reg("Status", 0x0006, 2, 1, ReadOnly)
	VersionString     = reg("VersionString", 0x0008, 0x20, 1, ReadOnly)
	BuildNumber       = reg("BuildNumber", 0x0028, 4, 1, ReadOnly)
	GitHash           = reg("GitHash", 0x002C, 4, 1, ReadOnly)
	Timestamp         = reg("Timestamp", 0x0030, 4, 1, ReadOnly)
	FrefFreq          = reg("FrefFreq", 0x0034, 4, 1, ReadOnly)
	ProductSku        = reg("ProductSku", 0x0068, 8, 1, ReadOnly)
	SerialNumber      = reg("SerialNumber", 0x0070, 0x20, 1, ReadOnly)
	DeviceInfo        = reg("DeviceInfo", 0x0090, 4, 1, ReadOnly)
	DeviceBuild       = reg("DeviceBuild", 0x0094, 4, 1, ReadOnly)
	RtlRevision       = reg("RtlRevision", 0x0098, 4, 1, ReadOnly)
	InterruptMask     = reg("InterruptMask", 0x00A0, 4, 1, ReadWrite)
	InterruptMaskSet  = reg("InterruptMaskSet", 0x00A4, 4, 1, WriteOnly)
	InterruptMaskClr  = reg("InterruptMaskClear", 0x00A8, 4, 1, WriteOnly)
	InterruptStatus   = reg("InterruptStatus", 0x00AC, 4, 1, ReadOnly)
	EventFifoNumBytes = reg("EventFifoNumBytes", 0x00B0, 2, 1, ReadOnly)
	EventFifoIntLevel = reg("EventFifoIntLevel", 0x00B2, 2, 1, ReadWrite)
	GpioOutputEnable  = reg("GpioOutputEnable", 0x00B4, 4, 1, ReadWrite)
	GpioOutputLevel   = reg("GpioOutputLevel", 0x00B8, 4, 1, ReadWrite)

	PowerControlLoopAuxAdcControl   = reg("PowerControlLoopAuxAdcControl", 0x00BC, 4, 1, ReadWrite)
	PowerControlLoopGainDivisor     = reg("PowerControlLoopGainDivisor", 0x00C0, 4, 1, ReadWrite)
	PowerControlLoopMaxIterations   = reg("PowerControlLoopMaxIterations", 0x00C4, 4, 1, ReadWrite)
	PowerControlLoopInitialTxScalar = reg("PowerControlLoopInitialTxScalar", 0x00C8, 4, 1, ReadWrite)
	PowerControlLoopAdcTarget       = reg("PowerControlLoopAdcTarget", 0x00CC, 4, 1, ReadWrite)
	PowerControlLoopAdcThresholds   = reg("PowerControlLoopAdcThresholds", 0x00D0, 4, 1, ReadWrite)
	DelayUs                         = reg("DelayUs", 0x00D4, 4, 1, ReadWrite)

	OpsControl                   = reg("OpsControl", 0x0300, 1, 1, ReadWrite)
	OpsStatus                    = reg("OpsStatus", 0x0304, 4, 1, ReadOnly)
	HaltedControl                = reg("HaltedControl", 0x0308, 4, 1, ReadWrite)
	HaltedStatus                 = reg("HaltedStatus", 0x030C, 4, 1, ReadOnly)
	LogTestPeriod                = reg("LogTestPeriod", 0x0320, 4, 1, ReadWrite)
	LogTestWordRepeat            = reg("LogTestWordRepeat", 0x0324, 4, 1, ReadWrite)
	EventFifoTestPeriod          = reg("EventFifoTestPeriod", 0x0328, 4, 1, ReadWrite)
	EventFifoTestPayloadNumWords = reg("EventFifoTestPayloadNumWords", 0x032C, 4, 1, ReadWrite)
	LogSpeed                     = reg("LogSpeed", 0x0330, 2, 1, ReadWrite)
	LogEnables                   = reg("LogEnables", 0x0334, 4, 1, ReadWrite)
	BerControl                   = reg("BerControl", 0x0338, 4, 1, ReadWrite)
	BerMode                      = reg("BerMode", 0x033C, 1, 1, ReadWrite)
	ModemDataControl             = reg("ModemDataControl", 0x0340, 4, 1, ReadWrite)

	AuxAdcControl  = reg("AuxAdcControl", 0x0400, 2, 1, ReadWrite)
	AuxAdcResults  = reg("AuxAdcResults", 0x0404, 2, 15, ReadOnly)
	AuxDacControl  = reg("AuxDacControl", 0x0430, 2, 1, ReadWrite)
	AuxDacSettings = reg("AuxDacSettings", 0x0432, 2, 2, ReadWrite)
	ATestMux       = reg("ATestMux", 0x0440, 4, 4, ReadWrite)

	RfSynthesizerControl = reg("RfSynthesizerControl", 0x0500, 4, 1, ReadWrite)
	TxFineGain           = reg("TxFineGain", 0x0504, 4, 1, ReadWrite)
	RxGainControl        = reg("RxGainControl", 0x0508, 4, 1, ReadWrite)
	TxCoarseGain         = reg("TxCoarseGain", 0x050C, 4, 1, ReadWrite)
	RfMode               = reg("RfMode", 0x0514, 4, 1, ReadWrite)
	DcOffset             = reg("DcOffset", 0x0518, 4, 1, ReadWrite)
	EtsiBurstOffTime     = reg("EtsiBurstOffTime", 0x051C, 4, 1, ReadWrite)
	CwIsOn               = reg("CwIsOn", 0x0520, 4, 1, ReadOnly)

	SjcControl             = reg("SjcControl", 0x0600, 2, 1, ReadWrite)
	SjcGainControl         = reg("SjcGainControl", 0x0604, 4, 1, ReadWrite)
	SjcInitialSettlingTime = reg("SjcInitialSettlingTime", 0x0608, 2, 1, ReadWrite)
	SjcResidueSettlingTime = reg("SjcResidueSettlingTime", 0x060C, 2, 1, ReadWrite)
	SjcCdacI               = reg("SjcCdacI", 0x0610, 4, 1, ReadWrite)
	SjcCdacQ               = reg("SjcCdacQ", 0x0614, 4, 1, ReadWrite)
	SjcResultI             = reg("SjcResultI", 0x0618, 4, 1, ReadOnly)
	SjcResultQ             = reg("SjcResultQ", 0x061C, 4, 1, ReadOnly)
	SjcResidueThreshold    = reg("SjcResidueThreshold", 0x0620, 2, 1, ReadWrite)

	AnalogEnable      = reg("AnalogEnable", 0x0700, 4, 1, ReadWrite)
	AggregateOpBuffer = reg("AggregateOpBuffer", 0x0704, 0x100, 1, ReadWrite)

	RssiThresholdRn16 = reg("RssiThresholdRn16", 0x0FFC, 2, 1, ReadWrite)
	RssiThresholdEpc  = reg("RssiThresholdEpc", 0x0FFE, 2, 1, ReadWrite)

	InventoryRoundControl  = reg("InventoryRoundControl", 0x1000, 4, 1, ReadWrite)
	InventoryRoundControl2 = reg("InventoryRoundControl_2", 0x1004, 4, 1, ReadWrite)
	NominalStopTime        = reg("NominalStopTime", 0x1008, 2, 1, ReadWrite)
	ExtendedStopTime       = reg("ExtendedStopTime", 0x100C, 2, 1, ReadWrite)
	RegulatoryStopTime     = reg("RegulatoryStopTime", 0x1010, 2, 1, ReadWrite)

	Gen2SelectEnable     = reg("Gen2SelectEnable", 0x1014, 2, 1, ReadWrite)
	Gen2AccessEnable     = reg("Gen2AccessEnable", 0x1018, 2, 1, ReadWrite)
	Gen2AutoAccessEnable = reg("Gen2AutoAccessEnable", 0x101C, 2, 1, ReadWrite)
	Gen2Offsets          = reg("Gen2Offsets", 0x1020, 1, 10, ReadWrite)
	Gen2Lengths          = reg("Gen2Lengths", 0x1030, 2, 10, ReadWrite)
	Gen2TransactionIds   = reg("Gen2TransactionIds", 0x1050, 1, 10, ReadWrite)
	Gen2TxnControls      = reg("Gen2TxnControls", 0x1060, 4, 10, ReadWrite)
	Gen2TxBuffer         = reg("Gen2TxBuffer", 0x1100, 0x80, 1, ReadWrite)

	CalibrationInfo = reg("CalibrationInfo", 0xE800, 0x800, 1, ReadOnly)
)

// Bootloader registers. The bootloader shares the low register window with
// the application; ImageValidity lives in a slot the application leaves
// unused, and the reference frequency is written through FrefFreq's
// address before any info page write.
var (
	ImageValidity      = reg("ImageValidity", 0x0040, 4, 1, ReadOnly)
	FrefFreqBootloader = reg("FrefFreqBootloader", 0x0034, 4, 1, ReadWrite)
)

// Gen2 transmit slot count shared by the per-slot Gen2 registers.
const Gen2SlotCount = 10

var application = []Info{
	CommandResult, ResetCause, Status, VersionString, BuildNumber, GitHash,
	Timestamp, FrefFreq, ProductSku, SerialNumber, DeviceInfo, DeviceBuild,
	RtlRevision, InterruptMask, InterruptMaskSet, InterruptMaskClr,
	InterruptStatus, EventFifoNumBytes, EventFifoIntLevel, GpioOutputEnable,
	GpioOutputLevel, PowerControlLoopAuxAdcControl, PowerControlLoopGainDivisor,
	PowerControlLoopMaxIterations, PowerControlLoopInitialTxScalar,
	PowerControlLoopAdcTarget, PowerControlLoopAdcThresholds, DelayUs,
	OpsControl, OpsStatus, HaltedControl, HaltedStatus, LogTestPeriod,
	LogTestWordRepeat, EventFifoTestPeriod, EventFifoTestPayloadNumWords,
	LogSpeed, LogEnables, BerControl, BerMode, ModemDataControl,
	AuxAdcControl, AuxAdcResults, AuxDacControl, AuxDacSettings, ATestMux,
	RfSynthesizerControl, TxFineGain, RxGainControl, TxCoarseGain, RfMode,
	DcOffset, EtsiBurstOffTime, CwIsOn, SjcControl, SjcGainControl,
	SjcInitialSettlingTime, SjcResidueSettlingTime, SjcCdacI, SjcCdacQ,
	SjcResultI, SjcResultQ, SjcResidueThreshold, AnalogEnable,
	AggregateOpBuffer, RssiThresholdRn16, RssiThresholdEpc,
	InventoryRoundControl, InventoryRoundControl2, NominalStopTime,
	ExtendedStopTime, RegulatoryStopTime, Gen2SelectEnable, Gen2AccessEnable,
	Gen2AutoAccessEnable, Gen2Offsets, Gen2Lengths, Gen2TransactionIds,
	Gen2TxnControls, Gen2TxBuffer, CalibrationInfo,
}

var bootloader = []Info{ImageValidity, FrefFreqBootloader}

var (
	byName    map[string]Info
	byAddress map[uint16]Info
)

func init() {
	byName = make(map[string]Info, len(application)+len(bootloader))
	byAddress = make(map[uint16]Info, len(application))
	for _, r := range application {
		byName[strings.ToLower(r.Name)] = r
		byAddress[r.Address] = r
	}
	for _, r := range bootloader {
		byName[strings.ToLower(r.Name)] = r
	}
}

// All returns the application registers sorted by address.
func All() []Info {
	out := make([]Info, len(application))
	copy(out, application)
	sort.Slice(out, func(a, b int) bool { return out[a].Address < out[b].Address })
	return out
}

// BootloaderRegisters returns the registers only present while the bootloader runs.
func BootloaderRegisters() []Info {
	out := make([]Info, len(bootloader))
	copy(out, bootloader)
	return out
}

// ByAddress finds the application register that starts at addr.
func ByAddress(addr uint16) (Info, bool) {
	r, ok := byAddress[addr]
	return r, ok
}

// Containing finds the application register whose span covers addr.
func Containing(addr uint16) (Info, bool) {
	for _, r := range application {
		if int(addr) >= int(r.Address) && int(addr) < r.End() {
			return r, true
		}
	}
	return Info{}, false
}

// ByName finds a register by name, ignoring case.
func ByName(name string) (Info, bool) {
	r, ok := byName[strings.ToLower(name)]
	return r, ok
}

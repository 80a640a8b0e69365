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
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/constraints"
)

// PutLE writes v into b little-endian using len(b) bytes.
func PutLE[T constraints.Integer](b []byte, v T) {
	u := uint64(v)
	for i := range b {
		b[i] = byte(u >> (8 * i))
	}
}

// LE reads a little-endian integer from all of b.
func LE[T constraints.Integer](b []byte) T {
	var u uint64
	for i := len(b) - 1; i >= 0; i-- {
		u = u<<8 | uint64(b[i])
	}
	return T(u)
}

// Value encodes v as a little-endian byte slice sized for r.
func Value[T constraints.Integer](r Info, v T) []byte {
	b := make([]byte, r.Length)
	PutLE(b, v)
	return b
}

// RunningLocation is the Status register value.
type RunningLocation uint8

const (
	// Bootloader means the device is executing its bootloader.
	Bootloader RunningLocation = 1
	// Application means the main firmware image is running.
	Application RunningLocation = 2
)

func (l RunningLocation) String() string {
	switch l {
	case Bootloader:
		return "Bootloader"
	case Application:
		return "Application"
	default:
		return fmt.Sprintf("RunningLocation(%d)", uint8(l))
	}
}

// ParseStatus decodes the Status register.
func ParseStatus(b []byte) RunningLocation {
	if len(b) == 0 {
		return 0
	}
	return RunningLocation(b[0])
}

// OpID identifies a firmware op started through OpsControl.
type OpID uint8

const (
	OpIdle                OpID = 0xA0
	OpLogTest             OpID = 0xA1
	OpMeasureAdc          OpID = 0xA2
	OpTxRampUp            OpID = 0xA3
	OpTxRampDown          OpID = 0xA4
	OpSetTxCoarseGain     OpID = 0xA5
	OpSetTxFineGain       OpID = 0xA6
	OpRadioPowerControl   OpID = 0xA7
	OpSetRfMode           OpID = 0xA8
	OpSetRxGain           OpID = 0xA9
	OpLockSynthesizer     OpID = 0xAA
	OpEventFifoTest       OpID = 0xAB
	OpRxRunSjc            OpID = 0xAC
	OpSetGpio             OpID = 0xAD
	OpSetClearGpioPins    OpID = 0xAE
	OpStartInventoryRound OpID = 0xB0
	OpRunPrbsData         OpID = 0xB1
	OpSendSelect          OpID = 0xB2
	OpSetDac              OpID = 0xB3
	OpSetATestMux         OpID = 0xB4
	OpPowerControlLoop    OpID = 0xB5
	OpMeasureRssi         OpID = 0xB6
	OpUsTimerStart        OpID = 0xB7
	OpUsTimerWait         OpID = 0xB8
	OpAggregate           OpID = 0xB9
	OpListenBeforeTalk    OpID = 0xBA
	OpBerTest             OpID = 0xC0
	OpEtsiBurst           OpID = 0xC1
	OpHpfOverrideTest     OpID = 0xC2
	OpMultiToneTest       OpID = 0xC3
	OpExternalLoEnable    OpID = 0xFC
	OpWriteProfileData    OpID = 0xFD
	OpCrashTest           OpID = 0xFE
)

var opNames = map[OpID]string{
	OpIdle: "Idle", OpLogTest: "LogTest", OpMeasureAdc: "MeasureAdc",
	OpTxRampUp: "TxRampUp", OpTxRampDown: "TxRampDown",
	OpSetTxCoarseGain: "SetTxCoarseGain", OpSetTxFineGain: "SetTxFineGain",
	OpRadioPowerControl: "RadioPowerControl", OpSetRfMode: "SetRfMode",
	OpSetRxGain: "SetRxGain", OpLockSynthesizer: "LockSynthesizer",
	OpEventFifoTest: "EventFifoTest", OpRxRunSjc: "RxRunSjc",
	OpSetGpio: "SetGpio", OpSetClearGpioPins: "SetClearGpioPins",
	OpStartInventoryRound: "StartInventoryRound", OpRunPrbsData: "RunPrbsData",
	OpSendSelect: "SendSelect", OpSetDac: "SetDac", OpSetATestMux: "SetATestMux",
	OpPowerControlLoop: "PowerControlLoop", OpMeasureRssi: "MeasureRssi",
	OpUsTimerStart: "UsTimerStart", OpUsTimerWait: "UsTimerWait",
	OpAggregate: "AggregateOp", OpListenBeforeTalk: "ListenBeforeTalk",
	OpBerTest: "BerTest", OpEtsiBurst: "EtsiBurst",
	OpHpfOverrideTest: "HpfOverrideTest", OpMultiToneTest: "MultiToneTest",
	OpExternalLoEnable: "ExternalLoEnable", OpWriteProfileData: "WriteProfileData",
	OpCrashTest: "CrashTest",
}

func (o OpID) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("OpID(0x%02X)", uint8(o))
}

// OpError is the firmware error reported in OpsStatus.
type OpError uint8

const (
	OpErrNone OpError = iota
	OpErrUnknownOp
	OpErrUnknownError
	OpErrInvalidParameter
	OpErrPllNotLocked
	OpErrPowerControlTargetFailed
	OpErrInvalidTxState
	OpErrRadioPowerNotEnabled
	OpErrAggregateBufferOverflow
	OpErrAggregateInnerOpError
	OpErrSjcCdacRangeError
	OpErrSjcResidueThresholdExceeded
	OpErrDroopCompensationTooManyAdcChannels
	OpErrEventFailedToSend
)

var opErrNames = [...]string{
	"None", "UnknownOp", "UnknownError", "InvalidParameter", "PllNotLocked",
	"PowerControlTargetFailed", "InvalidTxState", "RadioPowerNotEnabled",
	"AggregateBufferOverflow", "AggregateInnerOpError", "SjcCdacRangeError",
	"SjcResidueThresholdExceeded", "DroopCompensationTooManyAdcChannels",
	"EventFailedToSend",
}

func (e OpError) String() string {
	if int(e) < len(opErrNames) {
		return opErrNames[e]
	}
	return fmt.Sprintf("OpError(%d)", uint8(e))
}

// OpsStatusFields is the decoded OpsStatus register.
type OpsStatusFields struct {
	OpID  OpID
	Busy  bool
	Error OpError
}

// ParseOpsStatus decodes the 4-byte OpsStatus register.
func ParseOpsStatus(b []byte) (OpsStatusFields, error) {
	if len(b) < int(OpsStatus.Length) {
		return OpsStatusFields{}, fmt.Errorf("ops status: need %d bytes, got %d", OpsStatus.Length, len(b))
	}
	return OpsStatusFields{
		OpID:  OpID(b[0]),
		Busy:  b[1]&0x01 != 0,
		Error: OpError(b[2]),
	}, nil
}

// Bytes encodes the fields back into register layout.
func (s OpsStatusFields) Bytes() []byte {
	b := make([]byte, OpsStatus.Length)
	b[0] = byte(s.OpID)
	if s.Busy {
		b[1] = 0x01
	}
	b[2] = byte(s.Error)
	return b
}

// InterruptStatusFields mirrors the InterruptStatus, InterruptMask,
// InterruptMaskSet and InterruptMaskClear bit layout.
type InterruptStatusFields struct {
	OpDone               bool
	Halted               bool
	EventFifoAboveThresh bool
	EventFifoFull        bool
	InventoryRoundDone   bool
	HaltedSequenceDone   bool
	CommandError         bool
	AggregateOpDone      bool
}

// ParseInterruptStatus decodes the first byte of an interrupt register.
func ParseInterruptStatus(b []byte) InterruptStatusFields {
	if len(b) == 0 {
		return InterruptStatusFields{}
	}
	v := b[0]
	return InterruptStatusFields{
		OpDone:               v&(1<<0) != 0,
		Halted:               v&(1<<1) != 0,
		EventFifoAboveThresh: v&(1<<2) != 0,
		EventFifoFull:        v&(1<<3) != 0,
		InventoryRoundDone:   v&(1<<4) != 0,
		HaltedSequenceDone:   v&(1<<5) != 0,
		CommandError:         v&(1<<6) != 0,
		AggregateOpDone:      v&(1<<7) != 0,
	}
}

// Bytes encodes the fields as a 4-byte register value.
func (s InterruptStatusFields) Bytes() []byte {
	b := make([]byte, InterruptStatus.Length)
	bits := []bool{
		s.OpDone, s.Halted, s.EventFifoAboveThresh, s.EventFifoFull,
		s.InventoryRoundDone, s.HaltedSequenceDone, s.CommandError, s.AggregateOpDone,
	}
	for i, set := range bits {
		if set {
			b[0] |= 1 << i
		}
	}
	return b
}

// Any reports whether any bit is set.
func (s InterruptStatusFields) Any() bool {
	return s.Bytes()[0] != 0
}

// CommandResultFields is the decoded CommandResult register.
type CommandResultFields struct {
	FailedResultCode        uint8
	FailedCommandCode       uint8
	CommandsSinceFirstError uint16
}

// ParseCommandResult decodes the CommandResult register.
func ParseCommandResult(b []byte) (CommandResultFields, error) {
	if len(b) < int(CommandResult.Length) {
		return CommandResultFields{}, fmt.Errorf("command result: need %d bytes, got %d", CommandResult.Length, len(b))
	}
	return CommandResultFields{
		FailedResultCode:        b[0],
		FailedCommandCode:       b[1],
		CommandsSinceFirstError: binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}

// ImageValidityFields reports the bootloader's view of the main image.
type ImageValidityFields struct {
	ImageValid    bool
	ImageNonValid bool
}

// ParseImageValidity decodes the ImageValidity register.
func ParseImageValidity(b []byte) ImageValidityFields {
	if len(b) == 0 {
		return ImageValidityFields{}
	}
	return ImageValidityFields{
		ImageValid:    b[0]&0x01 != 0,
		ImageNonValid: b[0]&0x02 != 0,
	}
}

// Bytes encodes the fields in register layout.
func (v ImageValidityFields) Bytes() []byte {
	b := make([]byte, ImageValidity.Length)
	if v.ImageValid {
		b[0] |= 0x01
	}
	if v.ImageNonValid {
		b[0] |= 0x02
	}
	return b
}

// ResponseType is how a tag answers a Gen2 command.
type ResponseType uint8

const (
	ResponseNone ResponseType = iota
	ResponseImmediate
	ResponseDelayed
	ResponseInProcess
)

func (r ResponseType) String() string {
	switch r {
	case ResponseNone:
		return "None"
	case ResponseImmediate:
		return "Immediate"
	case ResponseDelayed:
		return "Delayed"
	case ResponseInProcess:
		return "InProcess"
	default:
		return fmt.Sprintf("ResponseType(%d)", uint8(r))
	}
}

// Gen2TxnControlsFields is one entry of the Gen2TxnControls register.
//
// Layout (LSB first): response_type:3, has_header_bit:1,
// use_cover_code:1, append_handle:1, append_crc16:1, is_kill_command:1,
// reserved:8, rx_length:16.
type Gen2TxnControlsFields struct {
	ResponseType  ResponseType
	HasHeaderBit  bool
	UseCoverCode  bool
	AppendHandle  bool
	AppendCRC16   bool
	IsKillCommand bool
	RxLength      uint16
}

func flag(b bool, shift uint) byte {
	if b {
		return 1 << shift
	}
	return 0
}

// Bytes encodes the entry as 4 little-endian bytes.
func (c Gen2TxnControlsFields) Bytes() []byte {
	b := make([]byte, Gen2TxnControls.Length)
	b[0] = byte(c.ResponseType)&0x07 |
		flag(c.HasHeaderBit, 3) |
		flag(c.UseCoverCode, 4) |
		flag(c.AppendHandle, 5) |
		flag(c.AppendCRC16, 6) |
		flag(c.IsKillCommand, 7)
	binary.LittleEndian.PutUint16(b[2:4], c.RxLength)
	return b
}

// ParseGen2TxnControls decodes one Gen2TxnControls entry.
func ParseGen2TxnControls(b []byte) (Gen2TxnControlsFields, error) {
	if len(b) < int(Gen2TxnControls.Length) {
		return Gen2TxnControlsFields{}, fmt.Errorf("gen2 txn controls: need %d bytes, got %d", Gen2TxnControls.Length, len(b))
	}
	return Gen2TxnControlsFields{
		ResponseType:  ResponseType(b[0] & 0x07),
		HasHeaderBit:  b[0]&(1<<3) != 0,
		UseCoverCode:  b[0]&(1<<4) != 0,
		AppendHandle:  b[0]&(1<<5) != 0,
		AppendCRC16:   b[0]&(1<<6) != 0,
		IsKillCommand: b[0]&(1<<7) != 0,
		RxLength:      binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}

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

package ex10

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-ex10/registers"
)

// ErrorType classifies an error for retry decisions.
type ErrorType int

const (
	// ErrorTypePermanent errors will not go away on retry.
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may succeed on retry.
	ErrorTypeTransient
	// ErrorTypeTimeout errors are timeouts that may succeed on retry.
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
}

// Transport errors
var (
	ErrTransportTimeout    = errors.New("transport timeout")
	ErrTransportRead       = errors.New("transport read failed")
	ErrTransportWrite      = errors.New("transport write failed")
	ErrShortWrite          = errors.New("short write")
	ErrNotConnected        = errors.New("link not connected")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrCommunicationFailed = errors.New("communication failed")
	ErrResetFailed         = errors.New("device did not come out of reset")
)

// Argument errors
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDataTooLarge     = errors.New("data too large")
	ErrWrongLocation    = errors.New("device is not running the required image")
	ErrDeviceClosed     = errors.New("device closed")
)

// TransportError carries the failing operation and link identity.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError builds a TransportError; retryability follows the type.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError reports a READY or IRQ wait that ran out of time.
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewDataTooLargeError reports a transfer larger than the link allows.
func NewDataTooLargeError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrDataTooLarge, ErrorTypePermanent)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrShortWrite),
		errors.Is(err, ErrCommunicationFailed):
		return true
	default:
		return false
	}
}

// GetErrorType classifies err.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}
	switch {
	case errors.Is(err, ErrTransportTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrShortWrite),
		errors.Is(err, ErrCommunicationFailed):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// HostError is a protocol error detected on the host before or after a
// transaction.
type HostError int

const (
	HostErrBadNumSpans HostError = iota + 1
	HostErrNullData
	HostErrOverMaxDeviceAddress
	HostErrReceivedLengthIncorrect
	HostErrBadCommandedLength
	HostErrTestTransferVerify
	HostErr32BitAlignment
)

var hostErrText = map[HostError]string{
	HostErrBadNumSpans:             "bad number of segments",
	HostErrNullData:                "missing segment data",
	HostErrOverMaxDeviceAddress:    "segment past maximum device address",
	HostErrReceivedLengthIncorrect: "received length incorrect",
	HostErrBadCommandedLength:      "commanded length out of range",
	HostErrTestTransferVerify:      "test transfer verify failed",
	HostErr32BitAlignment:          "address or length not 32-bit aligned",
}

func (e HostError) Error() string {
	if s, ok := hostErrText[e]; ok {
		return "ex10 host: " + s
	}
	return fmt.Sprintf("ex10 host: error %d", int(e))
}

// ResponseCode is the status byte the device returns.
type ResponseCode uint8

const (
	Success                 ResponseCode = 0xA5
	CommandInvalid          ResponseCode = 0x01
	ArgumentInvalid         ResponseCode = 0x02
	ResponseOverflow        ResponseCode = 0x06
	CommandMalformed        ResponseCode = 0x07
	AddressWriteFailure     ResponseCode = 0x08
	ImageInvalid            ResponseCode = 0x09
	LengthInvalid           ResponseCode = 0x0A
	UploadStateInvalid      ResponseCode = 0x0B
	ImageExecFailure        ResponseCode = 0x0C
	BadCrc                  ResponseCode = 0x0E
	FlashInvalidPage        ResponseCode = 0x0F
	FlashPageLocked         ResponseCode = 0x10
	FlashEraseFailure       ResponseCode = 0x11
	FlashProgramFailure     ResponseCode = 0x12
	StoredSettingsMalformed ResponseCode = 0x13
	NotEnoughSpace          ResponseCode = 0x14
)

var responseNames = map[ResponseCode]string{
	Success:                 "Success",
	CommandInvalid:          "CommandInvalid",
	ArgumentInvalid:         "ArgumentInvalid",
	ResponseOverflow:        "ResponseOverflow",
	CommandMalformed:        "CommandMalformed",
	AddressWriteFailure:     "AddressWriteFailure",
	ImageInvalid:            "ImageInvalid",
	LengthInvalid:           "LengthInvalid",
	UploadStateInvalid:      "UploadStateInvalid",
	ImageExecFailure:        "ImageExecFailure",
	BadCrc:                  "BadCrc",
	FlashInvalidPage:        "FlashInvalidPage",
	FlashPageLocked:         "FlashPageLocked",
	FlashEraseFailure:       "FlashEraseFailure",
	FlashProgramFailure:     "FlashProgramFailure",
	StoredSettingsMalformed: "StoredSettingsMalformed",
	NotEnoughSpace:          "NotEnoughSpace",
}

func (c ResponseCode) String() string {
	if s, ok := responseNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ResponseCode(0x%02X)", uint8(c))
}

// DeviceError is a non-success response code from the device.
type DeviceError struct {
	Op   string
	Code ResponseCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("ex10 device: %s: %s", e.Op, e.Code)
}

// Is matches another DeviceError with the same code, ignoring Op.
func (e *DeviceError) Is(target error) bool {
	var de *DeviceError
	if errors.As(target, &de) {
		return de.Code == e.Code
	}
	return false
}

// AsHostError extracts a HostError from err.
func AsHostError(err error) (HostError, bool) {
	var he HostError
	if errors.As(err, &he) {
		return he, true
	}
	return 0, false
}

// AsDeviceError extracts a DeviceError from err.
func AsDeviceError(err error) (*DeviceError, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// UploadStage names the step of an image or info page upload.
type UploadStage string

const (
	StageStart      UploadStage = "start"
	StageContinue   UploadStage = "continue"
	StageComplete   UploadStage = "complete"
	StageRevalidate UploadStage = "revalidate"
	StageInfoPage   UploadStage = "info page"
)

// UploadError reports which upload step failed and how far it got.
type UploadError struct {
	Err    error
	Stage  UploadStage
	Offset int
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s at offset %d: %v", e.Stage, e.Offset, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// OpCompletionStatus summarises how a firmware op finished.
type OpCompletionStatus struct {
	OpsStatus registers.OpsStatusFields
	// CommandErr is set when polling OpsStatus itself failed.
	CommandErr error
	TimedOut   bool
}

// Failed reports whether the op ended with any error.
func (s OpCompletionStatus) Failed() bool {
	return s.TimedOut || s.CommandErr != nil || s.OpsStatus.Error != registers.OpErrNone
}

// OpError is returned when an op fails, stalls, or cannot be observed.
type OpError struct {
	Status OpCompletionStatus
}

func (e *OpError) Error() string {
	s := e.Status
	switch {
	case s.CommandErr != nil:
		return fmt.Sprintf("op %s: %v", s.OpsStatus.OpID, s.CommandErr)
	case s.TimedOut:
		return fmt.Sprintf("op %s: timed out", s.OpsStatus.OpID)
	default:
		return fmt.Sprintf("op %s: %s", s.OpsStatus.OpID, s.OpsStatus.Error)
	}
}

func (e *OpError) Unwrap() error {
	if e.Status.CommandErr != nil {
		return e.Status.CommandErr
	}
	if e.Status.TimedOut {
		return ErrTransportTimeout
	}
	return nil
}

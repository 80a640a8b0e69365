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

// Package uart links to an Ex10 through a serial-attached SPI bridge. The
// bridge owns the SPI bus and the handshake pins and is driven with small
// request frames.
//
// Host frames are [op, len u16 LE, payload]. The bridge answers every frame
// with [op|0x20, status, len u16 LE, payload].
package uart

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/internal/transport"
	"go.bug.st/serial"
)

// Bridge operations.
const (
	OpWrite     byte = 'W'
	OpRead      byte = 'R'
	OpWaitReady byte = 'Y'
	OpReset     byte = 'X'
	OpWaitIrq   byte = 'I'
	OpSetClock  byte = 'S'
)

// Bridge reply status codes.
const (
	StatusOK      byte = 0x00
	StatusTimeout byte = 0x01
	StatusError   byte = 0x02
)

const (
	replyFlag       = 0x20
	frameHeaderSize = 3
	replyHeaderSize = 4
	maxPayload      = 0xFFFF

	// DefaultBaudRate is what the reference bridge firmware runs at.
	DefaultBaudRate = 921600
	// DefaultReplyTimeout is how long a reply may take beyond any wait
	// the request itself asks the bridge to perform.
	DefaultReplyTimeout = 500 * time.Millisecond
	// DefaultRetries is how many times an idempotent request is resent
	// after a garbled reply.
	DefaultRetries = 2

	pollSlice = 20 * time.Millisecond
)

var errBadReply = errors.New("unexpected bridge reply")

// Port is the part of serial.Port a link needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Config selects the serial device and reply timing.
type Config struct {
	Logger       *slog.Logger
	Port         string
	BaudRate     int
	ReplyTimeout time.Duration
	Retries      int
}

// DefaultConfig returns the settings for a bridge on port.
func DefaultConfig(port string) Config {
	return Config{
		Port:         port,
		BaudRate:     DefaultBaudRate,
		ReplyTimeout: DefaultReplyTimeout,
		Retries:      DefaultRetries,
	}
}

// Link implements ex10.Link, ex10.InterruptSource and ex10.ClockSetter
// over a bridge.
type Link struct {
	port         Port
	logger       *slog.Logger
	name         string
	replyTimeout time.Duration
	retries      int
	mu           sync.Mutex
	closed       bool
}

// Open opens the serial device named in cfg, 8N1.
func Open(cfg Config) (*Link, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, ex10.NewTransportError("open", cfg.Port,
			fmt.Errorf("%w: %w", ex10.ErrDeviceNotFound, err), ex10.ErrorTypePermanent)
	}
	l := New(p, cfg)
	l.logger.Debug("bridge opened", "port", cfg.Port, "baud", cfg.BaudRate)
	return l, nil
}

// New wraps an already open port.
func New(p Port, cfg Config) *Link {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Link{
		port:         p,
		logger:       logger,
		name:         cfg.Port,
		replyTimeout: cfg.ReplyTimeout,
		retries:      cfg.Retries,
	}
}

// EncodeFrame builds a host frame.
func EncodeFrame(op byte, payload []byte) []byte {
	out := make([]byte, frameHeaderSize, frameHeaderSize+len(payload))
	out[0] = op
	binary.LittleEndian.PutUint16(out[1:], uint16(len(payload)))
	return append(out, payload...)
}

// EncodeReply builds a bridge reply.
func EncodeReply(op, status byte, payload []byte) []byte {
	out := make([]byte, replyHeaderSize, replyHeaderSize+len(payload))
	out[0] = op | replyFlag
	out[1] = status
	binary.LittleEndian.PutUint16(out[2:], uint16(len(payload)))
	return append(out, payload...)
}

func (l *Link) readFull(buf []byte, deadline time.Time) error {
	for got := 0; got < len(buf); {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ex10.NewTimeoutError("read reply", l.name)
		}
		if err := l.port.SetReadTimeout(min(remaining, pollSlice)); err != nil {
			return ex10.NewTransportError("read reply", l.name, err, ex10.ErrorTypePermanent)
		}
		n, err := l.port.Read(buf[got:])
		if err != nil {
			return ex10.NewTransportError("read reply", l.name,
				fmt.Errorf("%w: %w", ex10.ErrTransportRead, err), ex10.ErrorTypeTransient)
		}
		got += n
	}
	return nil
}

type reply struct {
	data   []byte
	status byte
}

// transact sends one frame and reads its reply. wait is the time the
// bridge itself may spend before answering. The lock must be held.
func (l *Link) transact(op byte, payload []byte, wait time.Duration) (reply, error) {
	if l.closed {
		return reply{}, ex10.NewTransportError(string(op), l.name, ex10.ErrNotConnected, ex10.ErrorTypePermanent)
	}
	frame := EncodeFrame(op, payload)
	n, err := l.port.Write(frame)
	if err != nil {
		return reply{}, ex10.NewTransportError(string(op), l.name,
			fmt.Errorf("%w: %w", ex10.ErrTransportWrite, err), ex10.ErrorTypeTransient)
	}
	if n != len(frame) {
		return reply{}, ex10.NewTransportError(string(op), l.name,
			fmt.Errorf("%w: wrote %d of %d", ex10.ErrShortWrite, n, len(frame)), ex10.ErrorTypeTransient)
	}

	deadline := time.Now().Add(wait + l.replyTimeout)
	var hdr [replyHeaderSize]byte
	if err := l.readFull(hdr[:], deadline); err != nil {
		return reply{}, err
	}
	if hdr[0] != op|replyFlag {
		return reply{}, fmt.Errorf("op %q got 0x%02X: %w", op, hdr[0], errBadReply)
	}
	r := reply{status: hdr[1], data: make([]byte, binary.LittleEndian.Uint16(hdr[2:]))}
	if err := l.readFull(r.data, deadline); err != nil {
		return reply{}, err
	}
	if r.status == StatusError {
		return reply{}, ex10.NewTransportError(string(op), l.name,
			fmt.Errorf("bridge error: %w", ex10.ErrCommunicationFailed), ex10.ErrorTypeTransient)
	}
	return r, nil
}

// call runs transact under the lock. Idempotent requests are resent after
// a garbled reply once the input buffer has been flushed.
func (l *Link) call(op byte, payload []byte, wait time.Duration, idempotent bool) (reply, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !idempotent {
		r, err := l.transact(op, payload, wait)
		if errors.Is(err, errBadReply) {
			l.resync(op)
			return reply{}, ex10.NewTransportError(string(op), l.name,
				fmt.Errorf("%w: %w", ex10.ErrCommunicationFailed, err), ex10.ErrorTypeTransient)
		}
		return r, err
	}

	return transport.WithRetry(context.Background(), transport.RetryConfig{
		Description: string(op),
		Port:        l.name,
		MaxRetries:  l.retries,
		OnRetry: func() error {
			l.resync(op)
			return nil
		},
	}, func() (reply, bool, error) {
		r, err := l.transact(op, payload, wait)
		if errors.Is(err, errBadReply) {
			return reply{}, true, nil
		}
		return r, false, err
	})
}

func (l *Link) resync(op byte) {
	l.logger.Debug("bridge resync", "port", l.name, "op", string(op))
	if err := l.port.ResetInputBuffer(); err != nil {
		l.logger.Warn("bridge flush failed", "port", l.name, "err", err)
	}
}

func waitPayload(timeout time.Duration) []byte {
	ms := timeout.Milliseconds()
	ms = max(1, min(ms, 0xFFFF))
	return binary.LittleEndian.AppendUint16(nil, uint16(ms))
}

// Write sends p to the device as one SPI transaction.
func (l *Link) Write(p []byte) (int, error) {
	if len(p) > maxPayload {
		return 0, ex10.NewDataTooLargeError("write", l.name)
	}
	if _, err := l.call(OpWrite, p, 0, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read fills p from one SPI transaction.
func (l *Link) Read(p []byte) (int, error) {
	if len(p) > maxPayload {
		return 0, ex10.NewDataTooLargeError("read", l.name)
	}
	r, err := l.call(OpRead, binary.LittleEndian.AppendUint16(nil, uint16(len(p))), 0, false)
	if err != nil {
		return 0, err
	}
	n := copy(p, r.data)
	if n != len(p) {
		return n, ex10.NewTransportError("read", l.name,
			fmt.Errorf("%w: got %d of %d bytes", ex10.ErrTransportRead, n, len(p)), ex10.ErrorTypeTransient)
	}
	return n, nil
}

// WaitReady asks the bridge to wait for READY_N.
func (l *Link) WaitReady(timeout time.Duration) error {
	r, err := l.call(OpWaitReady, waitPayload(timeout), timeout, true)
	if err != nil {
		return err
	}
	if r.status == StatusTimeout {
		return ex10.NewTimeoutError("WaitReady", l.name)
	}
	return nil
}

// WaitForInterrupt asks the bridge to wait for IRQ_N. It returns false on
// timeout.
func (l *Link) WaitForInterrupt(timeout time.Duration) (bool, error) {
	r, err := l.call(OpWaitIrq, waitPayload(timeout), timeout, true)
	if err != nil {
		return false, err
	}
	return r.status == StatusOK, nil
}

func (l *Link) setReset(level byte) error {
	_, err := l.call(OpReset, []byte{level}, 0, true)
	return err
}

// AssertReset drives RESET_N low
func (l *Link) AssertReset() error { return l.setReset(0) }

// DeassertReset releases RESET_N
func (l *Link) DeassertReset() error { return l.setReset(1) }

// SetClock changes the bridge's SPI clock.
func (l *Link) SetClock(hz int64) error {
	if hz <= 0 || hz > 0xFFFFFFFF {
		return fmt.Errorf("clock %d: %w", hz, ex10.ErrInvalidParameter)
	}
	_, err := l.call(OpSetClock, binary.LittleEndian.AppendUint32(nil, uint32(hz)), 0, true)
	return err
}

// Close closes the serial port. Calling it again is a no-op.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// IsConnected reports whether the port is still open.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed && l.port != nil
}

// Type returns ex10.LinkUART.
func (*Link) Type() ex10.LinkType {
	return ex10.LinkUART
}

func (l *Link) String() string {
	return l.name
}

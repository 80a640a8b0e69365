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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/go-ex10/internal/frame"
)

// DefaultBurstSize is the largest transaction the device accepts.
const DefaultBurstSize = frame.MaxCommandSize

// DefaultReadyTimeout bounds each READY_N wait.
const DefaultReadyTimeout = 2500 * time.Millisecond

// Transactor moves whole transactions across a Link. It waits for READY_N
// before every write and read, enforces the burst limit and never retries.
//
// Transactor is safe for concurrent use; one SendAndReceive is atomic with
// respect to other callers. Multi-transaction sequences must hold the gate
// through Lock and Unlock.
type Transactor struct {
	link    Link
	lastCmd []byte
	gate    sync.Mutex
	lastMu  sync.Mutex
	burst   int
}

// MinBurstSize holds a Write opcode, one segment header and one data byte.
const MinBurstSize = 1 + frame.SegmentHeaderSize + 1

// NewTransactor wraps link. A zero burst selects DefaultBurstSize.
func NewTransactor(link Link, burst int) (*Transactor, error) {
	if burst == 0 {
		burst = DefaultBurstSize
	}
	if burst < MinBurstSize || burst > DefaultBurstSize {
		return nil, fmt.Errorf("burst size %d outside [%d, %d]: %w",
			burst, MinBurstSize, DefaultBurstSize, ErrInvalidParameter)
	}
	return &Transactor{link: link, burst: burst}, nil
}

// BurstSize returns the largest transaction, in bytes, the transactor sends.
func (t *Transactor) BurstSize() int {
	return t.burst
}

// Link returns the underlying link.
func (t *Transactor) Link() Link {
	return t.link
}

// Lock takes the link gate.
func (t *Transactor) Lock() {
	t.gate.Lock()
}

// Unlock releases the link gate.
func (t *Transactor) Unlock() {
	t.gate.Unlock()
}

// LastCommand returns a copy of the most recent transaction written.
func (t *Transactor) LastCommand() []byte {
	t.lastMu.Lock()
	defer t.lastMu.Unlock()
	return append([]byte(nil), t.lastCmd...)
}

// Send waits for READY_N and writes cmd. The gate must be held.
func (t *Transactor) Send(ctx context.Context, cmd []byte, timeout time.Duration) error {
	if len(cmd) == 0 {
		return fmt.Errorf("send: %w", ErrInvalidParameter)
	}
	if len(cmd) > t.burst {
		return NewDataTooLargeError("send", "")
	}
	if err := t.waitReady(ctx, "send", timeout); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.lastMu.Lock()
	t.lastCmd = append(t.lastCmd[:0], cmd...)
	t.lastMu.Unlock()

	n, err := t.link.Write(cmd)
	if err != nil {
		return NewTransportError("send", "", fmt.Errorf("%w: %w", ErrTransportWrite, err), ErrorTypeTransient)
	}
	if n != len(cmd) {
		return NewTransportError("send", "", fmt.Errorf("%w: wrote %d of %d", ErrShortWrite, n, len(cmd)),
			ErrorTypeTransient)
	}
	return nil
}

// Receive waits for READY_N and reads into buf. Requests beyond the burst
// limit plus the status byte are clamped. The gate must be held.
func (t *Transactor) Receive(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if limit := t.burst + frame.StatusSize; len(buf) > limit {
		debugf("receive of %d bytes clamped to %d", len(buf), limit)
		buf = buf[:limit]
	}
	if err := t.waitReady(ctx, "receive", timeout); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := t.link.Read(buf)
	if err != nil {
		return n, NewTransportError("receive", "", fmt.Errorf("%w: %w", ErrTransportRead, err), ErrorTypeTransient)
	}
	return n, nil
}

// SendAndReceive performs one command/response exchange under the gate.
// A nil or empty resp sends without reading back.
func (t *Transactor) SendAndReceive(ctx context.Context, cmd, resp []byte, timeout time.Duration) (int, error) {
	t.Lock()
	defer t.Unlock()
	return t.exchange(ctx, cmd, resp, timeout)
}

// exchange is SendAndReceive for callers already holding the gate.
func (t *Transactor) exchange(ctx context.Context, cmd, resp []byte, timeout time.Duration) (int, error) {
	if err := t.Send(ctx, cmd, timeout); err != nil {
		return 0, err
	}
	if len(resp) == 0 {
		return 0, nil
	}
	return t.Receive(ctx, resp, timeout)
}

func (t *Transactor) waitReady(ctx context.Context, op string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	if err := t.link.WaitReady(timeout); err != nil {
		if GetErrorType(err) == ErrorTypeTimeout {
			return NewTimeoutError(op, "")
		}
		return NewTransportError(op, "", err, GetErrorType(err))
	}
	return nil
}

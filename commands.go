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
	"time"

	"github.com/ZaparooProject/go-ex10/internal/frame"
)

// Commands encodes each host protocol opcode into transactions over a
// Transactor and decodes the responses.
//
// Each method holds the link gate for its whole sequence of transactions
// unless the Commands value was obtained from Device.Exclusive, in which
// case the caller already holds it.
type Commands struct {
	t       *Transactor
	timeout time.Duration
	held    bool
}

// NewCommands builds a codec over t. timeout bounds each READY_N wait.
func NewCommands(t *Transactor, timeout time.Duration) *Commands {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	return &Commands{t: t, timeout: timeout}
}

// Transactor returns the underlying transactor.
func (c *Commands) Transactor() *Transactor {
	return c.t
}

func (c *Commands) heldView() *Commands {
	return &Commands{t: c.t, timeout: c.timeout, held: true}
}

func (c *Commands) acquire() func() {
	if c.held {
		return func() {}
	}
	c.t.Lock()
	return c.t.Unlock
}

func (c *Commands) burst() int {
	return c.t.BurstSize()
}

// simple sends cmd and expects a lone status byte back.
func (c *Commands) simple(ctx context.Context, op string, cmd []byte) error {
	var status [frame.StatusSize]byte
	n, err := c.t.exchange(ctx, cmd, status[:], c.timeout)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return checkStatus(op, status[:n], 0)
}

// checkStatus validates a response holding a status byte and want payload
// bytes.
func checkStatus(op string, resp []byte, want int) error {
	if len(resp) == 0 {
		return fmt.Errorf("%s: %w", op, HostErrReceivedLengthIncorrect)
	}
	if code := ResponseCode(resp[0]); code != Success {
		return &DeviceError{Op: op, Code: code}
	}
	if len(resp) != frame.StatusSize+want {
		debugf("%s: received %d bytes, want %d", op, len(resp), frame.StatusSize+want)
		return fmt.Errorf("%s: %w", op, HostErrReceivedLengthIncorrect)
	}
	return nil
}

// CompleteUpload finishes an image upload.
func (c *Commands) CompleteUpload(ctx context.Context) error {
	defer c.acquire()()
	return c.simple(ctx, "CompleteUpload", []byte{frame.OpCompleteUpload})
}

// RevalidateMainImage asks the bootloader to re-check the main image.
func (c *Commands) RevalidateMainImage(ctx context.Context) error {
	defer c.acquire()()
	return c.simple(ctx, "ReValidateMainImage", []byte{frame.OpReValidateImage})
}

// Reset restarts the device into dest. The device does not answer.
func (c *Commands) Reset(ctx context.Context, dest byte) error {
	defer c.acquire()()
	if err := c.t.Send(ctx, []byte{frame.OpReset, dest}, c.timeout); err != nil {
		return fmt.Errorf("Reset: %w", err)
	}
	return nil
}

// TestTransfer sends data and reads it back transformed by the device:
// byte i returns as data[i]+i. With verify set the echo is checked.
func (c *Commands) TestTransfer(ctx context.Context, data []byte, verify bool) ([]byte, error) {
	if len(data) == 0 {
		return nil, HostErrNullData
	}
	if len(data) >= c.burst() {
		return nil, HostErrBadCommandedLength
	}
	defer c.acquire()()

	cmd := make([]byte, 0, 1+len(data))
	cmd = append(cmd, frame.OpTestTransfer)
	cmd = append(cmd, data...)
	resp := make([]byte, frame.StatusSize+len(data))
	n, err := c.t.exchange(ctx, cmd, resp, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("TestTransfer: %w", err)
	}
	if err := checkStatus("TestTransfer", resp[:n], len(data)); err != nil {
		return nil, err
	}
	echo := resp[frame.StatusSize:n]
	if verify {
		for i := range data {
			if echo[i] != data[i]+byte(i) {
				debugf("TestTransfer mismatch at %d: sent 0x%02X got 0x%02X", i, data[i], echo[i])
				return echo, HostErrTestTransferVerify
			}
		}
	}
	return echo, nil
}

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

package uart

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ex10 "github.com/ZaparooProject/go-ex10"
	testutil "github.com/ZaparooProject/go-ex10/internal/testing"
	"github.com/ZaparooProject/go-ex10/registers"
)

// fakeBridge answers host frames by forwarding them to an ex10.Link, the
// way the bridge firmware drives the SPI bus and pins.
type fakeBridge struct {
	link     ex10.Link
	writeErr error
	garbage  []byte
	frames   [][]byte
	rx       bytes.Buffer
	mu       sync.Mutex
	flushes  int
	closed   bool
	silent   bool
}

func (b *fakeBridge) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return 0, b.writeErr
	}
	b.frames = append(b.frames, append([]byte(nil), p...))
	if len(b.garbage) > 0 {
		b.rx.Write(b.garbage)
		b.garbage = nil
		return len(p), nil
	}
	if b.silent {
		return len(p), nil
	}
	op := p[0]
	payload := p[frameHeaderSize : frameHeaderSize+int(binary.LittleEndian.Uint16(p[1:]))]
	b.rx.Write(b.serve(op, payload))
	return len(p), nil
}

func (b *fakeBridge) serve(op byte, payload []byte) []byte {
	switch op {
	case OpWrite:
		if _, err := b.link.Write(payload); err != nil {
			return EncodeReply(op, StatusError, nil)
		}
		return EncodeReply(op, StatusOK, nil)
	case OpRead:
		buf := make([]byte, binary.LittleEndian.Uint16(payload))
		if _, err := b.link.Read(buf); err != nil {
			return EncodeReply(op, StatusError, nil)
		}
		return EncodeReply(op, StatusOK, buf)
	case OpWaitReady:
		ms := time.Duration(binary.LittleEndian.Uint16(payload)) * time.Millisecond
		if err := b.link.WaitReady(ms); err != nil {
			return EncodeReply(op, StatusTimeout, nil)
		}
		return EncodeReply(op, StatusOK, nil)
	case OpWaitIrq:
		ms := time.Duration(binary.LittleEndian.Uint16(payload)) * time.Millisecond
		fired, err := b.link.(ex10.InterruptSource).WaitForInterrupt(ms)
		if err != nil {
			return EncodeReply(op, StatusError, nil)
		}
		if !fired {
			return EncodeReply(op, StatusTimeout, nil)
		}
		return EncodeReply(op, StatusOK, nil)
	case OpReset:
		var err error
		if payload[0] == 0 {
			err = b.link.AssertReset()
		} else {
			err = b.link.DeassertReset()
		}
		if err != nil {
			return EncodeReply(op, StatusError, nil)
		}
		return EncodeReply(op, StatusOK, nil)
	case OpSetClock:
		hz := int64(binary.LittleEndian.Uint32(payload))
		if err := b.link.(ex10.ClockSetter).SetClock(hz); err != nil {
			return EncodeReply(op, StatusError, nil)
		}
		return EncodeReply(op, StatusOK, nil)
	default:
		return EncodeReply(op, StatusError, nil)
	}
}

func (b *fakeBridge) Read(p []byte) (int, error) {
	b.mu.Lock()
	n, _ := b.rx.Read(p)
	b.mu.Unlock()
	if n == 0 {
		time.Sleep(time.Millisecond)
	}
	return n, nil
}

func (*fakeBridge) SetReadTimeout(time.Duration) error { return nil }

func (b *fakeBridge) ResetInputBuffer() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushes++
	b.rx.Reset()
	return nil
}

func (b *fakeBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBridge) sentOps() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := make([]byte, 0, len(b.frames))
	for _, f := range b.frames {
		ops = append(ops, f[0])
	}
	return ops
}

func newBridgeLink(t *testing.T) (*Link, *fakeBridge, *testutil.VirtualEx10) {
	t.Helper()
	v := testutil.NewVirtualEx10()
	b := &fakeBridge{link: v}
	cfg := DefaultConfig("/dev/ttyACM0")
	cfg.ReplyTimeout = 50 * time.Millisecond
	return New(b, cfg), b, v
}

func TestFrameEncoding(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []byte{'W', 0x02, 0x00, 0xAA, 0xBB}, EncodeFrame(OpWrite, []byte{0xAA, 0xBB}))
	assert.Equal(t, []byte{'Y', 0x00, 0x00}, EncodeFrame(OpWaitReady, nil))
	assert.Equal(t, []byte{'r', 0x00, 0x01, 0x00, 0x7F}, EncodeReply(OpRead, StatusOK, []byte{0x7F}))
}

func TestLinkProperties(t *testing.T) {
	t.Parallel()
	l, b, _ := newBridgeLink(t)

	assert.Equal(t, ex10.LinkUART, l.Type())
	assert.Equal(t, "/dev/ttyACM0", l.String())
	assert.True(t, l.IsConnected())

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.True(t, b.closed)
	assert.False(t, l.IsConnected())

	_, err := l.Write([]byte{1})
	require.ErrorIs(t, err, ex10.ErrNotConnected)
}

func TestDeviceOverBridge(t *testing.T) {
	t.Parallel()
	l, b, v := newBridgeLink(t)

	dev, err := ex10.New(l)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, dev.WriteRegister(ctx, registers.EventFifoIntLevel, []byte{0x40, 0x00}))
	got, err := dev.ReadRegister(ctx, registers.EventFifoIntLevel)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x40, 0x00}, got)
	assert.Equal(t, []byte{0x40, 0x00}, v.Memory(registers.EventFifoIntLevel.Address, 2))

	assert.Equal(t, []byte{'Y', 'W', 'Y', 'R', 'Y', 'W', 'Y', 'R'}, b.sentOps())
}

func TestResetOverBridge(t *testing.T) {
	t.Parallel()
	l, b, v := newBridgeLink(t)

	dev, err := ex10.New(l)
	require.NoError(t, err)
	loc, err := dev.Reset(context.Background(), registers.Application)
	require.NoError(t, err)
	assert.Equal(t, registers.Application, loc)
	assert.Equal(t, []int64{ex10.BootloaderClockHz, ex10.ApplicationClockHz}, v.Clocks())
	assert.Contains(t, b.sentOps(), OpSetClock)
}

func TestWaitReadyTimeout(t *testing.T) {
	t.Parallel()
	l, _, v := newBridgeLink(t)
	v.SetNotReady(true)

	err := l.WaitReady(5 * time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ex10.ErrorTypeTimeout, ex10.GetErrorType(err))
}

func TestWaitForInterruptOverBridge(t *testing.T) {
	t.Parallel()
	l, _, _ := newBridgeLink(t)

	fired, err := l.WaitForInterrupt(2 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestResetLevels(t *testing.T) {
	t.Parallel()
	l, b, _ := newBridgeLink(t)

	require.NoError(t, l.AssertReset())
	require.NoError(t, l.DeassertReset())
	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.frames, 2)
	assert.Equal(t, []byte{'X', 0x01, 0x00, 0x00}, b.frames[0])
	assert.Equal(t, []byte{'X', 0x01, 0x00, 0x01}, b.frames[1])
}

func TestSetClockValidation(t *testing.T) {
	t.Parallel()
	l, _, _ := newBridgeLink(t)
	require.ErrorIs(t, l.SetClock(0), ex10.ErrInvalidParameter)
}

func TestGarbledReplyResync(t *testing.T) {
	t.Parallel()

	t.Run("idempotent request is resent", func(t *testing.T) {
		t.Parallel()
		l, b, _ := newBridgeLink(t)
		b.garbage = []byte{0x00, 0x00, 0x00, 0x00}

		require.NoError(t, l.WaitReady(10*time.Millisecond))
		assert.Equal(t, []byte{'Y', 'Y'}, b.sentOps())
		assert.Equal(t, 1, b.flushes)
	})

	t.Run("write is not resent", func(t *testing.T) {
		t.Parallel()
		l, b, _ := newBridgeLink(t)
		b.garbage = []byte{0xFF, 0xFF, 0xFF, 0xFF}

		_, err := l.Write([]byte{0x01})
		require.ErrorIs(t, err, ex10.ErrCommunicationFailed)
		assert.True(t, ex10.IsRetryable(err))
		assert.Equal(t, []byte{'W'}, b.sentOps())
		assert.Equal(t, 1, b.flushes)
	})
}

func TestSilentBridgeTimesOut(t *testing.T) {
	t.Parallel()
	l, b, _ := newBridgeLink(t)
	b.silent = true

	start := time.Now()
	_, err := l.Write([]byte{0x01})
	require.Error(t, err)
	assert.Equal(t, ex10.ErrorTypeTimeout, ex10.GetErrorType(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestBridgeErrorStatus(t *testing.T) {
	t.Parallel()
	l, _, v := newBridgeLink(t)
	require.NoError(t, v.Close())

	_, err := l.Write([]byte{0x01})
	require.ErrorIs(t, err, ex10.ErrCommunicationFailed)
}

func TestPortWriteFailure(t *testing.T) {
	t.Parallel()
	l, b, _ := newBridgeLink(t)
	b.writeErr = errors.New("usb disconnected")

	_, err := l.Write([]byte{0x01})
	require.ErrorIs(t, err, ex10.ErrTransportWrite)
	assert.True(t, ex10.IsRetryable(err))
}

func TestOversizedTransfers(t *testing.T) {
	t.Parallel()
	l, _, _ := newBridgeLink(t)

	_, err := l.Write(make([]byte, maxPayload+1))
	require.ErrorIs(t, err, ex10.ErrDataTooLarge)
	_, err = l.Read(make([]byte, maxPayload+1))
	require.ErrorIs(t, err, ex10.ErrDataTooLarge)
}

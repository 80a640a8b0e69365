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

package spi

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	ex10 "github.com/ZaparooProject/go-ex10"
)

// fakePort records what is clocked out and answers reads from a queue.
type fakePort struct {
	txErr    error
	written  [][]byte
	answers  [][]byte
	speeds   []physic.Frequency
	mode     spi.Mode
	mu       sync.Mutex
	closed   int
	maxTx    int
	connects int
}

func (p *fakePort) String() string { return "fake-spi" }

func (p *fakePort) Connect(f physic.Frequency, mode spi.Mode, _ int) (spi.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	p.speeds = append(p.speeds, f)
	p.mode = mode
	return p, nil
}

func (*fakePort) LimitSpeed(physic.Frequency) error { return nil }

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (*fakePort) Duplex() conn.Duplex { return conn.Full }

func (p *fakePort) Tx(w, r []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.txErr != nil {
		return p.txErr
	}
	if r == nil {
		p.written = append(p.written, append([]byte(nil), w...))
		return nil
	}
	if len(p.answers) > 0 {
		copy(r, p.answers[0])
		p.answers = p.answers[1:]
	}
	return nil
}

func (*fakePort) TxPackets([]spi.Packet) error {
	return errors.New("not supported")
}

func (p *fakePort) MaxTxSize() int { return p.maxTx }

func newPin(name string) *gpiotest.Pin {
	return &gpiotest.Pin{N: name, EdgesChan: make(chan gpio.Level, 4)}
}

func newTestLink(t *testing.T) (*Link, *fakePort, Pins) {
	t.Helper()
	port := &fakePort{}
	pins := Pins{Ready: newPin("READY_N"), Irq: newPin("IRQ_N"), Reset: newPin("RESET_N")}
	l, err := New(port, pins, Config{SpeedHz: ex10.ApplicationClockHz})
	require.NoError(t, err)
	return l, port, pins
}

func setLevel(t *testing.T, p gpio.PinIn, l gpio.Level) {
	t.Helper()
	pin, ok := p.(*gpiotest.Pin)
	require.True(t, ok)
	require.NoError(t, pin.Out(l))
}

func TestNewConfiguresPins(t *testing.T) {
	t.Parallel()
	l, port, pins := newTestLink(t)

	assert.Equal(t, gpio.High, pins.Reset.(*gpiotest.Pin).Read())
	assert.Equal(t, spi.Mode1, port.mode)
	assert.Equal(t, []physic.Frequency{4 * physic.MegaHertz}, port.speeds)
	assert.Equal(t, ex10.LinkSPI, l.Type())
	assert.Equal(t, "fake-spi", l.String())
}

func TestNewRequiresPins(t *testing.T) {
	t.Parallel()
	_, err := New(&fakePort{}, Pins{Ready: newPin("READY_N")}, Config{})
	require.ErrorIs(t, err, ex10.ErrInvalidParameter)
}

func TestWriteRead(t *testing.T) {
	t.Parallel()
	l, port, _ := newTestLink(t)
	port.answers = [][]byte{{0xA5, 0x01, 0x02}}

	n, err := l.Write([]byte{0x01, 0x06, 0x00, 0x02, 0x00})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, [][]byte{{0x01, 0x06, 0x00, 0x02, 0x00}}, port.written)

	buf := make([]byte, 3)
	n, err = l.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0xA5, 0x01, 0x02}, buf)
}

func TestWriteTooLarge(t *testing.T) {
	t.Parallel()
	port := &fakePort{maxTx: 16}
	l, err := New(port, Pins{Ready: newPin("R"), Reset: newPin("X")}, Config{})
	require.NoError(t, err)

	_, err = l.Write(make([]byte, 17))
	require.ErrorIs(t, err, ex10.ErrDataTooLarge)
	assert.Empty(t, port.written)
}

func TestTxErrorIsTransient(t *testing.T) {
	t.Parallel()
	l, port, _ := newTestLink(t)
	port.txErr = errors.New("spidev: EIO")

	_, err := l.Write([]byte{1})
	require.ErrorIs(t, err, ex10.ErrTransportWrite)
	assert.True(t, ex10.IsRetryable(err))

	_, err = l.Read(make([]byte, 1))
	require.ErrorIs(t, err, ex10.ErrTransportRead)
}

func TestWaitReady(t *testing.T) {
	t.Parallel()
	l, _, pins := newTestLink(t)

	err := l.WaitReady(5 * time.Millisecond)
	require.ErrorIs(t, err, ex10.ErrTransportTimeout)

	setLevel(t, pins.Ready, gpio.Low)
	require.NoError(t, l.WaitReady(time.Millisecond))
}

func TestWaitReadyOnEdge(t *testing.T) {
	t.Parallel()
	l, _, pins := newTestLink(t)
	ready := pins.Ready.(*gpiotest.Pin)

	go func() {
		time.Sleep(2 * time.Millisecond)
		_ = ready.Out(gpio.Low)
		ready.EdgesChan <- gpio.Low
	}()
	require.NoError(t, l.WaitReady(time.Second))
}

func TestWaitForInterrupt(t *testing.T) {
	t.Parallel()
	l, _, pins := newTestLink(t)

	fired, err := l.WaitForInterrupt(2 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, fired)

	setLevel(t, pins.Irq, gpio.Low)
	fired, err = l.WaitForInterrupt(time.Millisecond)
	require.NoError(t, err)
	assert.True(t, fired)

	noIrq, err := New(&fakePort{}, Pins{Ready: newPin("R"), Reset: newPin("X")}, Config{})
	require.NoError(t, err)
	_, err = noIrq.WaitForInterrupt(time.Millisecond)
	require.ErrorIs(t, err, ex10.ErrInvalidParameter)
}

func TestResetLines(t *testing.T) {
	t.Parallel()
	l, _, pins := newTestLink(t)
	reset := pins.Reset.(*gpiotest.Pin)

	require.NoError(t, l.AssertReset())
	assert.Equal(t, gpio.Low, reset.Read())
	require.NoError(t, l.DeassertReset())
	assert.Equal(t, gpio.High, reset.Read())

	setLevel(t, pins.Ready, gpio.Low)
	require.NoError(t, l.PulseReset(context.Background(), 10*time.Millisecond))
	assert.Equal(t, gpio.High, reset.Read())
}

func TestSetClockReconnects(t *testing.T) {
	t.Parallel()
	l, port, _ := newTestLink(t)

	require.NoError(t, l.SetClock(ex10.BootloaderClockHz))
	assert.Equal(t, []physic.Frequency{4 * physic.MegaHertz, physic.MegaHertz}, port.speeds)
	require.ErrorIs(t, l.SetClock(0), ex10.ErrInvalidParameter)
}

func TestSetClockReopensPort(t *testing.T) {
	t.Parallel()
	l, first, _ := newTestLink(t)
	second := &fakePort{}
	l.reopen = func() (spi.PortCloser, error) { return second, nil }

	require.NoError(t, l.SetClock(ex10.BootloaderClockHz))
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 1, second.connects)
}

func TestClose(t *testing.T) {
	t.Parallel()
	l, port, _ := newTestLink(t)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Equal(t, 1, port.closed)

	_, err := l.Write([]byte{1})
	require.ErrorIs(t, err, ex10.ErrNotConnected)
}

func TestLinkDrivesDevice(t *testing.T) {
	t.Parallel()
	l, port, pins := newTestLink(t)
	setLevel(t, pins.Ready, gpio.Low)
	port.answers = [][]byte{{0xA5, 0x02, 0x00}}

	dev, err := ex10.New(l)
	require.NoError(t, err)
	loc, err := dev.RunningLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Application", loc.String())
	require.Len(t, port.written, 1)
	assert.True(t, bytes.HasPrefix(port.written[0], []byte{0x01, 0x06, 0x00}))
}

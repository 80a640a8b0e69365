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

// Package spi links to an Ex10 over a native SPI bus, with READY_N, IRQ_N
// and RESET_N on GPIO pins.
package spi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/internal/transport"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Ex10 SPI framing: CPOL=0, CPHA=1, 8-bit words.
const (
	Mode = spi.Mode1
	Bits = 8
)

// Default Raspberry Pi header wiring of the Impinj reader board.
const (
	DefaultReadyPin = "GPIO16"
	DefaultIrqPin   = "GPIO20"
	DefaultResetPin = "GPIO19"
)

// resetPulse is how long RESET_N is held low.
const resetPulse = time.Millisecond

// Config selects the bus, pins and clock of a link.
type Config struct {
	Logger *slog.Logger
	// Port is the spireg name, e.g. "/dev/spidev0.0"; empty picks the first bus.
	Port     string
	ReadyPin string
	IrqPin   string
	ResetPin string
	SpeedHz  int64
}

// DefaultConfig returns the reader board wiring at the bootloader clock.
func DefaultConfig() Config {
	return Config{
		ReadyPin: DefaultReadyPin,
		IrqPin:   DefaultIrqPin,
		ResetPin: DefaultResetPin,
		SpeedHz:  ex10.BootloaderClockHz,
	}
}

// Pins are the handshake lines of a link. Irq may be nil, in which case
// WaitForInterrupt fails.
type Pins struct {
	Ready gpio.PinIn
	Irq   gpio.PinIn
	Reset gpio.PinOut
}

// Link implements ex10.Link, ex10.InterruptSource and ex10.ClockSetter.
type Link struct {
	port   spi.PortCloser
	conn   spi.Conn
	reopen func() (spi.PortCloser, error)
	logger *slog.Logger
	pins   Pins
	name   string
	maxTx  int
	mu     sync.Mutex
	closed bool
}

// Open initializes the host drivers, opens the bus and looks up the pins
// named in cfg.
func Open(cfg Config) (*Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	pins, err := lookupPins(cfg)
	if err != nil {
		return nil, err
	}
	opener := func() (spi.PortCloser, error) {
		p, err := spireg.Open(cfg.Port)
		if err != nil {
			return nil, fmt.Errorf("failed to open SPI port %q: %w", cfg.Port, err)
		}
		return p, nil
	}
	port, err := opener()
	if err != nil {
		return nil, err
	}
	l, err := New(port, pins, cfg)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	l.reopen = opener
	return l, nil
}

func lookupPins(cfg Config) (Pins, error) {
	var pins Pins
	byName := func(name, role string) (gpio.PinIO, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%s pin %q: %w", role, name, ex10.ErrDeviceNotFound)
		}
		return p, nil
	}
	ready, err := byName(cfg.ReadyPin, "READY_N")
	if err != nil {
		return pins, err
	}
	reset, err := byName(cfg.ResetPin, "RESET_N")
	if err != nil {
		return pins, err
	}
	pins.Ready, pins.Reset = ready, reset
	if cfg.IrqPin != "" {
		irq, err := byName(cfg.IrqPin, "IRQ_N")
		if err != nil {
			return pins, err
		}
		pins.Irq = irq
	}
	return pins, nil
}

// New builds a link on an already opened port. The handshake inputs are
// set to pull up with falling edge detection and RESET_N is driven high.
func New(port spi.PortCloser, pins Pins, cfg Config) (*Link, error) {
	if port == nil || pins.Ready == nil || pins.Reset == nil {
		return nil, fmt.Errorf("spi link: %w", ex10.ErrInvalidParameter)
	}
	if cfg.SpeedHz <= 0 {
		cfg.SpeedHz = ex10.BootloaderClockHz
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Port
	if name == "" {
		name = port.String()
	}

	if err := pins.Ready.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("READY_N: %w", err)
	}
	if pins.Irq != nil {
		if err := pins.Irq.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			return nil, fmt.Errorf("IRQ_N: %w", err)
		}
	}
	if err := pins.Reset.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("RESET_N: %w", err)
	}

	l := &Link{port: port, pins: pins, name: name, logger: logger}
	if err := l.connect(cfg.SpeedHz); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Link) connect(hz int64) error {
	c, err := l.port.Connect(physic.Frequency(hz)*physic.Hertz, Mode, Bits)
	if err != nil {
		return ex10.NewTransportError("connect", l.name, err, ex10.ErrorTypePermanent)
	}
	l.conn = c
	l.maxTx = ex10.DefaultBurstSize + 1
	if lim, ok := c.(conn.Limits); ok && lim.MaxTxSize() > 0 {
		l.maxTx = lim.MaxTxSize()
	}
	return nil
}

func (l *Link) checkOpen(op string, n int) error {
	if l.closed {
		return ex10.NewTransportError(op, l.name, ex10.ErrNotConnected, ex10.ErrorTypePermanent)
	}
	if n > l.maxTx {
		return ex10.NewDataTooLargeError(op, l.name)
	}
	return nil
}

// Write clocks p out in a single chip-select assertion.
func (l *Link) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen("write", len(p)); err != nil {
		return 0, err
	}
	if err := l.conn.Tx(p, nil); err != nil {
		return 0, ex10.NewTransportError("write", l.name, fmt.Errorf("%w: %w", ex10.ErrTransportWrite, err),
			ex10.ErrorTypeTransient)
	}
	return len(p), nil
}

// Read clocks len(p) bytes in while sending zeros.
func (l *Link) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen("read", len(p)); err != nil {
		return 0, err
	}
	if err := l.conn.Tx(make([]byte, len(p)), p); err != nil {
		return 0, ex10.NewTransportError("read", l.name, fmt.Errorf("%w: %w", ex10.ErrTransportRead, err),
			ex10.ErrorTypeTransient)
	}
	return len(p), nil
}

// waitLow returns true once pin reads Low, waiting for falling edges until
// timeout passes.
func waitLow(pin gpio.PinIn, timeout time.Duration) bool {
	if pin.Read() == gpio.Low {
		return true
	}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if pin.WaitForEdge(remaining) && pin.Read() == gpio.Low {
			return true
		}
	}
}

// WaitReady blocks until READY_N is low.
func (l *Link) WaitReady(timeout time.Duration) error {
	if waitLow(l.pins.Ready, timeout) {
		return nil
	}
	return ex10.NewTimeoutError("WaitReady", l.name)
}

// WaitForInterrupt blocks until IRQ_N is low. It returns false on timeout.
func (l *Link) WaitForInterrupt(timeout time.Duration) (bool, error) {
	if l.pins.Irq == nil {
		return false, ex10.NewTransportError("WaitForInterrupt", l.name,
			fmt.Errorf("no IRQ_N pin: %w", ex10.ErrInvalidParameter), ex10.ErrorTypePermanent)
	}
	return waitLow(l.pins.Irq, timeout), nil
}

// AssertReset drives RESET_N low.
func (l *Link) AssertReset() error {
	if err := l.pins.Reset.Out(gpio.Low); err != nil {
		return ex10.NewTransportError("AssertReset", l.name, err, ex10.ErrorTypeTransient)
	}
	return nil
}

// DeassertReset releases RESET_N.
func (l *Link) DeassertReset() error {
	if err := l.pins.Reset.Out(gpio.High); err != nil {
		return ex10.NewTransportError("DeassertReset", l.name, err, ex10.ErrorTypeTransient)
	}
	return nil
}

// PulseReset holds RESET_N low for a millisecond, then waits for READY_N.
func (l *Link) PulseReset(ctx context.Context, readyTimeout time.Duration) error {
	if err := l.AssertReset(); err != nil {
		return err
	}
	time.Sleep(resetPulse)
	if err := l.DeassertReset(); err != nil {
		return err
	}
	_, err := transport.PollUntil(ctx, readyTimeout, time.Millisecond, "PulseReset", l.name,
		func() (struct{}, bool, error) {
			return struct{}{}, l.pins.Ready.Read() != gpio.Low, nil
		})
	return err
}

// SetClock reconnects the bus at hz. Ports that cannot be connected twice
// are closed and opened again.
func (l *Link) SetClock(hz int64) error {
	if hz <= 0 {
		return fmt.Errorf("clock %d: %w", hz, ex10.ErrInvalidParameter)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ex10.NewTransportError("SetClock", l.name, ex10.ErrNotConnected, ex10.ErrorTypePermanent)
	}
	if l.reopen != nil {
		if err := l.port.Close(); err != nil {
			l.logger.Warn("spi close before reconnect", "port", l.name, "err", err)
		}
		p, err := l.reopen()
		if err != nil {
			l.closed = true
			return ex10.NewTransportError("SetClock", l.name, err, ex10.ErrorTypePermanent)
		}
		l.port = p
	}
	if err := l.connect(hz); err != nil {
		return err
	}
	l.logger.Debug("spi clock set", "port", l.name, "hz", hz)
	return nil
}

// Close releases the bus. Pins are left as they are.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.port.Close(); err != nil {
		return fmt.Errorf("failed to close SPI port: %w", err)
	}
	return nil
}

// Type returns ex10.LinkSPI.
func (*Link) Type() ex10.LinkType {
	return ex10.LinkSPI
}

// String returns the port name.
func (l *Link) String() string {
	return l.name
}

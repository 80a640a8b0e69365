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

// Package polling services Ex10 interrupts in the background. A Monitor
// waits for IRQ_N edges and hands each one to Device.HandleInterrupt, so
// event fifo drains reach the caller without busy polling.
package polling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/registers"
)

// Callbacks are invoked from the monitor goroutine.
type Callbacks struct {
	// OnInterrupt decides whether the event fifo is drained. It runs with
	// the link held and must not call the device. When nil the fifo is
	// drained on the fifo interrupts.
	OnInterrupt func(registers.InterruptStatusFields) bool
	// OnFifo receives each drained buffer and must Release it. When nil the
	// buffer goes straight back to the pool.
	OnFifo func(*ex10.FifoBuffer)
	// OnError is told about every failed wait or service.
	OnError func(error)
}

// Metrics tracks what a Monitor has done
type Metrics struct {
	Interrupts  int64         // IRQ_N edges seen
	Idle        int64         // waits that timed out
	Drains      int64         // fifo buffers delivered
	Errors      int64         // failed waits and services
	Requests    int64         // requests run with Do
	LastLatency time.Duration // edge to end of service, last interrupt
}

// Monitor owns the interrupt loop for one device.
type Monitor struct {
	device    *ex10.Device
	irq       ex10.InterruptSource
	config    *Config
	logger    *slog.Logger
	callbacks Callbacks
	pending   atomic.Pointer[request]
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	mu        sync.Mutex
	running   atomic.Bool
	state     atomic.Int32

	interrupts  atomic.Int64
	idle        atomic.Int64
	drains      atomic.Int64
	errors      atomic.Int64
	requests    atomic.Int64
	lastLatency atomic.Int64
}

// NewMonitor creates a monitor for device. irq is usually the device's
// link; a nil config uses DefaultConfig.
func NewMonitor(device *ex10.Device, irq ex10.InterruptSource, config *Config) (*Monitor, error) {
	if device == nil {
		return nil, errors.New("device cannot be nil")
	}
	if irq == nil {
		src, ok := device.Link().(ex10.InterruptSource)
		if !ok {
			return nil, fmt.Errorf("link has no IRQ_N: %w", ex10.ErrInvalidParameter)
		}
		irq = src
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.EdgeTimeout <= 0 {
		return nil, fmt.Errorf("edge timeout %v: %w", config.EdgeTimeout, ex10.ErrInvalidParameter)
	}
	return &Monitor{
		device: device,
		irq:    irq,
		config: config,
		logger: slog.Default(),
	}, nil
}

// SetCallbacks replaces the callbacks. It takes effect on the next Start.
func (m *Monitor) SetCallbacks(cb Callbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = cb
}

// SetLogger sets the logger used for loop errors.
func (m *Monitor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Start writes the interrupt mask, installs the device callbacks and starts
// the loop. It does not block.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrMonitorRunning
	}

	m.mu.Lock()
	cb := m.callbacks
	m.mu.Unlock()

	decide := cb.OnInterrupt
	if decide == nil {
		decide = func(s registers.InterruptStatusFields) bool {
			return s.EventFifoAboveThresh || s.EventFifoFull
		}
	}
	if err := m.device.RegisterInterruptCallback(ctx, m.config.Enable, decide); err != nil {
		m.running.Store(false)
		return fmt.Errorf("start monitor: %w", err)
	}
	m.device.RegisterFifoCallback(func(b *ex10.FifoBuffer) {
		m.drains.Add(1)
		if cb.OnFifo == nil {
			b.Release()
			return
		}
		cb.OnFifo(b)
	})

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.err = nil
	m.mu.Unlock()

	go m.loop(loopCtx, done, cb.OnError)
	return nil
}

// Stop ends the loop, waits for it up to ctx, then masks interrupts and
// removes the device callbacks.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("stop monitor: %w", ctx.Err())
	}

	m.mu.Lock()
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	m.device.RegisterFifoCallback(nil)
	if err := m.device.UnregisterInterruptCallback(ctx); err != nil {
		return fmt.Errorf("stop monitor: %w", err)
	}
	return nil
}

// IsRunning reports whether the loop is active.
func (m *Monitor) IsRunning() bool {
	return m.running.Load()
}

// State returns where the loop is.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Err returns the error that stopped the loop, if any.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// GetMetrics returns current operational metrics
func (m *Monitor) GetMetrics() Metrics {
	return Metrics{
		Interrupts:  m.interrupts.Load(),
		Idle:        m.idle.Load(),
		Drains:      m.drains.Load(),
		Errors:      m.errors.Load(),
		Requests:    m.requests.Load(),
		LastLatency: time.Duration(m.lastLatency.Load()),
	}
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}, onError func(error)) {
	defer func() {
		m.failPending(ErrMonitorNotRunning)
		m.state.Store(int32(StateStopped))
		m.running.Store(false)
		close(done)
	}()

	consecutive := 0
	fail := func(err error) bool {
		m.errors.Add(1)
		consecutive++
		m.logger.Debug("monitor error", "err", err, "consecutive", consecutive)
		if onError != nil {
			onError(err)
		}
		if m.config.MaxConsecutiveErrors > 0 && consecutive >= m.config.MaxConsecutiveErrors {
			m.mu.Lock()
			m.err = fmt.Errorf("%w: %w", ErrTooManyErrors, err)
			m.mu.Unlock()
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.config.ErrorBackoff):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}
		m.runPending(ctx)

		m.state.Store(int32(StateWaiting))
		fired, err := m.irq.WaitForInterrupt(m.config.EdgeTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !fail(fmt.Errorf("wait for interrupt: %w", err)) {
				return
			}
			continue
		}
		if !fired {
			m.idle.Add(1)
			continue
		}

		m.interrupts.Add(1)
		m.state.Store(int32(StateServicing))
		start := time.Now()
		err = m.device.HandleInterrupt(ctx)
		m.lastLatency.Store(int64(time.Since(start)))
		if err != nil {
			if !fail(err) {
				return
			}
			continue
		}
		consecutive = 0
	}
}

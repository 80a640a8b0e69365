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

package polling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/eventfifo"
	testutil "github.com/ZaparooProject/go-ex10/internal/testing"
	"github.com/ZaparooProject/go-ex10/registers"
)

func newTestDevice(t *testing.T) (*ex10.Device, *testutil.VirtualEx10) {
	t.Helper()
	v := testutil.NewVirtualEx10()
	dev, err := ex10.New(v, ex10.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	return dev, v
}

func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.EdgeTimeout = 5 * time.Millisecond
	cfg.ErrorBackoff = time.Millisecond
	return cfg
}

func newTestMonitor(t *testing.T, cb Callbacks) (*Monitor, *ex10.Device, *testutil.VirtualEx10) {
	t.Helper()
	dev, v := newTestDevice(t)
	m, err := NewMonitor(dev, nil, fastConfig())
	require.NoError(t, err)
	m.SetCallbacks(cb)
	require.NoError(t, m.Start(context.Background()))
	return m, dev, v
}

func stop(t *testing.T, m *Monitor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
}

func TestNewMonitor(t *testing.T) {
	t.Parallel()
	dev, v := newTestDevice(t)

	t.Run("DefaultConfig", func(t *testing.T) {
		t.Parallel()
		m, err := NewMonitor(dev, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), m.config)
		assert.Equal(t, v, m.irq)
		assert.Equal(t, StateIdle, m.State())
		assert.False(t, m.IsRunning())
	})

	t.Run("NilDevice", func(t *testing.T) {
		t.Parallel()
		_, err := NewMonitor(nil, v, nil)
		require.Error(t, err)
	})

	t.Run("ZeroEdgeTimeout", func(t *testing.T) {
		t.Parallel()
		_, err := NewMonitor(dev, v, &Config{})
		require.ErrorIs(t, err, ex10.ErrInvalidParameter)
	})
}

func TestMonitorDeliversFifo(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var packets []eventfifo.Packet
	var seen registers.InterruptStatusFields
	m, dev, v := newTestMonitor(t, Callbacks{
		OnInterrupt: func(s registers.InterruptStatusFields) bool {
			mu.Lock()
			seen = s
			mu.Unlock()
			return true
		},
		OnFifo: func(b *ex10.FifoBuffer) {
			mu.Lock()
			packets = append(packets, b.Packets()...)
			mu.Unlock()
			b.Release()
		},
	})

	hello := eventfifo.MustBuild(eventfifo.TypeHelloWorld, 1, eventfifo.HelloWorld{Sku: 0x0710}, nil)
	require.NoError(t, dev.InsertFifoEvent(context.Background(), true, hello))

	require.Eventually(t, func() bool {
		return m.GetMetrics().Drains == 1
	}, time.Second, time.Millisecond)
	stop(t, m)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, packets, 1)
	assert.Equal(t, eventfifo.TypeHelloWorld, packets[0].Type)
	assert.True(t, seen.EventFifoAboveThresh)
	assert.Equal(t, 0, v.FifoLen())

	metrics := m.GetMetrics()
	assert.GreaterOrEqual(t, metrics.Interrupts, int64(1))
	assert.Zero(t, metrics.Errors)
	assert.Positive(t, int64(metrics.LastLatency))
	assert.Equal(t, ex10.DefaultFifoBuffers, dev.FifoPool().Len())
}

func TestMonitorDefaultDrainReleases(t *testing.T) {
	t.Parallel()
	m, dev, v := newTestMonitor(t, Callbacks{})

	hello := eventfifo.MustBuild(eventfifo.TypeHelloWorld, 1, eventfifo.HelloWorld{}, nil)
	require.NoError(t, dev.InsertFifoEvent(context.Background(), true, hello))

	require.Eventually(t, func() bool {
		return m.GetMetrics().Drains == 1
	}, time.Second, time.Millisecond)
	stop(t, m)
	assert.Equal(t, 0, v.FifoLen())
	assert.Equal(t, ex10.DefaultFifoBuffers, dev.FifoPool().Len())
}

func TestMonitorIdle(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMonitor(t, Callbacks{})

	require.Eventually(t, func() bool {
		return m.GetMetrics().Idle >= 2
	}, time.Second, time.Millisecond)
	assert.Zero(t, m.GetMetrics().Interrupts)
	stop(t, m)
	assert.Equal(t, StateStopped, m.State())
	assert.False(t, m.IsRunning())
}

func TestMonitorStartStop(t *testing.T) {
	t.Parallel()
	m, _, v := newTestMonitor(t, Callbacks{})

	require.ErrorIs(t, m.Start(context.Background()), ErrMonitorRunning)
	assert.NotZero(t, v.Memory(registers.InterruptMask.Address, 1)[0])

	stop(t, m)
	require.NoError(t, m.Stop(context.Background()))
	assert.Zero(t, v.Memory(registers.InterruptMask.Address, 1)[0])

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.IsRunning())
	stop(t, m)
}

func TestMonitorStopsAfterErrors(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var errs []error
	dev, v := newTestDevice(t)
	cfg := fastConfig()
	cfg.MaxConsecutiveErrors = 3
	m, err := NewMonitor(dev, v, cfg)
	require.NoError(t, err)
	m.SetCallbacks(Callbacks{
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	})
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, v.Close())

	require.Eventually(t, func() bool { return !m.IsRunning() }, time.Second, time.Millisecond)
	require.ErrorIs(t, m.Err(), ErrTooManyErrors)
	require.ErrorIs(t, m.Err(), testutil.ErrClosed)
	assert.Equal(t, int64(3), m.GetMetrics().Errors)

	mu.Lock()
	assert.Len(t, errs, 3)
	mu.Unlock()

	require.Error(t, m.Stop(context.Background()), "unmasking fails on a closed link")
}

func TestMonitorDo(t *testing.T) {
	t.Parallel()
	m, _, v := newTestMonitor(t, Callbacks{})

	err := m.Do(context.Background(), func(ctx context.Context, d *ex10.Device) error {
		assert.Equal(t, StateRequest, m.State())
		return d.WriteRegister(ctx, registers.EventFifoIntLevel, []byte{0x20, 0x00})
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x20, 0x00}, v.Memory(registers.EventFifoIntLevel.Address, 2))
	assert.Equal(t, int64(1), m.GetMetrics().Requests)

	stop(t, m)
	err = m.Do(context.Background(), func(context.Context, *ex10.Device) error { return nil })
	require.ErrorIs(t, err, ErrMonitorNotRunning)
}

func TestMonitorDoCancelled(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestMonitor(t, Callbacks{})
	defer stop(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Do(ctx, func(context.Context, *ex10.Device) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestStateString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		want  string
		state State
	}{
		{"Idle", StateIdle},
		{"Waiting", StateWaiting},
		{"Servicing", StateServicing},
		{"Request", StateRequest},
		{"Stopped", StateStopped},
		{"Unknown", State(42)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

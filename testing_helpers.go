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
	"sync"
	"time"
)

// MockLink is a scripted Link for tests. Each Write records the
// transaction and selects the bytes the next Read returns: either from
// ResponseFunc or from the queued responses.
type MockLink struct {
	ResponseFunc func(cmd []byte) []byte
	ReadyErr     error
	WriteErr     error
	ReadErr      error
	blockChan    chan struct{}
	pending      []byte
	responses    [][]byte
	writes       [][]byte
	readSizes    []int
	mu           sync.Mutex
	ShortWrite   int
	resets       int
	blocking     bool
	closed       bool
}

// NewMockLink returns a link that answers every transaction with a lone
// Success status byte unless told otherwise.
func NewMockLink() *MockLink {
	return &MockLink{blockChan: make(chan struct{})}
}

// QueueResponse appends a response to be returned by the read following
// the next write.
func (m *MockLink) QueueResponse(resp ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range resp {
		m.responses = append(m.responses, append([]byte(nil), r...))
	}
}

// SetResponseFunc installs a function computing each response from the
// command just written.
func (m *MockLink) SetResponseFunc(fn func(cmd []byte) []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResponseFunc = fn
}

// Block makes WaitReady hang until Unblock or Close.
func (m *MockLink) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocking = true
}

// Unblock releases every blocked WaitReady.
func (m *MockLink) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blocking && !m.closed {
		m.blocking = false
		close(m.blockChan)
		m.blockChan = make(chan struct{})
	}
}

// Writes returns a copy of every transaction written so far.
func (m *MockLink) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// ReadSizes returns the buffer length of every Read call.
func (m *MockLink) ReadSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.readSizes...)
}

// Resets returns how many times RESET_N was pulsed.
func (m *MockLink) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// WaitReady implements Link.
func (m *MockLink) WaitReady(timeout time.Duration) error {
	m.mu.Lock()
	blocking, ch, err, closed := m.blocking, m.blockChan, m.ReadyErr, m.closed
	m.mu.Unlock()

	if closed {
		return ErrNotConnected
	}
	if err != nil {
		return err
	}
	if !blocking {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return NewTimeoutError("WaitReady", "mock")
	}
}

// Write implements Link.
func (m *MockLink) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrNotConnected
	}
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.writes = append(m.writes, append([]byte(nil), p...))
	switch {
	case m.ResponseFunc != nil:
		m.pending = m.ResponseFunc(append([]byte(nil), p...))
	case len(m.responses) > 0:
		m.pending = m.responses[0]
		m.responses = m.responses[1:]
	default:
		m.pending = []byte{byte(Success)}
	}
	if m.ShortWrite > 0 && m.ShortWrite < len(p) {
		return m.ShortWrite, nil
	}
	return len(p), nil
}

// Read implements Link.
func (m *MockLink) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrNotConnected
	}
	m.readSizes = append(m.readSizes, len(p))
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

// AssertReset implements Link.
func (m *MockLink) AssertReset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

// DeassertReset implements Link.
func (*MockLink) DeassertReset() error {
	return nil
}

// Close unblocks all waiters and marks the link closed.
func (m *MockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		if m.blocking {
			close(m.blockChan)
		}
	}
	return nil
}

// Type returns LinkMock.
func (*MockLink) Type() LinkType {
	return LinkMock
}

// Closed reports whether Close has been called.
func (m *MockLink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

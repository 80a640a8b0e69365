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
	"sync/atomic"

	"github.com/ZaparooProject/go-ex10/eventfifo"
	"github.com/ZaparooProject/go-ex10/internal/frame"
)

// Fifo pool defaults.
const (
	DefaultFifoBuffers    = 4
	DefaultFifoBufferSize = frame.EventFifoSize
)

// FifoBuffer holds one drain of the event fifo. It is owned by whoever
// received it from the pool until it is put back.
type FifoBuffer struct {
	pool  *FifoBufferPool
	data  []byte
	n     int
	inUse atomic.Bool
}

// Bytes returns the drained bytes. The slice is reused once the buffer
// returns to the pool.
func (b *FifoBuffer) Bytes() []byte {
	return b.data[:b.n]
}

// Cap returns the largest drain the buffer holds.
func (b *FifoBuffer) Cap() int {
	return len(b.data)
}

// Packets decodes the drained bytes.
func (b *FifoBuffer) Packets() []eventfifo.Packet {
	return eventfifo.Decode(b.Bytes())
}

// Release returns the buffer to its pool.
func (b *FifoBuffer) Release() {
	if b.pool != nil {
		b.pool.Put(b)
	}
}

// FifoBufferPool is a fixed set of fifo buffers handed out one owner at a
// time. Get never allocates.
type FifoBufferPool struct {
	free chan *FifoBuffer
	size int
}

// NewFifoBufferPool allocates count buffers of size bytes each. size is
// rounded down to a whole number of words.
func NewFifoBufferPool(count, size int) *FifoBufferPool {
	count = max(count, 1)
	size &^= 3
	if size <= 0 {
		size = DefaultFifoBufferSize
	}
	p := &FifoBufferPool{free: make(chan *FifoBuffer, count), size: size}
	for range count {
		p.free <- &FifoBuffer{pool: p, data: make([]byte, size)}
	}
	return p
}

// Get takes a free buffer. It reports false when every buffer is in use.
func (p *FifoBufferPool) Get() (*FifoBuffer, bool) {
	select {
	case b := <-p.free:
		b.n = 0
		b.inUse.Store(true)
		return b, true
	default:
		return nil, false
	}
}

// Put returns b. Buffers from another pool, and buffers already back in
// the pool, are ignored.
func (p *FifoBufferPool) Put(b *FifoBuffer) {
	if b == nil || b.pool != p {
		return
	}
	if !b.inUse.CompareAndSwap(true, false) {
		debugln("fifo buffer returned twice")
		return
	}
	b.n = 0
	p.free <- b
}

// Len returns the number of free buffers.
func (p *FifoBufferPool) Len() int {
	return len(p.free)
}

// BufferSize returns the capacity of each buffer.
func (p *FifoBufferPool) BufferSize() int {
	return p.size
}

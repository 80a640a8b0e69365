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

package frame

import "sync"

var commandPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, MaxCommandSize+1)
		return &b
	},
}

// GetBuffer returns an empty scratch buffer with room for one transaction.
func GetBuffer() *[]byte {
	b, _ := commandPool.Get().(*[]byte)
	*b = (*b)[:0]
	return b
}

// PutBuffer returns a scratch buffer to the pool. Oversized buffers are
// dropped.
func PutBuffer(b *[]byte) {
	if b == nil || cap(*b) > 4*(MaxCommandSize+1) {
		return
	}
	commandPool.Put(b)
}

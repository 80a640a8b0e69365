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
	"encoding/binary"
	"fmt"

	"github.com/ZaparooProject/go-ex10/internal/frame"
)

// StartUpload opens an upload to dest carrying the first chunk.
func (c *Commands) StartUpload(ctx context.Context, dest byte, chunk []byte) error {
	if len(chunk) > c.burst()-2 {
		return HostErrBadCommandedLength
	}
	cmd := make([]byte, 0, 2+len(chunk))
	cmd = append(cmd, frame.OpStartUpload, dest)
	cmd = append(cmd, chunk...)
	defer c.acquire()()
	return c.simple(ctx, "StartUpload", cmd)
}

// ContinueUpload sends the next chunk of an open upload.
func (c *Commands) ContinueUpload(ctx context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return HostErrNullData
	}
	if len(chunk) > c.burst()-1 {
		return HostErrBadCommandedLength
	}
	cmd := make([]byte, 0, 1+len(chunk))
	cmd = append(cmd, frame.OpContinueUpload)
	cmd = append(cmd, chunk...)
	defer c.acquire()()
	return c.simple(ctx, "ContinueUpload", cmd)
}

// WriteInfoPage programs flash info page id with data sealed by a
// CRC-16/CCITT. Empty data erases the page.
func (c *Commands) WriteInfoPage(ctx context.Context, id byte, data []byte) error {
	if len(data) > frame.MaxInfoPageData {
		return HostErrBadCommandedLength
	}
	cmd := make([]byte, 0, 4+len(data))
	cmd = append(cmd, frame.OpWriteInfoPage, id)
	cmd = append(cmd, data...)
	cmd = binary.LittleEndian.AppendUint16(cmd, frame.InfoPageCRC(data))
	if len(cmd) > c.burst() {
		return HostErrBadCommandedLength
	}
	defer c.acquire()()
	if err := c.simple(ctx, "WriteInfoPage", cmd); err != nil {
		return fmt.Errorf("info page %d: %w", id, err)
	}
	return nil
}

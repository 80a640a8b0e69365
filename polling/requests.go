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
	"time"

	ex10 "github.com/ZaparooProject/go-ex10"
)

type request struct {
	ctx       context.Context
	fn        func(context.Context, *ex10.Device) error
	result    chan error
	createdAt time.Time
}

// Do runs fn on the monitor goroutine between interrupt waits, so it never
// interleaves with a fifo drain. It blocks until fn returns, ctx ends or
// the monitor stops. Only one request may be pending at a time.
func (m *Monitor) Do(ctx context.Context, fn func(context.Context, *ex10.Device) error) error {
	if !m.running.Load() {
		return ErrMonitorNotRunning
	}

	req := &request{
		ctx:       ctx,
		fn:        fn,
		result:    make(chan error, 1),
		createdAt: time.Now(),
	}
	if !m.pending.CompareAndSwap(nil, req) {
		return ErrRequestPending
	}
	if !m.running.Load() && m.pending.CompareAndSwap(req, nil) {
		return ErrMonitorNotRunning
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		m.pending.CompareAndSwap(req, nil)
		return ctx.Err()
	}
}

// runPending executes the queued request, if any.
func (m *Monitor) runPending(ctx context.Context) {
	req := m.pending.Swap(nil)
	if req == nil {
		return
	}
	if err := req.ctx.Err(); err != nil {
		req.result <- err
		return
	}

	m.state.Store(int32(StateRequest))
	rctx, cancel := context.WithCancel(req.ctx)
	stop := context.AfterFunc(ctx, cancel)
	err := req.fn(rctx, m.device)
	stop()
	cancel()

	m.requests.Add(1)
	m.logger.Debug("monitor request done", "queued", time.Since(req.createdAt), "err", err)
	req.result <- err
}

func (m *Monitor) failPending(err error) {
	if req := m.pending.Swap(nil); req != nil {
		req.result <- err
	}
}

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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/eventfifo"
	"github.com/ZaparooProject/go-ex10/polling"
)

// watch runs a monitor until ctx ends and hands each drained buffer to fn.
func watch(ctx context.Context, dev *ex10.Device, out io.Writer, fn func(*ex10.FifoBuffer)) error {
	m, err := polling.NewMonitor(dev, nil, nil)
	if err != nil {
		return err
	}
	m.SetCallbacks(polling.Callbacks{
		OnFifo: func(b *ex10.FifoBuffer) {
			defer b.Release()
			fn(b)
		},
		OnError: func(err error) {
			_, _ = fmt.Fprintf(out, "monitor: %v\n", err)
		},
	})
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopErr := m.Stop(context.Background())
	metrics := m.GetMetrics()
	_, _ = fmt.Fprintf(out, "%d interrupts, %d drains, %d errors\n", metrics.Interrupts, metrics.Drains, metrics.Errors)
	if err := m.Err(); err != nil {
		return err
	}
	return stopErr
}

func printPacket(out io.Writer, p eventfifo.Packet) {
	if !p.Valid {
		_, _ = fmt.Fprintf(out, "%10d %-28s invalid (%d bytes)\n", p.Time, p.Type, p.Len())
		return
	}
	fields, err := p.StaticFields()
	if err != nil {
		_, _ = fmt.Fprintf(out, "%10d %-28s %x\n", p.Time, p.Type, p.Static)
		return
	}
	_, _ = fmt.Fprintf(out, "%10d %-28s %+v\n", p.Time, p.Type, fields)
}

func runMonitor(ctx context.Context, dev *ex10.Device, _ []string, out io.Writer) error {
	_, _ = fmt.Fprintln(out, "Watching event fifo...")
	return watch(ctx, dev, out, func(b *ex10.FifoBuffer) {
		for _, p := range b.Packets() {
			printPacket(out, p)
		}
	})
}

func runCapture(ctx context.Context, dev *ex10.Device, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	path := fs.String("out", "capture.cbor", "capture file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := os.Create(*path)
	if err != nil {
		return fmt.Errorf("create capture: %w", err)
	}
	defer func() { _ = f.Close() }()

	rec, err := eventfifo.NewRecorder(f)
	if err != nil {
		return err
	}
	var recErr error
	err = watch(ctx, dev, out, func(b *ex10.FifoBuffer) {
		if _, err := rec.RecordBuffer(b.Bytes()); err != nil && recErr == nil {
			recErr = err
		}
	})
	_, _ = fmt.Fprintf(out, "%d packets written to %s\n", rec.Count(), *path)
	if recErr != nil {
		return recErr
	}
	return err
}

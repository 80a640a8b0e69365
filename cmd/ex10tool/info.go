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
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/registers"
)

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func runInfo(ctx context.Context, dev *ex10.Device, _ []string, out io.Writer) error {
	loc, err := dev.RunningLocation(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Running:    %s\n", loc)

	if loc != registers.Application {
		raw, err := dev.ReadRegister(ctx, registers.ImageValidity)
		if err != nil {
			return err
		}
		v := registers.ParseImageValidity(raw)
		_, _ = fmt.Fprintf(out, "Image:      valid=%t invalid=%t\n", v.ImageValid, v.ImageNonValid)
		return nil
	}

	regs := []registers.Info{
		registers.VersionString, registers.BuildNumber, registers.GitHash,
		registers.ProductSku, registers.SerialNumber, registers.ResetCause,
	}
	vals, err := dev.ReadMultiple(ctx, regs)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Version:    %s\n", cString(vals[0]))
	_, _ = fmt.Fprintf(out, "Build:      %d (git %08x)\n",
		binary.LittleEndian.Uint32(vals[1]), binary.LittleEndian.Uint32(vals[2]))
	_, _ = fmt.Fprintf(out, "SKU:        %s\n", cString(vals[3]))
	_, _ = fmt.Fprintf(out, "Serial:     %s\n", cString(vals[4]))
	_, _ = fmt.Fprintf(out, "ResetCause: 0x%04X\n", binary.LittleEndian.Uint16(vals[5]))
	return nil
}

func runLoopback(ctx context.Context, dev *ex10.Device, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("loopback", flag.ContinueOnError)
	n := fs.Int("n", 100, "number of transfers")
	size := fs.Int("size", 256, "bytes per transfer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n <= 0 || *size <= 0 || *size > ex10.DefaultBurstSize-4 {
		return fmt.Errorf("n %d size %d: %w", *n, *size, ex10.ErrInvalidParameter)
	}

	data := make([]byte, *size)
	start := time.Now()
	failed := 0
	for i := range *n {
		for j := range data {
			data[j] = byte(rand.IntN(256))
		}
		if _, err := dev.TestTransfer(ctx, data, true); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			_, _ = fmt.Fprintf(out, "transfer %d: %v\n", i, err)
		}
	}
	elapsed := time.Since(start)
	_, _ = fmt.Fprintf(out, "%d transfers of %d bytes in %s, %d failed\n", *n, *size, elapsed.Round(time.Millisecond), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d transfers failed", failed, *n)
	}
	return nil
}

func runDump(ctx context.Context, dev *ex10.Device, _ []string, out io.Writer) error {
	loc, err := dev.RunningLocation(ctx)
	if err != nil {
		return err
	}
	regs := registers.All()
	if loc != registers.Application {
		regs = registers.BootloaderRegisters()
	}
	var errs []error
	for _, r := range regs {
		if !r.Readable() {
			continue
		}
		val, err := dev.ReadRegister(ctx, r)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
			continue
		}
		_, _ = fmt.Fprintf(out, "0x%04X %-32s %s\n", r.Address, r.Name, hex.EncodeToString(val))
	}
	return errors.Join(errs...)
}

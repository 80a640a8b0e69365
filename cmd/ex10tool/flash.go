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
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/internal/frame"
	"github.com/ZaparooProject/go-ex10/registers"
)

func runUpload(ctx context.Context, dev *ex10.Device, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	path := fs.String("image", "", "application image to flash")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("-image is required")
	}
	image, err := os.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	loc, err := dev.Reset(ctx, registers.Bootloader)
	if err != nil {
		return err
	}
	if loc != registers.Bootloader {
		return fmt.Errorf("device stayed in %s", loc)
	}

	_, _ = fmt.Fprintf(out, "Uploading %d bytes...\n", len(image))
	if err := dev.UploadImage(ctx, frame.DestFlash, image); err != nil {
		return err
	}
	validity, err := dev.RevalidateImage(ctx)
	if err != nil {
		return err
	}
	if !validity.ImageValid {
		return errors.New("image did not validate")
	}
	_, _ = fmt.Fprintln(out, "Image valid, starting application")

	loc, err = dev.Reset(ctx, registers.Application)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Running: %s\n", loc)
	return nil
}

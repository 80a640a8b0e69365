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

//go:build linux

package spi

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/detection"
	tspi "github.com/ZaparooProject/go-ex10/transport/spi"
)

// spidev ioctls, _IOR('k', n, u32).
const (
	spiIocRdMaxSpeedHz = 0x80046B04
	spiIocRdMode32     = 0x80046B05
)

func newDetector() *detector {
	return &detector{
		pattern: DefaultPattern,
		access:  accessible,
		check:   checkSpidev,
		probe:   probeEx10,
	}
}

func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	return d.scan(ctx, opts)
}

func accessible(path string) error {
	return unix.Access(path, unix.R_OK|unix.W_OK)
}

// checkSpidev opens the node and reads its current mode and speed limit.
func checkSpidev(path string) (map[string]string, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = unix.Close(fd) }()

	mode, err := unix.IoctlGetUint32(fd, spiIocRdMode32)
	if err != nil {
		return nil, fmt.Errorf("%s is not a spidev node: %w", path, err)
	}
	speed, err := unix.IoctlGetUint32(fd, spiIocRdMaxSpeedHz)
	if err != nil {
		return nil, fmt.Errorf("%s: read max speed: %w", path, err)
	}
	return map[string]string{
		"mode":         fmt.Sprintf("0x%X", mode),
		"max_speed_hz": fmt.Sprint(speed),
	}, nil
}

// probeEx10 opens the bus with the reader board's pin wiring and runs a
// verified test transfer.
func probeEx10(ctx context.Context, path string) (map[string]string, error) {
	cfg := tspi.DefaultConfig()
	cfg.Port = path
	link, err := tspi.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = link.Close() }()

	dev, err := ex10.New(link, ex10.WithTimeout(200*time.Millisecond))
	if err != nil {
		return nil, err
	}
	if _, err := dev.TestTransfer(ctx, []byte{0xA5, 0x5A, 0x0F, 0xF0}, true); err != nil {
		return nil, err
	}
	loc, err := dev.RunningLocation(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"location": loc.String()}, nil
}

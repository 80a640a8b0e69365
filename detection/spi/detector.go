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

// Package spi finds spidev buses an Ex10 reader board may be wired to.
// Importing it registers the detector.
package spi

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ZaparooProject/go-ex10/detection"
)

// DefaultPattern matches the Linux spidev nodes.
const DefaultPattern = "/dev/spidev*"

// probeTimeout bounds a Full mode probe of one bus.
const probeTimeout = time.Second

type detector struct {
	access  func(path string) error
	check   func(path string) (map[string]string, error)
	probe   func(ctx context.Context, path string) (map[string]string, error)
	pattern string
}

// New returns the spidev detector for this platform.
func New() detection.Detector {
	return newDetector()
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return "spi"
}

// busInfo parses "spidevB.C" into bus and chip select.
func busInfo(path string) (bus, cs int, ok bool) {
	if _, err := fmt.Sscanf(filepath.Base(path), "spidev%d.%d", &bus, &cs); err != nil {
		return 0, 0, false
	}
	return bus, cs, true
}

func (d *detector) scan(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for spidev nodes: %w", err)
	}

	devices := make([]detection.DeviceInfo, 0, len(matches))
	for _, path := range matches {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}
		if detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}
		bus, cs, ok := busInfo(path)
		if !ok {
			continue
		}
		if err := d.access(path); err != nil {
			continue
		}
		dev, keep := d.describe(ctx, path, bus, cs, opts.Mode)
		if keep {
			devices = append(devices, dev)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *detector) describe(ctx context.Context, path string, bus, cs int, mode detection.Mode) (
	detection.DeviceInfo, bool,
) {
	dev := detection.DeviceInfo{
		Transport: "spi",
		Path:      path,
		Name:      fmt.Sprintf("SPI bus %d chip select %d", bus, cs),
		Metadata: map[string]string{
			"bus": fmt.Sprint(bus),
			"cs":  fmt.Sprint(cs),
		},
		Confidence: detection.Low,
	}
	// the reader board sits on CE0
	if cs == 0 {
		dev.Confidence = detection.Medium
	}
	if mode == detection.Passive {
		return dev, true
	}

	meta, err := d.check(path)
	if err != nil {
		return detection.DeviceInfo{}, false
	}
	for k, v := range meta {
		dev.Metadata[k] = v
	}
	if mode != detection.Full {
		return dev, true
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	meta, err = d.probe(probeCtx, path)
	if err != nil {
		if dev.Confidence == detection.Low {
			return detection.DeviceInfo{}, false
		}
		return dev, true
	}
	for k, v := range meta {
		dev.Metadata[k] = v
	}
	dev.Confidence = detection.High
	return dev, true
}

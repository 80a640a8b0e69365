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

// Package uart finds serial-attached Ex10 bridges. Importing it registers
// the detector.
package uart

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial/enumerator"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/detection"
	tuart "github.com/ZaparooProject/go-ex10/transport/uart"
)

const probeTimeout = 2 * time.Second

// serialPort is one enumerated serial device.
type serialPort struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

type detector struct {
	list  func() ([]serialPort, error)
	open  func(path string) error
	probe func(ctx context.Context, path string) (map[string]string, error)
}

// New returns the serial bridge detector.
func New() detection.Detector {
	return &detector{list: listPorts, open: openPort, probe: probeBridge}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string {
	return "uart"
}

func listPorts() ([]serialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]serialPort, 0, len(details))
	for _, d := range details {
		p := serialPort{
			Path:         d.Name,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
			IsUSB:        d.IsUSB,
		}
		if d.IsUSB {
			p.VIDPID = detection.NormalizeVIDPID(d.VID + ":" + d.PID)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func openPort(path string) error {
	l, err := tuart.Open(tuart.DefaultConfig(path))
	if err != nil {
		return err
	}
	return l.Close()
}

// probeBridge runs a verified test transfer through the bridge.
func probeBridge(ctx context.Context, path string) (map[string]string, error) {
	l, err := tuart.Open(tuart.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Close() }()

	dev, err := ex10.New(l, ex10.WithTimeout(500*time.Millisecond))
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

func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.list()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for _, p := range ports {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}
		if detection.IsPathIgnored(p.Path, opts.IgnorePaths) {
			continue
		}
		if p.VIDPID != "" && detection.IsBlocked(p.VIDPID, opts.Blocklist) {
			continue
		}
		if dev, ok := d.describe(ctx, p, opts.Mode); ok {
			devices = append(devices, dev)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *detector) describe(ctx context.Context, p serialPort, mode detection.Mode) (detection.DeviceInfo, bool) {
	dev := detection.DeviceInfo{
		Transport:  "uart",
		Path:       p.Path,
		Name:       p.Path,
		Metadata:   map[string]string{},
		Confidence: detection.Low,
	}
	if p.VIDPID != "" {
		dev.Metadata["vidpid"] = p.VIDPID
	}
	if p.SerialNumber != "" {
		dev.Metadata["serial_number"] = p.SerialNumber
	}
	if p.Product != "" {
		dev.Name = p.Product
	}
	if bridge, ok := detection.KnownBridge(p.VIDPID); ok {
		dev.Confidence = detection.Medium
		dev.Metadata["bridge"] = bridge
	}

	switch mode {
	case detection.Passive:
		// plain serial ports without a USB id are rarely a reader
		if !p.IsUSB {
			return detection.DeviceInfo{}, false
		}
		return dev, true
	case detection.Safe:
		if err := d.open(p.Path); err != nil {
			return detection.DeviceInfo{}, false
		}
		return dev, true
	default:
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		meta, err := d.probe(probeCtx, p.Path)
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
}

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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ex10/detection"
	"github.com/ZaparooProject/go-ex10/registers"
)

// LinkFactory opens a link from a device path.
type LinkFactory func(path string) (Link, error)

// LinkFromDeviceFactory opens a link for a detected device.
type LinkFromDeviceFactory func(device detection.DeviceInfo) (Link, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	linkFactory       LinkFactory
	linkDeviceFactory LinkFromDeviceFactory
	deviceOptions     []Option
	timeout           time.Duration
	autoDetect        bool
	resetFirst        bool
}

// WithAutoDetection uses the first detected reader instead of a path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithConnectTimeout bounds the whole connect sequence
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		c.timeout = timeout
		return nil
	}
}

// WithLinkFactory sets how a path is opened
func WithLinkFactory(factory LinkFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.linkFactory = factory
		return nil
	}
}

// WithLinkFromDeviceFactory sets how a detected device is opened
func WithLinkFromDeviceFactory(factory LinkFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.linkDeviceFactory = factory
		return nil
	}
}

// WithResetOnConnect resets the device into its application before use.
func WithResetOnConnect() ConnectOption {
	return func(c *connectConfig) error {
		c.resetFirst = true
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{timeout: 30 * time.Second}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}
	return config, nil
}

// ConnectDevice opens a link from a path or auto-detection, builds the
// Device and, when the application is running, initializes interrupts.
//
// Example usage:
//
//	dev, err := ex10.ConnectDevice("/dev/spidev0.0", ex10.WithLinkFactory(spi.Open))
//
//	dev, err := ex10.ConnectDevice("", ex10.WithAutoDetection(),
//		ex10.WithLinkFromDeviceFactory(openDetected))
func ConnectDevice(path string, opts ...ConnectOption) (*Device, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, err
	}

	link, err := createLink(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	dev, err := setupDevice(link, config)
	if err != nil {
		_ = link.Close()
		return nil, err
	}
	return dev, nil
}

func createLink(path string, config *connectConfig) (Link, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedLink(config.linkDeviceFactory)
	}
	if config.linkFactory == nil {
		return nil, errors.New("link factory not provided")
	}
	link, err := config.linkFactory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return link, nil
}

func createAutoDetectedLink(factory LinkFromDeviceFactory) (Link, error) {
	if factory == nil {
		return nil, errors.New("link device factory not provided")
	}
	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	devices, err := detection.DetectAll(&opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}
	return factory(devices[0])
}

func setupDevice(link Link, config *connectConfig) (*Device, error) {
	dev, err := New(link, config.deviceOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	ctx := context.Background()
	if config.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.timeout)
		defer cancel()
	}

	var loc registers.RunningLocation
	if config.resetFirst {
		loc, err = dev.Reset(ctx, registers.Application)
	} else {
		loc, err = dev.RunningLocation(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reach device: %w", err)
	}
	if loc == registers.Application {
		if err := dev.InitInterrupts(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize interrupts: %w", err)
		}
	}
	return dev, nil
}

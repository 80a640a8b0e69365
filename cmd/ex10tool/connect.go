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
	"fmt"
	"log/slog"
	"strings"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/detection"
	// Import detectors to register them
	_ "github.com/ZaparooProject/go-ex10/detection/spi"
	_ "github.com/ZaparooProject/go-ex10/detection/uart"
	"github.com/ZaparooProject/go-ex10/internal/config"
	"github.com/ZaparooProject/go-ex10/transport/spi"
	"github.com/ZaparooProject/go-ex10/transport/uart"
)

// linkKind guesses the link from a device path.
func linkKind(path string) string {
	if strings.Contains(strings.ToLower(path), "spi") {
		return config.LinkSPI
	}
	return config.LinkUART
}

// openLink opens path using the link settings in cfg.
func openLink(cfg *config.Config, path string, logger *slog.Logger) (ex10.Link, error) {
	kind := cfg.Link.Kind
	if path != "" && path != cfg.Link.Port {
		kind = linkKind(path)
	}
	switch kind {
	case config.LinkSPI:
		sc := cfg.SPI(logger)
		sc.Port = path
		link, err := spi.Open(sc)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI link: %w", err)
		}
		return link, nil
	case config.LinkUART:
		uc := cfg.UART(logger)
		uc.Port = path
		link, err := uart.Open(uc)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART link: %w", err)
		}
		return link, nil
	default:
		return nil, fmt.Errorf("unsupported link type: %s", kind)
	}
}

// loadConfig reads the -config file, or the defaults for the -device path.
func loadConfig(opts *options) (*config.Config, error) {
	if opts.configPath != "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	cfg := &config.Config{}
	if opts.devicePath != "" {
		cfg.Link.Kind = linkKind(opts.devicePath)
		cfg.Link.Port = opts.devicePath
	}
	config.Normalize(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func connect(opts *options, logger *slog.Logger, bootloader bool) (*ex10.Device, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	path := opts.devicePath
	if path == "" {
		path = cfg.Link.Port
	}

	connectOpts := []ex10.ConnectOption{
		ex10.WithDeviceOptions(cfg.DeviceOptions(logger)...),
		ex10.WithConnectTimeout(opts.timeout),
	}
	if !bootloader {
		connectOpts = append(connectOpts, ex10.WithResetOnConnect())
	}
	if path == "" {
		connectOpts = append(connectOpts,
			ex10.WithAutoDetection(),
			ex10.WithLinkFromDeviceFactory(func(d detection.DeviceInfo) (ex10.Link, error) {
				_, _ = fmt.Printf("Detected %s reader at %s\n", d.Transport, d.Path)
				c := *cfg
				c.Link.Kind = d.Transport
				c.Link.Port = d.Path
				config.Normalize(&c)
				return openLink(&c, d.Path, logger)
			}))
		_, _ = fmt.Println("Auto-detecting Ex10 readers...")
	} else {
		connectOpts = append(connectOpts, ex10.WithLinkFactory(func(p string) (ex10.Link, error) {
			return openLink(cfg, p, logger)
		}))
		_, _ = fmt.Printf("Opening device: %s\n", path)
	}

	dev, err := ex10.ConnectDevice(path, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ex10: %w", err)
	}
	return dev, nil
}

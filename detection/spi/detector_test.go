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

package spi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-ex10/detection"
)

func fakeNodes(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o600))
	}
	return filepath.Join(dir, "spidev*")
}

func testDetector(pattern string) *detector {
	return &detector{
		pattern: pattern,
		access:  func(string) error { return nil },
		check: func(string) (map[string]string, error) {
			return map[string]string{"mode": "0x1"}, nil
		},
		probe: func(context.Context, string) (map[string]string, error) {
			return map[string]string{"location": "Application"}, nil
		},
	}
}

func TestBusInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		bus  int
		cs   int
		ok   bool
	}{
		{path: "/dev/spidev0.0", bus: 0, cs: 0, ok: true},
		{path: "/dev/spidev1.2", bus: 1, cs: 2, ok: true},
		{path: "/dev/spidev", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			bus, cs, ok := busInfo(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.bus, bus)
			assert.Equal(t, tt.cs, cs)
		})
	}
}

func TestScanPassive(t *testing.T) {
	t.Parallel()
	d := testDetector(fakeNodes(t, "spidev0.0", "spidev0.1"))
	opts := detection.DefaultOptions()

	found, err := d.scan(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, detection.Medium, found[0].Confidence)
	assert.Equal(t, detection.Low, found[1].Confidence)
	assert.Equal(t, "spi", found[0].Transport)
	assert.Equal(t, "0", found[1].Metadata["bus"])
	assert.Equal(t, "1", found[1].Metadata["cs"])
	assert.NotContains(t, found[0].Metadata, "mode")
}

func TestScanSafeAddsMetadata(t *testing.T) {
	t.Parallel()
	d := testDetector(fakeNodes(t, "spidev0.0"))
	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	found, err := d.scan(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "0x1", found[0].Metadata["mode"])
	assert.Equal(t, detection.Medium, found[0].Confidence)
}

func TestScanFullProbe(t *testing.T) {
	t.Parallel()
	pattern := fakeNodes(t, "spidev0.0", "spidev0.1")

	d := testDetector(pattern)
	opts := detection.DefaultOptions()
	opts.Mode = detection.Full
	found, err := d.scan(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, detection.High, found[0].Confidence)
	assert.Equal(t, "Application", found[0].Metadata["location"])

	d.probe = func(context.Context, string) (map[string]string, error) {
		return nil, errors.New("no echo")
	}
	found, err = d.scan(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, found, 1, "an unanswered probe drops low confidence buses")
	assert.Equal(t, detection.Medium, found[0].Confidence)
}

func TestScanSkips(t *testing.T) {
	t.Parallel()
	pattern := fakeNodes(t, "spidev0.0", "spidev0.1", "spidevx")
	dir := filepath.Dir(pattern)

	d := testDetector(pattern)
	d.access = func(path string) error {
		if filepath.Base(path) == "spidev0.1" {
			return os.ErrPermission
		}
		return nil
	}
	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{filepath.Join(dir, "spidev0.0")}

	_, err := d.scan(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestScanSafeDropsNonSpidev(t *testing.T) {
	t.Parallel()
	d := testDetector(fakeNodes(t, "spidev0.0"))
	d.check = func(string) (map[string]string, error) {
		return nil, errors.New("inappropriate ioctl")
	}
	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	_, err := d.scan(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestScanCancelled(t *testing.T) {
	t.Parallel()
	d := testDetector(fakeNodes(t, "spidev0.0"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := detection.DefaultOptions()

	_, err := d.scan(ctx, &opts)
	require.ErrorIs(t, err, detection.ErrDetectionTimeout)
}

func TestTransport(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "spi", New().Transport())
}

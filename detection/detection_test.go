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

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	delay     time.Duration
}

func (f *fakeDetector) Transport() string { return f.transport }

func (f *fakeDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}
	return f.devices, f.err
}

// withRegistry swaps the detector registry for the duration of a test.
func withRegistry(t *testing.T, detectors ...Detector) {
	t.Helper()
	registryMu.Lock()
	saved := registry
	registry = map[string]Detector{}
	registryMu.Unlock()
	for _, d := range detectors {
		RegisterDetector(d)
	}
	t.Cleanup(func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	})
}

func TestDetectAllNoDetectors(t *testing.T) {
	withRegistry(t)
	_, err := DetectAll(nil)
	require.ErrorIs(t, err, ErrNoDetectors)
}

func TestDetectAllMergesAndSorts(t *testing.T) {
	withRegistry(t,
		&fakeDetector{transport: "uart", devices: []DeviceInfo{
			{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: Low},
			{Transport: "uart", Path: "/dev/ttyACM0", Confidence: Medium},
		}},
		&fakeDetector{transport: "spi", devices: []DeviceInfo{
			{Transport: "spi", Path: "/dev/spidev0.0", Confidence: High},
		}},
	)

	found, err := DetectAll(nil)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "/dev/spidev0.0", found[0].Path)
	assert.Equal(t, "/dev/ttyACM0", found[1].Path)
	assert.Equal(t, "/dev/ttyUSB0", found[2].Path)
}

func TestDetectAllFilters(t *testing.T) {
	withRegistry(t, &fakeDetector{transport: "uart", devices: []DeviceInfo{
		{Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "1A86:7523"}},
		{Path: "/dev/ttyUSB1"},
		{Path: "/dev/ttyUSB2"},
	}})

	opts := DefaultOptions()
	opts.Blocklist = []string{"1a86:7523"}
	opts.IgnorePaths = []string{"/dev/ttyUSB2"}

	found, err := DetectAll(&opts)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "/dev/ttyUSB1", found[0].Path)
}

func TestDetectAllSkipsUnsupported(t *testing.T) {
	withRegistry(t,
		&fakeDetector{transport: "spi", err: ErrUnsupportedPlatform},
		&fakeDetector{transport: "uart", err: ErrNoDevicesFound},
	)
	_, err := DetectAll(nil)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDetectAllReportsDetectorErrors(t *testing.T) {
	sentinel := errors.New("permission denied")
	withRegistry(t,
		&fakeDetector{transport: "spi", err: sentinel},
		&fakeDetector{transport: "uart", devices: []DeviceInfo{{Path: "/dev/ttyUSB0"}}},
	)

	found, err := DetectAll(nil)
	require.NoError(t, err, "one working detector is enough")
	assert.Len(t, found, 1)

	withRegistry(t, &fakeDetector{transport: "spi", err: sentinel})
	_, err = DetectAll(nil)
	require.ErrorIs(t, err, sentinel)
}

func TestDetectAllTimeout(t *testing.T) {
	withRegistry(t, &fakeDetector{transport: "slow", delay: time.Second})

	opts := DefaultOptions()
	opts.Timeout = 10 * time.Millisecond
	start := time.Now()
	_, err := DetectAll(&opts)
	require.ErrorIs(t, err, ErrDetectionTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRegisterDetectorReplaces(t *testing.T) {
	first := &fakeDetector{transport: "spi"}
	second := &fakeDetector{transport: "spi"}
	withRegistry(t, first, second, &fakeDetector{transport: "a"})

	ds := Detectors()
	require.Len(t, ds, 2)
	assert.Equal(t, "a", ds[0].Transport())
	assert.Same(t, second, ds[1])
}

func TestModeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "passive", Passive.String())
	assert.Equal(t, "safe", Safe.String())
	assert.Equal(t, "full", Full.String())
	assert.Equal(t, "Mode(9)", Mode(9).String())
}

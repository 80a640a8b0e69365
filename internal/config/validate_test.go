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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ex10 "github.com/ZaparooProject/go-ex10"
	testutil "github.com/ZaparooProject/go-ex10/internal/testing"
)

// valid returns a normalized SPI config.
func valid() *Config {
	cfg := &Config{}
	Normalize(cfg)
	return cfg
}

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()
	cfg := valid()

	assert.Equal(t, LinkSPI, cfg.Link.Kind)
	assert.Equal(t, ex10.ApplicationClockHz, cfg.Link.SpeedHz)
	assert.Equal(t, ex10.BootloaderClockHz, cfg.Link.BootloaderSpeedHz)
	assert.Equal(t, "GPIO16", cfg.Pins.ReadyN)
	assert.Equal(t, ex10.DefaultBurstSize, cfg.Protocol.BurstSize)
	assert.Equal(t, 2500, cfg.Protocol.ReadyTimeoutMs)
	assert.Equal(t, 10000, cfg.Protocol.OpTimeoutMs)
	assert.Equal(t, uint16(cfg.Fifo.BufferSize/2), cfg.Fifo.Threshold)
	require.NoError(t, Validate(cfg))
}

func TestNormalizeUARTSkipsPins(t *testing.T) {
	t.Parallel()
	cfg := &Config{Link: LinkConfig{Kind: LinkUART, Port: "/dev/ttyUSB0"}}
	Normalize(cfg)

	assert.Empty(t, cfg.Pins.ReadyN)
	assert.Equal(t, 921600, cfg.Link.BaudRate)
	require.NoError(t, Validate(cfg))
}

func TestNormalizeNil(t *testing.T) {
	t.Parallel()
	Normalize(nil)
	require.Error(t, Validate(nil))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mutate func(*Config)
		name   string
		want   string
	}{
		{name: "unknown link", mutate: func(c *Config) { c.Link.Kind = "i2c" }, want: "link.kind"},
		{name: "uart without port", mutate: func(c *Config) {
			c.Link.Kind = LinkUART
			c.Link.BaudRate = 115200
		}, want: "port is required"},
		{name: "uart without baud", mutate: func(c *Config) {
			c.Link.Kind = LinkUART
			c.Link.Port = "/dev/ttyUSB0"
		}, want: "baud_rate"},
		{name: "spi without ready pin", mutate: func(c *Config) { c.Pins.ReadyN = "" }, want: "pins.ready_n"},
		{name: "bootloader faster", mutate: func(c *Config) { c.Link.BootloaderSpeedHz = 8_000_000 }, want: "must not exceed"},
		{name: "negative speed", mutate: func(c *Config) { c.Link.SpeedHz = -1 }, want: "speeds must be positive"},
		{name: "burst too small", mutate: func(c *Config) { c.Protocol.BurstSize = 4 }, want: "burst_size"},
		{name: "burst too large", mutate: func(c *Config) { c.Protocol.BurstSize = 4096 }, want: "burst_size"},
		{name: "ready timeout", mutate: func(c *Config) { c.Protocol.ReadyTimeoutMs = -5 }, want: "ready_timeout_ms"},
		{name: "op timeout", mutate: func(c *Config) { c.Protocol.OpTimeoutMs = -1 }, want: "op_timeout_ms"},
		{name: "no buffers", mutate: func(c *Config) { c.Fifo.Buffers = -1 }, want: "fifo.buffers"},
		{name: "odd buffer", mutate: func(c *Config) { c.Fifo.BufferSize = 1022 }, want: "multiple of 4"},
		{name: "threshold past fifo", mutate: func(c *Config) { c.Fifo.Threshold = 0x2000 }, want: "fifo.threshold"},
		{name: "threshold past buffer", mutate: func(c *Config) {
			c.Fifo.BufferSize = 256
			c.Fifo.Threshold = 512
		}, want: "exceeds fifo.buffer_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	t.Parallel()
	cfg := valid()
	before := *cfg
	require.NoError(t, Validate(cfg))
	assert.Equal(t, before, *cfg)
}

const sampleYAML = `
link:
  kind: uart
  port: /dev/ttyACM0
  baud_rate: 460800
protocol:
  burst_size: 512
  ready_timeout_ms: 100
fifo:
  buffers: 8
  buffer_size: 1024
  threshold: 256
`

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, LinkUART, cfg.Link.Kind)
	assert.Equal(t, 460800, cfg.Link.BaudRate)
	assert.Equal(t, 512, cfg.Protocol.BurstSize)
	assert.Equal(t, 100*time.Millisecond, cfg.ReadyTimeout())
	assert.Equal(t, 10000, cfg.Protocol.OpTimeoutMs)
	assert.Equal(t, uint16(256), cfg.Fifo.Threshold)
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("link:\n  knd: spi\n"))
	require.ErrorContains(t, err, "parse config")

	_, err = Parse([]byte("protocol:\n  burst_size: 3\n"))
	require.ErrorContains(t, err, "burst_size")
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ex10.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Link.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()
	cfg := valid()
	out, err := Marshal(cfg)
	require.NoError(t, err)

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestDeviceOptions(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	dev, err := ex10.New(testutil.NewVirtualEx10(), cfg.DeviceOptions(nil)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	dc := dev.Config()
	assert.Equal(t, 512, dc.BurstSize)
	assert.Equal(t, 100*time.Millisecond, dc.Timeout)
	assert.Equal(t, 8, dc.FifoBuffers)
	assert.Equal(t, 1024, dc.FifoBufferSize)
	assert.Equal(t, uint16(256), dc.FifoThreshold)
	assert.Equal(t, 8, dev.FifoPool().Len())
}

func TestLinkConfigs(t *testing.T) {
	t.Parallel()
	cfg := valid()
	cfg.Link.Port = "/dev/spidev0.0"

	s := cfg.SPI(nil)
	assert.Equal(t, "/dev/spidev0.0", s.Port)
	assert.Equal(t, "GPIO20", s.IrqPin)
	assert.Equal(t, ex10.BootloaderClockHz, s.SpeedHz)

	u := cfg.UART(nil)
	assert.Equal(t, "/dev/spidev0.0", u.Port)
}

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
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// USB serial bridges that carry Ex10 reader boards, keyed by VID:PID.
var knownBridges = map[string]string{
	"0403:6001": "FTDI FT232R",
	"0403:6014": "FTDI FT232H",
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "WCH CH340",
	"1A86:55DB": "WCH CH347",
	"04D8:00DD": "Microchip MCP2221A",
}

// KnownBridge names the bridge behind vidpid, if it is one Ex10 boards use.
func KnownBridge(vidpid string) (string, bool) {
	name, ok := knownBridges[NormalizeVIDPID(vidpid)]
	return name, ok
}

// DefaultBlocklist returns USB serial devices that must not be opened while
// looking for readers. Opening their ports resets or disturbs the attached
// board.
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno R3, DTR resets the sketch
		"0483:374B", // ST-LINK/V2-1 virtual COM port
		"1366:0105", // SEGGER J-Link CDC
	}
}

// NormalizeVIDPID renders a "vid:pid" pair as upper case, zero padded
// "VVVV:PPPP". It returns "" when s is not a pair of 16-bit hex numbers.
func NormalizeVIDPID(s string) string {
	vid, pid, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ""
	}
	v, err := strconv.ParseUint(vid, 16, 16)
	if err != nil {
		return ""
	}
	p, err := strconv.ParseUint(pid, 16, 16)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%04X:%04X", v, p)
}

// IsBlocked reports whether vidpid is on the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	id := NormalizeVIDPID(vidpid)
	if id == "" {
		return false
	}
	for _, blocked := range blocklist {
		if NormalizeVIDPID(blocked) == id {
			return true
		}
	}
	return false
}

// IsPathIgnored reports whether devicePath matches an ignore entry. An entry
// is a device path ("/dev/spidev0.1"), a bare node name matched against the
// path's base ("spidev0.1", "ttyUSB0", "COM3") or a glob of either form
// ("/dev/spidev1.*", "ttyACM*"). Windows COM names match case-insensitively.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := filepath.Clean(devicePath)
	base := filepath.Base(device)
	for _, entry := range ignorePaths {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		target := device
		if !strings.ContainsAny(entry, `/\`) {
			target = base
		} else {
			entry = filepath.Clean(entry)
		}
		if isCOMName(entry) && strings.EqualFold(entry, target) {
			return true
		}
		if ok, err := filepath.Match(entry, target); err == nil && ok {
			return true
		}
	}
	return false
}

func isCOMName(s string) bool {
	return len(s) > 3 && strings.EqualFold(s[:3], "COM")
}

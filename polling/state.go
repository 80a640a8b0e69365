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

package polling

import "errors"

// State is where a Monitor's loop currently is.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateServicing
	StateRequest
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateWaiting:
		return "Waiting"
	case StateServicing:
		return "Servicing"
	case StateRequest:
		return "Request"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Monitor errors
var (
	ErrMonitorRunning    = errors.New("monitor is already running")
	ErrMonitorNotRunning = errors.New("monitor is not running")
	ErrRequestPending    = errors.New("request already pending")
	ErrTooManyErrors     = errors.New("too many consecutive errors")
)

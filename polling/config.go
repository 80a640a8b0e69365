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

import (
	"time"

	"github.com/ZaparooProject/go-ex10/registers"
)

// Config controls how a Monitor waits for and services interrupts.
type Config struct {
	// Enable is the interrupt mask written when the monitor starts
	Enable registers.InterruptStatusFields
	// EdgeTimeout bounds each IRQ_N wait. Queued requests run between waits.
	EdgeTimeout time.Duration
	// ErrorBackoff is the pause after a failed wait or service
	ErrorBackoff time.Duration
	// MaxConsecutiveErrors stops the monitor; zero never stops
	MaxConsecutiveErrors int
}

// DefaultConfig services fifo and op completion interrupts.
func DefaultConfig() *Config {
	return &Config{
		Enable: registers.InterruptStatusFields{
			OpDone:               true,
			EventFifoAboveThresh: true,
			EventFifoFull:        true,
			AggregateOpDone:      true,
		},
		EdgeTimeout:          100 * time.Millisecond,
		ErrorBackoff:         50 * time.Millisecond,
		MaxConsecutiveErrors: 10,
	}
}

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

// Package transport holds the polling helpers shared by the link backends.
package transport

import (
	"context"
	"time"

	ex10 "github.com/ZaparooProject/go-ex10"
)

// Attempt is one try of a retried operation. It returns the result, whether
// to try again, and an error that stops retrying at once.
type Attempt[T any] func() (T, bool, error)

// RetryConfig bounds WithRetry.
type RetryConfig struct {
	// OnRetry runs before each new attempt; an error from it is returned.
	OnRetry     func() error
	Description string
	Port        string
	MaxRetries  int
	RetryDelay  time.Duration
}

// WithRetry runs op until it stops asking for another try or MaxRetries
// extra attempts have been made.
func WithRetry[T any](ctx context.Context, config RetryConfig, op Attempt[T]) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, again, err := op()
		if err != nil {
			return zero, err
		}
		if !again {
			return result, nil
		}
		if attempt >= config.MaxRetries {
			break
		}
		if config.OnRetry != nil {
			if err := config.OnRetry(); err != nil {
				return zero, err
			}
		}
		if err := sleep(ctx, config.RetryDelay); err != nil {
			return zero, err
		}
	}
	return zero, ex10.NewTransportError(config.Description, config.Port,
		ex10.ErrCommunicationFailed, ex10.ErrorTypeTransient)
}

// PollUntil runs op every interval until it reports done or timeout passes.
// Running out of time is a timeout TransportError.
func PollUntil[T any](ctx context.Context, timeout, interval time.Duration, op, port string,
	poll Attempt[T],
) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)
	for {
		result, again, err := poll()
		if err != nil {
			return zero, err
		}
		if !again {
			return result, nil
		}
		if !time.Now().Before(deadline) {
			return zero, ex10.NewTimeoutError(op, port)
		}
		if err := sleep(ctx, min(interval, time.Until(deadline))); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

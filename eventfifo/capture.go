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

package eventfifo

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is one captured packet.
type Record struct {
	_ struct{} `cbor:",toarray"`
	// Seq counts records from zero within a capture.
	Seq uint32
	// HostTime is when the host drained the packet, in Unix nanoseconds.
	HostTime int64
	Raw      []byte
}

// Packet re-decodes the captured bytes.
func (r Record) Packet() Packet {
	d := NewDecoder(r.Raw)
	p, _ := d.Next()
	return p
}

// Recorder appends packets to a CBOR sequence stream.
type Recorder struct {
	enc *cbor.Encoder
	now func() time.Time
	mu  sync.Mutex
	seq uint32
}

// NewRecorder writes a capture to w.
func NewRecorder(w io.Writer) (*Recorder, error) {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("eventfifo: failed to initialize encoder: %w", err)
	}
	return &Recorder{enc: mode.NewEncoder(w), now: time.Now}, nil
}

// Record appends p to the capture.
func (r *Recorder) Record(p Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := Record{Seq: r.seq, HostTime: r.now().UnixNano(), Raw: p.Raw}
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("eventfifo: record packet %d: %w", r.seq, err)
	}
	r.seq++
	return nil
}

// RecordBuffer decodes buf and records every packet in it.
func (r *Recorder) RecordBuffer(buf []byte) (int, error) {
	n := 0
	for _, p := range Decode(buf) {
		if err := r.Record(p); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Count returns how many packets have been recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.seq)
}

// ReadCapture reads every record from a capture stream.
func ReadCapture(rd io.Reader) ([]Record, error) {
	mode, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("eventfifo: failed to initialize decoder: %w", err)
	}
	dec := mode.NewDecoder(rd)
	var out []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("eventfifo: read record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}

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

package gen2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ZaparooProject/go-ex10/registers"
)

// Command manager errors
var (
	ErrBufferLength          = errors.New("gen2: commands exceed transmit buffer")
	ErrNumCommands           = errors.New("gen2: too many commands")
	ErrCommandEncode         = errors.New("gen2: command encode failed")
	ErrCommandDecode         = errors.New("gen2: command decode failed")
	ErrTxnControls           = errors.New("gen2: no transaction controls for command")
	ErrCommandEnableMismatch = errors.New("gen2: enable does not match command kind")
	ErrEnabledEmptyCommand   = errors.New("gen2: enable set for empty slot")
)

// MaxCommands is the number of transmit slots.
const MaxCommands = registers.Gen2SlotCount

// RegisterWriter writes Ex10 registers.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, r registers.Info, data []byte) error
	WriteMultiple(ctx context.Context, regs []registers.Info, data [][]byte) error
}

// RegisterReader reads Ex10 registers.
type RegisterReader interface {
	ReadRegister(ctx context.Context, r registers.Info) ([]byte, error)
}

// TxCommand is one transmit slot.
type TxCommand struct {
	Decoded       Command
	Encoded       BitSpan
	TransactionID uint8
	Valid         bool
}

// TxCommandManager stages up to MaxCommands encoded commands and writes
// them to the Gen2 transmit registers.
type TxCommandManager struct {
	logger *slog.Logger
	slots  [MaxCommands]TxCommand
}

// NewTxCommandManager returns an empty manager. A nil logger discards.
func NewTxCommandManager(logger *slog.Logger) *TxCommandManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &TxCommandManager{logger: logger}
}

func (m *TxCommandManager) free() (int, error) {
	for i := range m.slots {
		if !m.slots[i].Valid {
			return i, nil
		}
	}
	return 0, ErrNumCommands
}

// Append encodes cmd into the first free slot and returns its index.
func (m *TxCommandManager) Append(cmd Command, txnID uint8) (int, error) {
	idx, err := m.free()
	if err != nil {
		return 0, err
	}
	span, err := Encode(cmd)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCommandEncode, err)
	}
	if span.Len == 0 {
		return 0, fmt.Errorf("%w: %s", ErrCommandEncode, cmd.Kind())
	}
	m.slots[idx] = TxCommand{Decoded: cmd, Encoded: span, TransactionID: txnID, Valid: true}
	return idx, nil
}

// AppendEncoded stores an already encoded command. The stream is decoded
// so transaction controls can be derived for it.
func (m *TxCommandManager) AppendEncoded(span BitSpan, txnID uint8) (int, error) {
	idx, err := m.free()
	if err != nil {
		return 0, err
	}
	cmd, err := Decode(span)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCommandDecode, err)
	}
	enc := BitSpan{Data: span.Bytes(), Len: span.Len}
	m.slots[idx] = TxCommand{Decoded: cmd, Encoded: enc, TransactionID: txnID, Valid: true}
	return idx, nil
}

// Clear empties every slot.
func (m *TxCommandManager) Clear() {
	m.slots = [MaxCommands]TxCommand{}
}

// ClearIndex empties one slot.
func (m *TxCommandManager) ClearIndex(idx int) error {
	if idx < 0 || idx >= MaxCommands {
		return fmt.Errorf("%w: index %d", ErrNumCommands, idx)
	}
	m.slots[idx] = TxCommand{}
	return nil
}

// Commands returns a copy of the slots.
func (m *TxCommandManager) Commands() []TxCommand {
	out := make([]TxCommand, MaxCommands)
	copy(out, m.slots[:])
	return out
}

// Write lays out the valid commands back to back in the transmit buffer
// and writes the offset, length, transaction ID and control registers
// followed by the buffer itself. Empty slots get zero length.
func (m *TxCommandManager) Write(ctx context.Context, w RegisterWriter) error {
	var (
		buf      = make([]byte, registers.Gen2TxBuffer.Length)
		offsets  = make([]byte, MaxCommands)
		lengths  = make([]byte, 2*MaxCommands)
		ids      = make([]byte, MaxCommands)
		controls = make([]byte, 0, int(registers.Gen2TxnControls.Length)*MaxCommands)
		pos      int
	)
	for i, s := range m.slots {
		if !s.Valid {
			controls = append(controls, make([]byte, registers.Gen2TxnControls.Length)...)
			continue
		}
		n := s.Encoded.ByteLen()
		if pos+n > len(buf) {
			return fmt.Errorf("%w: slot %d needs %d bytes at offset %d", ErrBufferLength, i, n, pos)
		}
		cfg, err := TxControlConfig(s.Decoded)
		if err != nil {
			return fmt.Errorf("%w: slot %d: %w", ErrTxnControls, i, err)
		}
		offsets[i] = byte(pos)
		registers.PutLE(lengths[2*i:], uint16(s.Encoded.Len))
		ids[i] = s.TransactionID
		copy(buf[pos:], s.Encoded.Bytes())
		pos += n
		controls = append(controls, cfg.Bytes()...)
	}

	err := w.WriteMultiple(ctx,
		[]registers.Info{
			registers.Gen2Offsets, registers.Gen2Lengths,
			registers.Gen2TransactionIds, registers.Gen2TxnControls,
		},
		[][]byte{offsets, lengths, ids, controls},
	)
	if err != nil {
		return fmt.Errorf("write gen2 control registers: %w", err)
	}
	if err := w.WriteRegister(ctx, registers.Gen2TxBuffer, buf); err != nil {
		return fmt.Errorf("write gen2 tx buffer: %w", err)
	}
	return nil
}

// enableMask checks enables against the slots. A kind mismatch is
// reported but the mask is still returned for writing; enabling an empty
// slot aborts.
func (m *TxCommandManager) enableMask(enables []bool, wantSelect bool) (uint16, error) {
	if len(enables) > MaxCommands {
		return 0, fmt.Errorf("%w: %d enables", ErrNumCommands, len(enables))
	}
	var (
		mask     uint16
		mismatch error
	)
	for i, on := range enables {
		if !on {
			continue
		}
		s := m.slots[i]
		if !s.Valid {
			return 0, fmt.Errorf("%w: slot %d", ErrEnabledEmptyCommand, i)
		}
		if (s.Decoded.Kind() == KindSelect) != wantSelect && mismatch == nil {
			mismatch = fmt.Errorf("%w: slot %d holds %s", ErrCommandEnableMismatch, i, s.Decoded.Kind())
			m.logger.Warn("gen2 enable kind mismatch", "slot", i, "kind", s.Decoded.Kind())
		}
		mask |= 1 << i
	}
	return mask, mismatch
}

func (m *TxCommandManager) writeEnables(
	ctx context.Context, w RegisterWriter, r registers.Info, enables []bool, wantSelect bool,
) error {
	mask, err := m.enableMask(enables, wantSelect)
	if err != nil && !errors.Is(err, ErrCommandEnableMismatch) {
		return err
	}
	if werr := w.WriteRegister(ctx, r, registers.Value(r, mask)); werr != nil {
		return fmt.Errorf("write %s: %w", r.Name, werr)
	}
	return err
}

// WriteSelectEnables enables the Select commands run before each
// inventory round.
func (m *TxCommandManager) WriteSelectEnables(ctx context.Context, w RegisterWriter, enables []bool) error {
	return m.writeEnables(ctx, w, registers.Gen2SelectEnable, enables, true)
}

// WriteAccessEnables enables the access commands run when a tag is halted.
func (m *TxCommandManager) WriteAccessEnables(ctx context.Context, w RegisterWriter, enables []bool) error {
	return m.writeEnables(ctx, w, registers.Gen2AccessEnable, enables, false)
}

// WriteAutoAccessEnables enables the access commands run automatically on
// every singulated tag.
func (m *TxCommandManager) WriteAutoAccessEnables(ctx context.Context, w RegisterWriter, enables []bool) error {
	return m.writeEnables(ctx, w, registers.Gen2AutoAccessEnable, enables, false)
}

// ClearDevice zeroes the length and enable registers so no staged command
// runs. Local slots are untouched.
func (m *TxCommandManager) ClearDevice(ctx context.Context, w RegisterWriter) error {
	zero := func(r registers.Info) []byte { return make([]byte, r.Size()) }
	err := w.WriteMultiple(ctx,
		[]registers.Info{
			registers.Gen2Lengths, registers.Gen2SelectEnable,
			registers.Gen2AccessEnable, registers.Gen2AutoAccessEnable,
		},
		[][]byte{
			zero(registers.Gen2Lengths), zero(registers.Gen2SelectEnable),
			zero(registers.Gen2AccessEnable), zero(registers.Gen2AutoAccessEnable),
		},
	)
	if err != nil {
		return fmt.Errorf("clear gen2 registers: %w", err)
	}
	return nil
}

// ReadDevice replaces the local slots with the sequence currently in the
// device registers. Slots whose stream cannot be decoded stay invalid and
// are logged.
func (m *TxCommandManager) ReadDevice(ctx context.Context, r RegisterReader) error {
	offsets, err := r.ReadRegister(ctx, registers.Gen2Offsets)
	if err != nil {
		return err
	}
	lengths, err := r.ReadRegister(ctx, registers.Gen2Lengths)
	if err != nil {
		return err
	}
	ids, err := r.ReadRegister(ctx, registers.Gen2TransactionIds)
	if err != nil {
		return err
	}
	buf, err := r.ReadRegister(ctx, registers.Gen2TxBuffer)
	if err != nil {
		return err
	}

	m.Clear()
	for i := 0; i < MaxCommands && 2*i+1 < len(lengths) && i < len(offsets); i++ {
		bits := registers.LE[uint16](lengths[2*i:])
		if bits == 0 {
			continue
		}
		start := int(offsets[i])
		end := start + (int(bits)+7)/8
		if end > len(buf) {
			m.logger.Warn("gen2 slot overruns tx buffer", "slot", i, "offset", start, "bits", bits)
			continue
		}
		span := BitSpan{Data: append([]byte(nil), buf[start:end]...), Len: int(bits)}
		cmd, err := Decode(span)
		if err != nil {
			m.logger.Warn("gen2 slot not decodable", "slot", i, "offset", start, "bits", bits, "error", err)
			continue
		}
		var id uint8
		if i < len(ids) {
			id = ids[i]
		}
		m.slots[i] = TxCommand{Decoded: cmd, Encoded: span, TransactionID: id, Valid: true}
	}
	return nil
}

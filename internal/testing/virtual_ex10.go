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

// Package testing provides a virtual Ex10 for exercising the host protocol
// without hardware.
package testing

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/ZaparooProject/go-ex10/aggregate"
	"github.com/ZaparooProject/go-ex10/eventfifo"
	"github.com/ZaparooProject/go-ex10/internal/frame"
	"github.com/ZaparooProject/go-ex10/registers"
)

// Response codes the virtual device answers with.
const (
	StatusSuccess            = 0xA5
	StatusCommandInvalid     = 0x01
	StatusArgumentInvalid    = 0x02
	StatusCommandMalformed   = 0x07
	StatusLengthInvalid      = 0x0A
	StatusUploadStateInvalid = 0x0B
	StatusBadCrc             = 0x0E
	StatusFlashInvalidPage   = 0x0F
)

// ErrClosed is returned by every link method after Close.
var ErrClosed = errors.New("virtual ex10: closed")

// ErrReadyTimeout is returned by WaitReady while the device is held busy.
var ErrReadyTimeout = errors.New("virtual ex10: READY_N timeout")

// Transaction is one physical write and the response it produced.
type Transaction struct {
	Cmd  []byte
	Resp []byte
}

// VirtualEx10 answers the Ex10 wire protocol from an in-memory register
// image. It implements the link interface expected by the driver along
// with WaitForInterrupt and SetClock.
type VirtualEx10 struct {
	opResults    map[registers.OpID]registers.OpError
	infoPages    map[byte][]byte
	irq          chan struct{}
	mem          []byte
	fifo         []byte
	pending      []byte
	upload       []byte
	image        []byte
	transactions []Transaction
	violations   []Transaction
	ops          []registers.OpID
	failNext     []byte
	clocks       []int64
	burst        int
	mu           sync.Mutex
	location     registers.RunningLocation
	resetDest    registers.RunningLocation
	opsStatus    registers.OpsStatusFields
	irqStatus    byte
	irqMask      byte
	uploadDest   byte
	uploading    bool
	holdOps      bool
	inReset      bool
	notReady     bool
	closed       bool
	imageValid   bool
}

// NewVirtualEx10 returns a device running its application with a valid
// image and an empty event fifo.
func NewVirtualEx10() *VirtualEx10 {
	v := &VirtualEx10{
		opResults:  make(map[registers.OpID]registers.OpError),
		infoPages:  make(map[byte][]byte),
		irq:        make(chan struct{}, 1),
		mem:        make([]byte, frame.MaxAddress),
		burst:      frame.MaxCommandSize,
		location:   registers.Application,
		resetDest:  registers.Application,
		imageValid: true,
		opsStatus:  registers.OpsStatusFields{OpID: registers.OpIdle},
	}
	v.mem[registers.OpsControl.Address] = byte(registers.OpIdle)
	v.mem[registers.CommandResult.Address] = StatusSuccess
	copy(v.mem[registers.VersionString.Address:], TestVersionString)
	copy(v.mem[registers.ProductSku.Address:], []byte{0x10, 0x07})
	binary.LittleEndian.PutUint32(v.mem[registers.FrefFreq.Address:], 24000)
	binary.LittleEndian.PutUint16(v.mem[registers.EventFifoIntLevel.Address:], frame.EventFifoSize/2)
	return v
}

// SetBurstSize sets the transaction size above which a write is recorded
// as a violation.
func (v *VirtualEx10) SetBurstSize(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.burst = n
}

// SetLocation forces the running location.
func (v *VirtualEx10) SetLocation(l registers.RunningLocation) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.location = l
}

// Location returns the running location.
func (v *VirtualEx10) Location() registers.RunningLocation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.location
}

// FailNext makes the next transaction answer with a lone status byte.
// Calls queue.
func (v *VirtualEx10) FailNext(code byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failNext = append(v.failNext, code)
}

// SetOpResult makes every later run of op finish with err.
func (v *VirtualEx10) SetOpResult(op registers.OpID, err registers.OpError) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.opResults[op] = err
}

// HoldOps keeps started ops busy until FinishOp is called.
func (v *VirtualEx10) HoldOps(hold bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.holdOps = hold
}

// FinishOp completes a held op.
func (v *VirtualEx10) FinishOp() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.opsStatus.Busy {
		v.completeOpLocked(v.opsStatus.OpID)
	}
}

// SetNotReady makes WaitReady time out, as a wedged device would.
func (v *VirtualEx10) SetNotReady(notReady bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notReady = notReady
}

// SetImageValid sets what RevalidateImage reports.
func (v *VirtualEx10) SetImageValid(valid bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.imageValid = valid
}

// PushEvent appends a packet to the event fifo and raises the fifo
// interrupts it crosses.
func (v *VirtualEx10) PushEvent(packet []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pushEventLocked(packet, false)
}

// Memory returns a copy of n bytes of the register image at addr.
func (v *VirtualEx10) Memory(addr uint16, n int) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.mem[addr:int(addr)+n]...)
}

// SetMemory overwrites the register image at addr.
func (v *VirtualEx10) SetMemory(addr uint16, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	copy(v.mem[addr:], data)
}

// FifoLen returns the number of bytes waiting in the event fifo.
func (v *VirtualEx10) FifoLen() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.fifo)
}

// Transactions returns every write processed so far.
func (v *VirtualEx10) Transactions() []Transaction {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Transaction(nil), v.transactions...)
}

// Violations returns the writes longer than the burst size.
func (v *VirtualEx10) Violations() []Transaction {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Transaction(nil), v.violations...)
}

// Ops returns every op started, in order.
func (v *VirtualEx10) Ops() []registers.OpID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]registers.OpID(nil), v.ops...)
}

// Image returns the last image flashed by a completed upload.
func (v *VirtualEx10) Image() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.image...)
}

// InfoPage returns the stored contents of page id. An erased page is
// empty.
func (v *VirtualEx10) InfoPage(id byte) ([]byte, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.infoPages[id]
	return append([]byte(nil), p...), ok
}

// Clocks returns every clock rate requested through SetClock.
func (v *VirtualEx10) Clocks() []int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int64(nil), v.clocks...)
}

// WaitReady reports READY_N immediately unless SetNotReady is in effect.
func (v *VirtualEx10) WaitReady(timeout time.Duration) error {
	v.mu.Lock()
	closed, notReady := v.closed, v.notReady
	v.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if notReady {
		time.Sleep(min(timeout, 10*time.Millisecond))
		return ErrReadyTimeout
	}
	return nil
}

// Write processes one host transaction.
func (v *VirtualEx10) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrClosed
	}
	cmd := append([]byte(nil), p...)
	resp := v.dispatchLocked(cmd)
	v.pending = resp
	t := Transaction{Cmd: cmd, Resp: append([]byte(nil), resp...)}
	v.transactions = append(v.transactions, t)
	if len(cmd) > v.burst {
		v.violations = append(v.violations, t)
	}
	return len(p), nil
}

// Read returns the response to the last write.
func (v *VirtualEx10) Read(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, ErrClosed
	}
	n := copy(p, v.pending)
	v.pending = v.pending[n:]
	return n, nil
}

// AssertReset holds the device in reset.
func (v *VirtualEx10) AssertReset() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inReset = true
	return nil
}

// DeassertReset releases reset; the device boots into the application
// when its image is valid.
func (v *VirtualEx10) DeassertReset() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.inReset {
		v.inReset = false
		if v.imageValid {
			v.rebootLocked(registers.Application)
		} else {
			v.rebootLocked(registers.Bootloader)
		}
	}
	return nil
}

// WaitForInterrupt waits for an enabled interrupt to be raised.
func (v *VirtualEx10) WaitForInterrupt(timeout time.Duration) (bool, error) {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return false, ErrClosed
	}
	select {
	case <-v.irq:
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

// SetClock records the requested bus clock.
func (v *VirtualEx10) SetClock(hz int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clocks = append(v.clocks, hz)
	return nil
}

// Close marks the device closed.
func (v *VirtualEx10) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (v *VirtualEx10) rebootLocked(loc registers.RunningLocation) {
	v.location = loc
	v.fifo = nil
	v.irqStatus = 0
	v.irqMask = 0
	v.uploading = false
	v.opsStatus = registers.OpsStatusFields{OpID: registers.OpIdle}
	v.mem[registers.OpsControl.Address] = byte(registers.OpIdle)
	copy(v.mem[registers.CommandResult.Address:], []byte{StatusSuccess, 0, 0, 0})
}

func (v *VirtualEx10) raiseLocked(bits byte) {
	v.irqStatus |= bits
	if bits&v.irqMask != 0 {
		select {
		case v.irq <- struct{}{}:
		default:
		}
	}
}

const (
	irqOpDone          = 1 << 0
	irqFifoAboveThresh = 1 << 2
	irqFifoFull        = 1 << 3
	irqAggregateOpDone = 1 << 7
)

func (v *VirtualEx10) pushEventLocked(packet []byte, trigger bool) {
	room := frame.EventFifoSize - len(v.fifo)
	if len(packet) > room {
		packet = packet[:room]
	}
	v.fifo = append(v.fifo, packet...)
	var bits byte
	threshold := int(binary.LittleEndian.Uint16(v.mem[registers.EventFifoIntLevel.Address:]))
	if len(v.fifo) >= threshold || trigger {
		bits |= irqFifoAboveThresh
	}
	if len(v.fifo) == frame.EventFifoSize {
		bits |= irqFifoFull
	}
	if bits != 0 {
		v.raiseLocked(bits)
	}
}

// setResultLocked tracks the first failure in CommandResult and counts the
// commands seen since.
func (v *VirtualEx10) setResultLocked(code, op byte) {
	r := v.mem[registers.CommandResult.Address:]
	if r[0] == StatusSuccess {
		if code == StatusSuccess {
			return
		}
		r[0], r[1] = code, op
	}
	binary.LittleEndian.PutUint16(r[2:], binary.LittleEndian.Uint16(r[2:])+1)
}

func (v *VirtualEx10) dispatchLocked(cmd []byte) []byte {
	if len(cmd) == 0 {
		return []byte{StatusCommandMalformed}
	}
	if len(v.failNext) > 0 {
		code := v.failNext[0]
		v.failNext = v.failNext[1:]
		v.setResultLocked(code, cmd[0])
		return []byte{code}
	}
	resp := v.handleLocked(cmd)
	if resp != nil {
		v.setResultLocked(resp[0], cmd[0])
	}
	return resp
}

func status(code byte) []byte {
	return []byte{code}
}

func (v *VirtualEx10) handleLocked(cmd []byte) []byte {
	switch cmd[0] {
	case frame.OpRead:
		return v.readLocked(cmd[1:])
	case frame.OpWrite:
		return v.writeLocked(cmd[1:])
	case frame.OpReadFifo:
		return v.readFifoLocked(cmd)
	case frame.OpTestTransfer:
		out := make([]byte, 1, len(cmd))
		out[0] = StatusSuccess
		for i, b := range cmd[1:] {
			out = append(out, b+byte(i))
		}
		return out
	case frame.OpTestRead:
		if len(cmd) != 7 {
			return status(StatusCommandMalformed)
		}
		addr := binary.LittleEndian.Uint32(cmd[1:5])
		n := 4 * int(binary.LittleEndian.Uint16(cmd[5:7]))
		if data, ok := v.infoPageReadLocked(addr, n); ok {
			return append(status(StatusSuccess), data...)
		}
		if int(addr)+n > len(v.mem) {
			return status(StatusArgumentInvalid)
		}
		return append(status(StatusSuccess), v.mem[addr:int(addr)+n]...)
	case frame.OpInsertFifoEvent:
		if len(cmd) < 2 {
			return status(StatusCommandMalformed)
		}
		trigger := cmd[1] != 0
		if len(cmd) > 2 {
			pkt := cmd[2:]
			if int(pkt[0])*4 != len(pkt) {
				return status(StatusLengthInvalid)
			}
			v.pushEventLocked(pkt, trigger)
		} else if trigger {
			v.raiseLocked(irqFifoAboveThresh)
		}
		return status(StatusSuccess)
	case frame.OpReset:
		if len(cmd) < 2 {
			return nil
		}
		var dest registers.RunningLocation
		switch cmd[1] {
		case frame.DestApplication:
			dest = registers.Application
		case frame.DestBootloader:
			dest = registers.Bootloader
		default:
			return nil
		}
		if dest == registers.Application && !v.imageValid {
			dest = registers.Bootloader
		}
		v.rebootLocked(dest)
		return nil
	case frame.OpStartUpload, frame.OpContinueUpload, frame.OpCompleteUpload,
		frame.OpReValidateImage, frame.OpWriteInfoPage:
		return v.bootloaderLocked(cmd)
	default:
		return status(StatusCommandInvalid)
	}
}

func (v *VirtualEx10) refreshLocked() {
	binary.LittleEndian.PutUint16(v.mem[registers.Status.Address:], uint16(v.location))
	copy(v.mem[registers.OpsStatus.Address:], v.opsStatus.Bytes())
	v.mem[registers.InterruptStatus.Address] = v.irqStatus
	v.mem[registers.InterruptMask.Address] = v.irqMask
	binary.LittleEndian.PutUint16(v.mem[registers.EventFifoNumBytes.Address:], uint16(len(v.fifo)))
	if v.location == registers.Bootloader {
		validity := registers.ImageValidityFields{ImageValid: v.imageValid, ImageNonValid: !v.imageValid}
		copy(v.mem[registers.ImageValidity.Address:], validity.Bytes())
	}
}

func overlaps(seg frame.Segment, r registers.Info) bool {
	start, end := int(seg.Address), int(seg.Address)+int(seg.Length)
	return start < r.End() && int(r.Address) < end
}

func (v *VirtualEx10) readLocked(p []byte) []byte {
	if len(p) == 0 || len(p)%frame.SegmentHeaderSize != 0 {
		return status(StatusCommandMalformed)
	}
	v.refreshLocked()
	out := status(StatusSuccess)
	clearIRQ := false
	for ; len(p) > 0; p = p[frame.SegmentHeaderSize:] {
		seg, err := frame.ParseSegment(p)
		if err != nil {
			return status(StatusCommandMalformed)
		}
		end := int(seg.Address) + int(seg.Length)
		if end > len(v.mem) {
			return status(StatusArgumentInvalid)
		}
		out = append(out, v.mem[seg.Address:end]...)
		if overlaps(seg, registers.InterruptStatus) {
			clearIRQ = true
		}
	}
	if clearIRQ {
		v.irqStatus = 0
	}
	return out
}

func (v *VirtualEx10) writeLocked(p []byte) []byte {
	if len(p) < frame.SegmentHeaderSize {
		return status(StatusCommandMalformed)
	}
	for len(p) > 0 {
		seg, err := frame.ParseSegment(p)
		if err != nil || len(p) < frame.SegmentHeaderSize+int(seg.Length) {
			return status(StatusCommandMalformed)
		}
		end := int(seg.Address) + int(seg.Length)
		if end > len(v.mem) {
			return status(StatusArgumentInvalid)
		}
		data := p[frame.SegmentHeaderSize : frame.SegmentHeaderSize+int(seg.Length)]
		copy(v.mem[seg.Address:end], data)
		v.applyWriteLocked(seg)
		p = p[frame.SegmentHeaderSize+int(seg.Length):]
	}
	return status(StatusSuccess)
}

func (v *VirtualEx10) applyWriteLocked(seg frame.Segment) {
	switch {
	case overlaps(seg, registers.InterruptMaskSet):
		v.irqMask |= v.mem[registers.InterruptMaskSet.Address]
	case overlaps(seg, registers.InterruptMaskClr):
		v.irqMask &^= v.mem[registers.InterruptMaskClr.Address]
	case overlaps(seg, registers.InterruptMask):
		v.irqMask = v.mem[registers.InterruptMask.Address]
	}
	if overlaps(seg, registers.OpsControl) {
		v.startOpLocked(registers.OpID(v.mem[registers.OpsControl.Address]))
	}
}

func (v *VirtualEx10) startOpLocked(op registers.OpID) {
	if op == registers.OpIdle {
		v.opsStatus = registers.OpsStatusFields{OpID: registers.OpIdle}
		return
	}
	v.ops = append(v.ops, op)
	v.opsStatus = registers.OpsStatusFields{OpID: op, Busy: true}
	if !v.holdOps {
		v.completeOpLocked(op)
	}
}

func (v *VirtualEx10) completeOpLocked(op registers.OpID) {
	opErr := v.opResults[op]
	bits := byte(irqOpDone)
	if op == registers.OpAggregate {
		if err := v.runAggregateLocked(); err != registers.OpErrNone && opErr == registers.OpErrNone {
			opErr = err
		}
		bits |= irqAggregateOpDone
	}
	v.opsStatus = registers.OpsStatusFields{OpID: op, Error: opErr}
	v.mem[registers.OpsControl.Address] = byte(registers.OpIdle)
	v.raiseLocked(bits)
}

// runAggregateLocked executes the aggregate buffer and closes the run with
// an AggregateOpSummary event. Jumps are not followed.
func (v *VirtualEx10) runAggregateLocked() registers.OpError {
	buf := v.mem[registers.AggregateOpBuffer.Address:registers.AggregateOpBuffer.End()]
	insts, err := aggregate.Parse(append([]byte(nil), buf...))
	if err != nil {
		return registers.OpErrAggregateBufferOverflow
	}
	var sum eventfifo.AggregateOpSummary
	result := registers.OpErrNone
run:
	for _, inst := range insts {
		sum.FinalBufferByteIndex = uint16(inst.Offset)
		switch inst.Code {
		case aggregate.CodeWrite:
			copy(v.mem[inst.Address:], inst.Data)
			v.applyWriteLocked(frame.Segment{Address: inst.Address, Length: uint16(len(inst.Data))})
			sum.WriteCount++
		case aggregate.CodeInsertFifoEvent:
			v.pushEventLocked(inst.Packet, inst.TriggerIRQ)
			sum.InsertFifoCount++
		case aggregate.CodeRunOp:
			v.ops = append(v.ops, inst.Op)
			sum.OpRunCount++
			sum.LastInnerOpRun = uint8(inst.Op)
			if e := v.opResults[inst.Op]; e != registers.OpErrNone {
				sum.LastInnerOpError = uint8(e)
				result = registers.OpErrAggregateInnerOpError
				break run
			}
		case aggregate.CodeIdentifier:
			sum.Identifier = inst.ID
		case aggregate.CodeExit:
			break run
		}
	}
	v.pushEventLocked(eventfifo.MustBuild(eventfifo.TypeAggregateOpSummary, 0, sum, nil), false)
	return result
}

func (v *VirtualEx10) readFifoLocked(cmd []byte) []byte {
	if len(cmd) != 4 {
		return status(StatusCommandMalformed)
	}
	if cmd[1] != frame.FifoEvent {
		return status(StatusArgumentInvalid)
	}
	n := int(binary.LittleEndian.Uint16(cmd[2:4]))
	out := make([]byte, 1+n)
	out[0] = StatusSuccess
	k := copy(out[1:], v.fifo)
	v.fifo = v.fifo[k:]
	return out
}

// infoPageReadLocked serves TestRead inside an info page window. Erased
// flash reads as 0xFF.
func (v *VirtualEx10) infoPageReadLocked(addr uint32, n int) ([]byte, bool) {
	for id, base := range frame.InfoPageBase {
		if addr < base || uint64(addr)+uint64(n) > uint64(base)+frame.InfoPageSize {
			continue
		}
		page := make([]byte, frame.InfoPageSize)
		for i := range page {
			page[i] = 0xFF
		}
		copy(page, v.infoPages[byte(id)])
		off := int(addr - base)
		return page[off : off+n], true
	}
	return nil, false
}

func (v *VirtualEx10) bootloaderLocked(cmd []byte) []byte {
	if v.location != registers.Bootloader {
		return status(StatusCommandInvalid)
	}
	switch cmd[0] {
	case frame.OpStartUpload:
		if len(cmd) < 2 {
			return status(StatusCommandMalformed)
		}
		v.uploading = true
		v.uploadDest = cmd[1]
		v.upload = append([]byte(nil), cmd[2:]...)
	case frame.OpContinueUpload:
		if !v.uploading {
			return status(StatusUploadStateInvalid)
		}
		if len(v.upload)+len(cmd)-1 > frame.MaxImageBytes {
			return status(StatusLengthInvalid)
		}
		v.upload = append(v.upload, cmd[1:]...)
	case frame.OpCompleteUpload:
		if !v.uploading {
			return status(StatusUploadStateInvalid)
		}
		v.uploading = false
		v.image = v.upload
		v.upload = nil
	case frame.OpReValidateImage:
		v.refreshLocked()
	case frame.OpWriteInfoPage:
		if len(cmd) < 4 {
			return status(StatusCommandMalformed)
		}
		page := cmd[1]
		if int(page) >= len(frame.InfoPageBase) {
			return status(StatusFlashInvalidPage)
		}
		data := cmd[2 : len(cmd)-2]
		crc := binary.LittleEndian.Uint16(cmd[len(cmd)-2:])
		if crc != frame.InfoPageCRC(data) {
			return status(StatusBadCrc)
		}
		if len(data) == 0 {
			delete(v.infoPages, page)
			break
		}
		v.infoPages[page] = append([]byte(nil), data...)
	}
	return status(StatusSuccess)
}

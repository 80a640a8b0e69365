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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-ex10/eventfifo"
)

// TagErrorCode is the error code a tag returns after a set header bit.
type TagErrorCode uint8

const (
	TagErrOther                  TagErrorCode = 0x00
	TagErrNotSupported           TagErrorCode = 0x01
	TagErrInsufficientPrivileges TagErrorCode = 0x02
	TagErrMemoryOverrun          TagErrorCode = 0x03
	TagErrMemoryLocked           TagErrorCode = 0x04
	TagErrCryptoSuite            TagErrorCode = 0x05
	TagErrCommandNotEncapsulated TagErrorCode = 0x06
	TagErrResponseBufferOverflow TagErrorCode = 0x07
	TagErrSecurityTimeout        TagErrorCode = 0x08
	TagErrInsufficientPower      TagErrorCode = 0x0B
	TagErrNonSpecific            TagErrorCode = 0x0F
	TagErrNone                   TagErrorCode = 0x10
)

var tagErrorNames = map[TagErrorCode]string{
	TagErrOther:                  "other",
	TagErrNotSupported:           "not supported",
	TagErrInsufficientPrivileges: "insufficient privileges",
	TagErrMemoryOverrun:          "memory overrun",
	TagErrMemoryLocked:           "memory locked",
	TagErrCryptoSuite:            "crypto suite error",
	TagErrCommandNotEncapsulated: "command not encapsulated",
	TagErrResponseBufferOverflow: "response buffer overflow",
	TagErrSecurityTimeout:        "security timeout",
	TagErrInsufficientPower:      "insufficient power",
	TagErrNonSpecific:            "non-specific",
	TagErrNone:                   "no error",
}

func (c TagErrorCode) String() string {
	if s, ok := tagErrorNames[c]; ok {
		return s
	}
	return fmt.Sprintf("tag error 0x%02X", uint8(c))
}

// Reply decoding errors
var (
	ErrNoReplyDecoder    = errors.New("gen2: no reply decoder for command")
	ErrTransactionFailed = errors.New("gen2: transaction failed")
	ErrTagError          = errors.New("gen2: tag reported error")
	ErrShortReply        = errors.New("gen2: reply too short")
)

// inProcessBarkerBits is added to Authenticate replies, which arrive as
// in-process replies without the barker code counted.
const inProcessBarkerBits = 7

// Reply is a decoded tag reply.
type Reply struct {
	Words             []uint16
	Kind              Kind
	TransactionStatus uint8
	ErrorCode         TagErrorCode
}

func hasHeaderBit(k Kind) (bool, error) {
	switch k {
	case KindRead, KindBlockPermalock, KindWrite, KindKill2, KindLock, KindBlockWrite:
		return true, nil
	case KindAuthenticate, KindKill1, KindAccess:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrNoReplyDecoder, k)
	}
}

// DecodeReply decodes the Gen2Transaction packet answering a command of
// kind k. The returned Reply is filled as far as decoding got, so a failed
// transaction still reports its status and tag error code.
func DecodeReply(k Kind, p eventfifo.Packet) (Reply, error) {
	reply := Reply{Kind: k, ErrorCode: TagErrNone}
	txn, err := p.Gen2Transaction()
	if err != nil {
		return reply, err
	}
	reply.TransactionStatus = txn.Status
	if txn.Status != eventfifo.Gen2TransactionOK {
		return reply, fmt.Errorf("%w: status %d", ErrTransactionFailed, txn.Status)
	}

	header, err := hasHeaderBit(k)
	if err != nil {
		return reply, err
	}

	bits := int(txn.NumBits)
	data := p.Dynamic
	if header {
		if bits < 9 || len(data) < 2 {
			return reply, fmt.Errorf("%w: %d bits", ErrShortReply, bits)
		}
		if data[0]&0x01 != 0 {
			reply.ErrorCode = TagErrorCode(data[1])
			if reply.ErrorCode != TagErrNone {
				return reply, fmt.Errorf("%w: %s", ErrTagError, reply.ErrorCode)
			}
		}
		bits--
		data = data[1:]
	}
	if k == KindAuthenticate {
		bits += inProcessBarkerBits
	}

	words := (bits + 15) / 16
	if len(data) < words*2 {
		return reply, fmt.Errorf("%w: %d bits in %d bytes", ErrShortReply, bits, len(data))
	}
	reply.Words = make([]uint16, words)
	for i := range reply.Words {
		reply.Words[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return reply, nil
}

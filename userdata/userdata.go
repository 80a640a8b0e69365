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

// Package userdata stores NDEF messages in the User memory bank of a Gen2
// tag. The message is wrapped in an NDEF TLV and laid out big-endian in
// 16-bit words from the start of the bank.
package userdata

import (
	"errors"
	"fmt"

	"github.com/hsanjuan/go-ndef"

	"github.com/ZaparooProject/go-ex10/gen2"
)

// TLV tags used in User memory.
const (
	TLVNull       = 0x00
	TLVNDEF       = 0x03
	TLVTerminator = 0xFE
)

// DefaultBlockWords is the BlockWrite size most Gen2 tags accept.
const DefaultBlockWords = 2

var (
	ErrNoNDEF          = errors.New("userdata: no NDEF message")
	ErrTruncated       = errors.New("userdata: TLV runs past the end of memory")
	ErrMessageTooLarge = errors.New("userdata: message does not fit in User memory")
	ErrNoRecords       = errors.New("userdata: message has no records")
)

// RecordType classifies a record.
type RecordType int

const (
	RecordOther RecordType = iota
	RecordText
	RecordURI
	RecordMedia
)

func (t RecordType) String() string {
	switch t {
	case RecordText:
		return "text"
	case RecordURI:
		return "uri"
	case RecordMedia:
		return "media"
	default:
		return "other"
	}
}

// Record is one decoded NDEF record.
type Record struct {
	Text      string
	URI       string
	MediaType string
	Language  string
	Payload   []byte
	Type      RecordType
}

// TextRecord returns an English text record.
func TextRecord(text string) Record {
	return Record{Type: RecordText, Text: text, Language: "en"}
}

// URIRecord returns a URI record.
func URIRecord(uri string) Record {
	return Record{Type: RecordURI, URI: uri}
}

// MediaRecord returns a MIME typed record.
func MediaRecord(mimeType string, data []byte) Record {
	return Record{Type: RecordMedia, MediaType: mimeType, Payload: data}
}

func (r Record) ndef() (*ndef.Record, error) {
	switch r.Type {
	case RecordText:
		lang := r.Language
		if lang == "" {
			lang = "en"
		}
		return ndef.NewTextRecord(r.Text, lang), nil
	case RecordURI:
		return ndef.NewURIRecord(r.URI), nil
	case RecordMedia:
		return ndef.NewMediaRecord(r.MediaType, r.Payload), nil
	default:
		return nil, fmt.Errorf("userdata: cannot encode %s record", r.Type)
	}
}

// Marshal encodes records as one NDEF message.
func Marshal(records ...Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	nrs := make([]*ndef.Record, 0, len(records))
	for _, r := range records {
		nr, err := r.ndef()
		if err != nil {
			return nil, err
		}
		nrs = append(nrs, nr)
	}
	msg := ndef.NewMessageFromRecords(nrs...)
	b, err := msg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("userdata: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal decodes an NDEF message.
func Unmarshal(b []byte) ([]Record, error) {
	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("userdata: unmarshal: %w", err)
	}
	if len(msg.Records) == 0 {
		return nil, ErrNoRecords
	}
	out := make([]Record, 0, len(msg.Records))
	for _, nr := range msg.Records {
		out = append(out, fromNDEF(nr))
	}
	return out, nil
}

func fromNDEF(nr *ndef.Record) Record {
	var r Record
	pl, err := nr.Payload()
	if err != nil || pl == nil {
		return r
	}
	r.Payload = pl.Marshal()
	switch {
	case nr.TNF() == ndef.NFCForumWellKnownType && nr.Type() == "T":
		r.Type = RecordText
		r.Text = pl.String()
		if len(r.Payload) > 0 {
			n := int(r.Payload[0] & 0x3F)
			if 1+n <= len(r.Payload) {
				r.Language = string(r.Payload[1 : 1+n])
			}
		}
	case nr.TNF() == ndef.NFCForumWellKnownType && nr.Type() == "U":
		r.Type = RecordURI
		r.URI = pl.String()
	case nr.TNF() == ndef.MediaType:
		r.Type = RecordMedia
		r.MediaType = nr.Type()
	}
	return r
}

// WrapTLV wraps an NDEF message in an NDEF TLV followed by a terminator.
// Lengths of 255 and above use the three byte form.
func WrapTLV(msg []byte) []byte {
	out := make([]byte, 0, len(msg)+5)
	out = append(out, TLVNDEF)
	if len(msg) < 0xFF {
		out = append(out, byte(len(msg)))
	} else {
		out = append(out, 0xFF, byte(len(msg)>>8), byte(len(msg)))
	}
	out = append(out, msg...)
	return append(out, TLVTerminator)
}

// UnwrapTLV returns the first NDEF TLV value in data, skipping NULL and
// other TLVs before it.
func UnwrapTLV(data []byte) ([]byte, error) {
	for i := 0; i < len(data); {
		tag := data[i]
		switch tag {
		case TLVNull:
			i++
			continue
		case TLVTerminator:
			return nil, ErrNoNDEF
		}
		if i+1 >= len(data) {
			return nil, ErrTruncated
		}
		n, hdr := int(data[i+1]), 2
		if n == 0xFF {
			if i+3 >= len(data) {
				return nil, ErrTruncated
			}
			n, hdr = int(data[i+2])<<8|int(data[i+3]), 4
		}
		start := i + hdr
		if start+n > len(data) {
			return nil, ErrTruncated
		}
		if tag == TLVNDEF {
			return data[start : start+n], nil
		}
		i = start + n
	}
	return nil, ErrNoNDEF
}

// ToWords packs bytes big-endian into words, zero padding an odd tail.
func ToWords(b []byte) []uint16 {
	words := make([]uint16, (len(b)+1)/2)
	for i, c := range b {
		if i%2 == 0 {
			words[i/2] = uint16(c) << 8
		} else {
			words[i/2] |= uint16(c)
		}
	}
	return words
}

// FromWords unpacks words into bytes.
func FromWords(words []uint16) []byte {
	out := make([]byte, 0, 2*len(words))
	for _, w := range words {
		out = append(out, byte(w>>8), byte(w))
	}
	return out
}

// Layout places the TLV in User memory.
type Layout struct {
	// WordPointer is the first word written.
	WordPointer uint32
	// CapacityWords is the size of User memory; zero skips the check.
	CapacityWords int
	// BlockWords is the number of words per BlockWrite.
	BlockWords int
}

// DefaultLayout writes from word 0 in two word blocks.
func DefaultLayout(capacityWords int) Layout {
	return Layout{CapacityWords: capacityWords, BlockWords: DefaultBlockWords}
}

// WriteCommands returns the BlockWrite commands that store records.
func WriteCommands(layout Layout, records ...Record) ([]gen2.Command, error) {
	msg, err := Marshal(records...)
	if err != nil {
		return nil, err
	}
	words := ToWords(WrapTLV(msg))
	if layout.CapacityWords > 0 && int(layout.WordPointer)+len(words) > layout.CapacityWords {
		return nil, fmt.Errorf("%w: %d words at %d, capacity %d",
			ErrMessageTooLarge, len(words), layout.WordPointer, layout.CapacityWords)
	}
	block := layout.BlockWords
	if block <= 0 {
		block = DefaultBlockWords
	}
	block = min(block, 0xFF)

	cmds := make([]gen2.Command, 0, (len(words)+block-1)/block)
	for off := 0; off < len(words); off += block {
		chunk := words[off:min(off+block, len(words))]
		cmds = append(cmds, gen2.BlockWrite{
			MemoryBank:  gen2.BankUser,
			WordPointer: layout.WordPointer + uint32(off),
			WordCount:   uint8(len(chunk)),
			Data:        gen2.SpanFromBytes(FromWords(chunk)),
		})
	}
	return cmds, nil
}

// ReadCommand returns the Read that fetches n words of User memory
// starting at the layout's pointer.
func ReadCommand(layout Layout, n int) gen2.Read {
	return gen2.Read{MemoryBank: gen2.BankUser, WordPointer: layout.WordPointer, WordCount: uint8(min(n, 0xFF))}
}

// Decode extracts the records stored in User memory words.
func Decode(words []uint16) ([]Record, error) {
	msg, err := UnwrapTLV(FromWords(words))
	if err != nil {
		return nil, err
	}
	return Unmarshal(msg)
}

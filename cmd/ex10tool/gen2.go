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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	ex10 "github.com/ZaparooProject/go-ex10"
	"github.com/ZaparooProject/go-ex10/gen2"
	"github.com/ZaparooProject/go-ex10/userdata"
)

func runGen2Text(ctx context.Context, dev *ex10.Device, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("gen2-text", flag.ContinueOnError)
	text := fs.String("text", "", "text to encode")
	capacity := fs.Int("capacity", 32, "User memory size in words")
	blockWords := fs.Int("block-words", userdata.DefaultBlockWords, "words per BlockWrite")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *text == "" {
		return errors.New("-text is required")
	}

	layout := userdata.DefaultLayout(*capacity)
	layout.BlockWords = *blockWords
	cmds, err := userdata.WriteCommands(layout, userdata.TextRecord(*text))
	if err != nil {
		return err
	}
	if len(cmds) > gen2.MaxCommands {
		return fmt.Errorf("%d BlockWrites do not fit %d slots; raise -block-words", len(cmds), gen2.MaxCommands)
	}

	mgr := gen2.NewTxCommandManager(nil)
	enables := make([]bool, len(cmds))
	for i, c := range cmds {
		if _, err := mgr.Append(c, uint8(i)); err != nil {
			return fmt.Errorf("stage command %d: %w", i, err)
		}
		enables[i] = true
	}
	if err := mgr.Write(ctx, dev); err != nil {
		return err
	}
	if err := mgr.WriteAccessEnables(ctx, dev, enables); err != nil {
		return err
	}

	for i, s := range mgr.Commands() {
		if !s.Valid {
			continue
		}
		_, _ = fmt.Fprintf(out, "slot %d txn %d %s (%d bits)\n", i, s.TransactionID, s.Decoded.Kind(), s.Encoded.Len)
	}
	_, _ = fmt.Fprintf(out, "%d access commands staged\n", len(cmds))
	return nil
}

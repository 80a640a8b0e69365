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

// Command ex10tool talks to an Impinj Ex10 reader: it reports versions,
// exercises the link, dumps registers, watches the event fifo, uploads
// firmware and stages Gen2 commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	ex10 "github.com/ZaparooProject/go-ex10"
)

type options struct {
	configPath string
	devicePath string
	timeout    time.Duration
	debug      bool
}

type command struct {
	run   func(ctx context.Context, dev *ex10.Device, args []string, out io.Writer) error
	name  string
	usage string
	// bootloader commands connect without initializing interrupts
	bootloader bool
}

var commands = []command{
	{name: "info", usage: "show running location, versions and SKU", run: runInfo},
	{name: "loopback", usage: "exchange -n test transfers and verify the echo", run: runLoopback},
	{name: "dump", usage: "read every readable register", run: runDump},
	{name: "monitor", usage: "print event fifo packets as interrupts arrive", run: runMonitor},
	{name: "capture", usage: "record event fifo packets to -out as CBOR", run: runCapture},
	{name: "upload", usage: "upload -image to flash and revalidate it", run: runUpload, bootloader: true},
	{name: "gen2-text", usage: "stage an NDEF -text record as Gen2 BlockWrites", run: runGen2Text},
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		w := fs.Output()
		_, _ = fmt.Fprintf(w, "Usage: %s [flags] <command> [command flags]\n\nCommands:\n", fs.Name())
		for _, c := range commands {
			_, _ = fmt.Fprintf(w, "  %-10s %s\n", c.name, c.usage)
		}
		_, _ = fmt.Fprint(w, "\nFlags:\n")
		fs.PrintDefaults()
	}
}

func parseFlags(args []string) (*options, []string, error) {
	opts := &options{}
	fs := flag.NewFlagSet("ex10tool", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "YAML board description")
	fs.StringVar(&opts.devicePath, "device", "",
		"spidev or serial path (e.g. /dev/spidev0.0, /dev/ttyACM0). Leave empty for auto-detection.")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall timeout; monitor and capture run until it expires")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug output")
	fs.Usage = usage(fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, nil, errors.New("no command given")
	}
	return opts, fs.Args(), nil
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func main() {
	if run(os.Args[1:]) != 0 {
		os.Exit(1)
	}
}

func run(args []string) int {
	opts, rest, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	cmd, ok := findCommand(rest[0])
	if !ok {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: unknown command %q\n", rest[0])
		return 1
	}

	var logger *slog.Logger
	if opts.debug {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		ex10.SetLogger(logger)
		ex10.SetDebugEnabled(true)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			_, _ = fmt.Fprint(os.Stderr, "\nShutting down gracefully...\n")
			cancel()
		case <-ctx.Done():
		}
	}()

	dev, err := connect(opts, logger, cmd.bootloader)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: failed to connect: %v\n", err)
		return 1
	}
	defer func() { _ = dev.Close() }()

	if err := cmd.run(ctx, dev, rest[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %s: %v\n", cmd.name, err)
		return 1
	}
	return 0
}

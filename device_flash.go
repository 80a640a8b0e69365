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

package ex10

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-ex10/internal/frame"
	"github.com/ZaparooProject/go-ex10/registers"
)

// InfoPage identifies a flash info page.
type InfoPage uint8

const (
	PageMain InfoPage = iota
	PageFeatureControls
	PageManufacturing
	PageCalibration
	PageStoredSettings
)

func (p InfoPage) String() string {
	switch p {
	case PageMain:
		return "Main"
	case PageFeatureControls:
		return "FeatureControls"
	case PageManufacturing:
		return "Manufacturing"
	case PageCalibration:
		return "Calibration"
	case PageStoredSettings:
		return "StoredSettings"
	default:
		return fmt.Sprintf("InfoPage(%d)", uint8(p))
	}
}

// Address returns the TestRead address of the page.
func (p InfoPage) Address() (uint32, error) {
	if int(p) >= len(frame.InfoPageBase) {
		return 0, fmt.Errorf("info page %d: %w", p, ErrInvalidParameter)
	}
	return frame.InfoPageBase[p], nil
}

// uploadState tracks a piecewise upload between UploadStart and
// UploadComplete.
type uploadState struct {
	total     int
	remaining int
	active    bool
}

func (d *Device) requireBootloader(ctx context.Context, op string) error {
	loc, err := d.RunningLocation(ctx)
	if err != nil {
		return err
	}
	if loc != registers.Bootloader {
		return fmt.Errorf("%s in %s: %w", op, loc, ErrWrongLocation)
	}
	return nil
}

func (d *Device) writeFref(ctx context.Context, khz uint32) error {
	r := registers.FrefFreqBootloader
	if err := d.WriteRegister(ctx, r, registers.Value(r, khz)); err != nil {
		return fmt.Errorf("set flash reference clock: %w", err)
	}
	return nil
}

// checkCommandResult reads CommandResult and turns a recorded failure into
// a DeviceError.
func (d *Device) checkCommandResult(ctx context.Context, op string) error {
	b, err := d.ReadRegister(ctx, registers.CommandResult)
	if err != nil {
		return err
	}
	res, err := registers.ParseCommandResult(b)
	if err != nil {
		return err
	}
	if ResponseCode(res.FailedResultCode) != Success {
		debugf("%s: command 0x%02X failed, %d commands since", op, res.FailedCommandCode, res.CommandsSinceFirstError)
		return &DeviceError{Op: op, Code: ResponseCode(res.FailedResultCode)}
	}
	return nil
}

// WriteInfoPage programs page with data. The device must be in the
// bootloader; frefKHz is written to the flash clock register first. Empty
// data erases the page.
func (d *Device) WriteInfoPage(ctx context.Context, page InfoPage, data []byte, frefKHz uint32) error {
	if _, err := page.Address(); err != nil {
		return err
	}
	wrap := func(err error) error {
		return &UploadError{Stage: StageInfoPage, Err: err}
	}
	if err := d.requireBootloader(ctx, "write info page"); err != nil {
		return wrap(err)
	}
	if err := d.writeFref(ctx, frefKHz); err != nil {
		return wrap(err)
	}
	if err := d.cmds.WriteInfoPage(ctx, byte(page), data); err != nil {
		return wrap(err)
	}
	d.logger.Info("info page written", "page", page.String(), "bytes", len(data))
	return nil
}

// WriteCalibrationPage programs the calibration page at the board clock.
func (d *Device) WriteCalibrationPage(ctx context.Context, data []byte) error {
	return d.WriteInfoPage(ctx, PageCalibration, data, d.config.FrefKHz)
}

// WriteStoredSettingsPage programs the stored settings page at the board
// clock.
func (d *Device) WriteStoredSettingsPage(ctx context.Context, data []byte) error {
	return d.WriteInfoPage(ctx, PageStoredSettings, data, d.config.FrefKHz)
}

// EraseInfoPage erases page.
func (d *Device) EraseInfoPage(ctx context.Context, page InfoPage, frefKHz uint32) error {
	return d.WriteInfoPage(ctx, page, nil, frefKHz)
}

// ReadInfoPage reads a whole info page through TestRead.
func (d *Device) ReadInfoPage(ctx context.Context, page InfoPage) ([]byte, error) {
	addr, err := page.Address()
	if err != nil {
		return nil, err
	}
	return d.TestRead(ctx, addr, frame.InfoPageSize)
}

func (d *Device) uploadChunkSize() int {
	return d.cmds.burst() - 2
}

// UploadImage flashes image into dest from the bootloader, checking
// CommandResult after every chunk.
func (d *Device) UploadImage(ctx context.Context, dest byte, image []byte) error {
	if len(image) == 0 {
		return &UploadError{Stage: StageStart, Err: HostErrNullData}
	}
	if len(image) > frame.MaxImageBytes {
		return &UploadError{Stage: StageStart, Err: ErrDataTooLarge}
	}
	if err := d.requireBootloader(ctx, "upload"); err != nil {
		return &UploadError{Stage: StageStart, Err: err}
	}
	if err := d.writeFref(ctx, d.config.FrefKHz); err != nil {
		return &UploadError{Stage: StageStart, Err: err}
	}

	chunk := d.uploadChunkSize()
	for off := 0; off < len(image); {
		n := min(chunk, len(image)-off)
		stage := StageContinue
		var err error
		if off == 0 {
			stage = StageStart
			err = d.cmds.StartUpload(ctx, dest, image[:n])
		} else {
			err = d.cmds.ContinueUpload(ctx, image[off:off+n])
		}
		if err == nil {
			err = d.checkCommandResult(ctx, "upload")
		}
		if err != nil {
			return &UploadError{Stage: stage, Offset: off, Err: err}
		}
		off += n
		debugf("uploaded %d/%d", off, len(image))
	}

	if err := d.cmds.CompleteUpload(ctx); err != nil {
		return &UploadError{Stage: StageComplete, Offset: len(image), Err: err}
	}
	if err := d.checkCommandResult(ctx, "complete upload"); err != nil {
		return &UploadError{Stage: StageComplete, Offset: len(image), Err: err}
	}
	d.logger.Info("image uploaded", "bytes", len(image))
	return nil
}

// UploadStart begins a piecewise upload of an image of total bytes, first
// being its leading chunk.
func (d *Device) UploadStart(ctx context.Context, dest byte, total int, first []byte) error {
	if total <= 0 || total > frame.MaxImageBytes || len(first) > total {
		return &UploadError{Stage: StageStart, Err: ErrInvalidParameter}
	}
	if err := d.requireBootloader(ctx, "upload"); err != nil {
		return &UploadError{Stage: StageStart, Err: err}
	}
	if err := d.writeFref(ctx, d.config.FrefKHz); err != nil {
		return &UploadError{Stage: StageStart, Err: err}
	}
	if err := d.cmds.StartUpload(ctx, dest, first); err != nil {
		return &UploadError{Stage: StageStart, Err: err}
	}
	d.state.mu.Lock()
	d.state.upload = uploadState{total: total, remaining: total - len(first), active: true}
	d.state.mu.Unlock()
	return nil
}

// UploadContinue sends the next chunk. It may not exceed the bytes the
// upload has left.
func (d *Device) UploadContinue(ctx context.Context, chunk []byte) error {
	d.state.mu.Lock()
	up := d.state.upload
	d.state.mu.Unlock()
	offset := up.total - up.remaining
	if !up.active {
		return &UploadError{Stage: StageContinue, Offset: offset, Err: ErrInvalidParameter}
	}
	if len(chunk) > up.remaining || len(chunk) > d.uploadChunkSize() {
		return &UploadError{Stage: StageContinue, Offset: offset, Err: HostErrBadCommandedLength}
	}
	if err := d.cmds.ContinueUpload(ctx, chunk); err != nil {
		return &UploadError{Stage: StageContinue, Offset: offset, Err: err}
	}
	if err := d.checkCommandResult(ctx, "upload"); err != nil {
		return &UploadError{Stage: StageContinue, Offset: offset, Err: err}
	}
	d.state.mu.Lock()
	d.state.upload.remaining -= len(chunk)
	d.state.mu.Unlock()
	return nil
}

// UploadRemaining returns how many bytes the open upload still expects.
func (d *Device) UploadRemaining() int {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	return d.state.upload.remaining
}

// UploadComplete closes the upload.
func (d *Device) UploadComplete(ctx context.Context) error {
	d.state.mu.Lock()
	up := d.state.upload
	d.state.upload = uploadState{}
	d.state.mu.Unlock()
	offset := up.total - up.remaining
	if up.remaining != 0 {
		d.logger.Warn("upload completed short", "remaining", up.remaining)
	}
	if err := d.cmds.CompleteUpload(ctx); err != nil {
		return &UploadError{Stage: StageComplete, Offset: offset, Err: err}
	}
	if err := d.checkCommandResult(ctx, "complete upload"); err != nil {
		return &UploadError{Stage: StageComplete, Offset: offset, Err: err}
	}
	return nil
}

// RevalidateImage asks the bootloader to re-check the main image and
// returns its verdict.
func (d *Device) RevalidateImage(ctx context.Context) (registers.ImageValidityFields, error) {
	fail := func(err error) (registers.ImageValidityFields, error) {
		return registers.ImageValidityFields{}, &UploadError{Stage: StageRevalidate, Err: err}
	}
	if err := d.writeFref(ctx, d.config.FrefKHz); err != nil {
		return fail(err)
	}
	if err := d.cmds.RevalidateMainImage(ctx); err != nil {
		return fail(err)
	}
	if err := d.checkCommandResult(ctx, "revalidate"); err != nil {
		return fail(err)
	}
	b, err := d.ReadRegister(ctx, registers.ImageValidity)
	if err != nil {
		return fail(err)
	}
	return registers.ParseImageValidity(b), nil
}

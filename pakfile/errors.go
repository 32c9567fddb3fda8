// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pakfile

import (
	"errors"
	"fmt"
)

var (
	ErrBadMagic           = errors.New("bad magic number: not an rpak file")
	ErrUnsupportedVersion = errors.New("unsupported rpak version")
	ErrTruncated          = errors.New("file truncated")
	ErrChecksum           = errors.New("checksum mismatch")
	ErrCorruptPointer     = errors.New("pointer does not address a loaded page")
	ErrUnresolved         = errors.New("pointer not yet resolved")
	ErrNotPointer         = errors.New("location is not a pointer slot")
	ErrOutOfBounds        = errors.New("read past end of page")
	ErrNotPatchMaster     = errors.New("pak has no patch master asset")
	ErrBaseRevision       = errors.New("previous revision unavailable")
)

// DataError describes malformed data at a known file or page offset.
type DataError struct {
	Off int64
	Msg string
	Err error
}

func dataErrf(off int64, err error, format string, args ...any) error {
	return &DataError{Off: off, Err: err, Msg: fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at 0x%x: %v", e.Msg, e.Off, e.Err)
	}
	return fmt.Sprintf("%s at 0x%x", e.Msg, e.Off)
}

// Copyright 2026 The rpak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package rpak

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/bpowers/rpak/asset"
	"github.com/bpowers/rpak/bpk"
	"github.com/bpowers/rpak/pakfile"
	"github.com/bpowers/rpak/patch"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrNoLoader        = errors.New("no container loader registered")
)

// ErrorKind classifies a load failure.
type ErrorKind uint8

const (
	KindMalformed ErrorKind = iota + 1
	KindIO
	KindCorrupt
	KindUnsupported
	KindDuplicate
	KindPatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindIO:
		return "i/o"
	case KindCorrupt:
		return "corrupt"
	case KindUnsupported:
		return "unsupported"
	case KindDuplicate:
		return "duplicate"
	case KindPatch:
		return "patch"
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// FileError is a failure to load one file of a batch.
type FileError struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func newFileError(path string, err error) *FileError {
	return &FileError{Path: path, Kind: classify(err), Err: err}
}

// classify maps the package sentinels onto an ErrorKind. Patch failures are
// checked first since a missing base revision also wraps an i/o error.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, pakfile.ErrBaseRevision),
		errors.Is(err, pakfile.ErrNotPatchMaster),
		errors.Is(err, patch.ErrTruncatedPatch),
		errors.Is(err, patch.ErrTrailingLiteral),
		errors.Is(err, patch.ErrUnknownCommand),
		errors.Is(err, patch.ErrOverflow),
		errors.Is(err, patch.ErrSourceExhausted):
		return KindPatch
	case errors.Is(err, asset.ErrDuplicateGUID):
		return KindDuplicate
	case errors.Is(err, ErrUnsupportedFile),
		errors.Is(err, ErrNoLoader),
		errors.Is(err, pakfile.ErrUnsupportedVersion),
		errors.Is(err, bpk.ErrUnsupportedVersion):
		return KindUnsupported
	case errors.Is(err, pakfile.ErrChecksum),
		errors.Is(err, pakfile.ErrCorruptPointer),
		errors.Is(err, bpk.ErrCorrupt):
		return KindCorrupt
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindIO
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return KindIO
	}
	return KindMalformed
}

// LoadReport summarizes one Load call. A failed file never stops the batch.
type LoadReport struct {
	// Loaded lists the files whose assets were registered, after patch
	// revision substitution.
	Loaded []string
	// Skipped lists paks whose CRC matched an already loaded pak.
	Skipped []string
	Errors  []*FileError
	// Assets is the number of assets registered by this call.
	Assets int
}

// Err joins every file error, or returns nil if the batch loaded cleanly.
func (r *LoadReport) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

func (r *LoadReport) fail(path string, err error) {
	r.Errors = append(r.Errors, newFileError(path, err))
}

// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package image owns the memory-mapped lifecycle of the firmware/kernel
// image being signed: open for read-only inspection or read-write signing,
// and commit-or-discard semantics so a failed sign never leaves a partial
// write on disk (spec.md §4.9, C10).
//
// Mapping uses github.com/edsrzf/mmap-go the way the bootimg packer in the
// reference corpus maps a boot image (mmap.Map(file, flags, 0) then treat
// the returned mmap.MMap as a plain []byte); an io.ReadWriteSeeker view
// over the same bytes is produced with github.com/xaionaro-go/bytesextra
// for callers that want a standard streaming interface instead of a slice
// (the pattern fiano's FIT table reader uses: bytesextra.NewReadWriteSeeker).
package image

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"github.com/xaionaro-go/bytesextra"

	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// Mode selects how Open maps the backing file.
type Mode int

const (
	// ReadOnly maps the file for inspection; Close never writes back.
	ReadOnly Mode = iota
	// ReadWrite maps the file for in-place signing; Close's outcome decides
	// whether the mapping is flushed or discarded.
	ReadWrite
)

// Image is a mapped firmware/kernel file. Buf is the live backing array:
// handlers write directly into slices of it.
type Image struct {
	file *os.File
	mm   mmap.MMap
	mode Mode
}

// Open maps path according to mode.
func Open(path string, mode Mode) (*Image, error) {
	flag := os.O_RDONLY
	mmapMode := mmap.RDONLY
	if mode == ReadWrite {
		flag = os.O_RDWR
		mmapMode = mmap.RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, &verr.ErrIO{Op: "open " + path, Err: err}
	}
	mm, err := mmap.Map(f, mmapMode, 0)
	if err != nil {
		f.Close()
		return nil, &verr.ErrIO{Op: "mmap " + path, Err: err}
	}
	return &Image{file: f, mm: mm, mode: mode}, nil
}

// Buf returns the live backing array. Mutating it mutates the mapping.
func (im *Image) Buf() []byte {
	return im.mm
}

// Len returns the mapped length.
func (im *Image) Len() int {
	return len(im.mm)
}

// ReadWriteSeeker wraps Buf as a standard io.ReadWriteSeeker for callers
// that prefer stream-shaped access (e.g. re-using a parser written against
// io.ReaderAt/io.WriteSeeker rather than raw slices).
func (im *Image) ReadWriteSeeker() io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(im.mm)
}

// CloseSuccess flushes a read-write mapping to disk, or is a no-op for a
// read-only mapping, then unmaps and closes the descriptor.
func (im *Image) CloseSuccess() error {
	var flushErr error
	if im.mode == ReadWrite {
		flushErr = im.mm.Flush()
	}
	unmapErr := im.mm.Unmap()
	closeErr := im.file.Close()
	if flushErr != nil {
		return &verr.ErrIO{Op: "flush", Err: flushErr}
	}
	if unmapErr != nil {
		return &verr.ErrIO{Op: "unmap", Err: unmapErr}
	}
	if closeErr != nil {
		return &verr.ErrIO{Op: "close", Err: closeErr}
	}
	return nil
}

// CloseError discards any in-memory mutations to a read-write mapping by
// unmapping without flushing, so nothing reaches disk (spec.md §4.9
// "close_error discards").
func (im *Image) CloseError() error {
	if err := im.mm.Unmap(); err != nil {
		return &verr.ErrIO{Op: "unmap", Err: err}
	}
	return im.file.Close()
}

// CopyThenRename implements the alternate atomicity strategy for in-place
// signing (spec.md §9 "a copy-then-rename strategy is acceptable"): write
// buf to a temp file beside dst, then rename over dst only if write
// succeeds, so a crash mid-write never corrupts the original.
func CopyThenRename(dst string, buf []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".vbootsign-*")
	if err != nil {
		return &verr.ErrIO{Op: "create temp for " + dst, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &verr.ErrIO{Op: "write temp for " + dst, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &verr.ErrIO{Op: "close temp for " + dst, Err: err}
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return &verr.ErrIO{Op: fmt.Sprintf("rename %s to %s", tmpPath, dst), Err: err}
	}
	return nil
}

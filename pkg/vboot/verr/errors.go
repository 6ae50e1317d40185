// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package verr holds the typed error taxonomy of the signing engine
// (spec.md §7). Each type maps to one exit-message category, not to a
// distinct process exit code: the CLI reports every accumulated error and
// exits non-zero if any of them is present.
package verr

import "fmt"

// ErrBadArgs means a flag combination was missing or conflicting, caught
// during CLI parsing before any I/O happened.
type ErrBadArgs struct {
	Msg string
}

func (e *ErrBadArgs) Error() string { return "bad args: " + e.Msg }

// ErrBadKey means a key file was unreadable or malformed.
type ErrBadKey struct {
	Path string
	Err  error
}

func (e *ErrBadKey) Error() string { return fmt.Sprintf("bad key %q: %v", e.Path, e.Err) }
func (e *ErrBadKey) Unwrap() error { return e.Err }

// ErrAlgoMismatch means the algorithm declared by a wrapping structure
// disagrees with the algorithm of the key material supplied to sign or
// verify it.
type ErrAlgoMismatch struct {
	Declared, Got fmt.Stringer
}

func (e *ErrAlgoMismatch) Error() string {
	return fmt.Sprintf("algorithm mismatch: declared %s, got %s", e.Declared, e.Got)
}

// ErrBadSignature means a signature failed to verify.
type ErrBadSignature struct {
	Context string
}

func (e *ErrBadSignature) Error() string { return "signature verification failed: " + e.Context }

// ErrLayoutIncomplete means not all four BIOS regions (FW_MAIN_A/B,
// VBLOCK_A/B) were found valid after the FMAP walk.
type ErrLayoutIncomplete struct {
	Missing []string
}

func (e *ErrLayoutIncomplete) Error() string {
	return fmt.Sprintf("incomplete FMAP layout, missing: %v", e.Missing)
}

// ErrRegionOverrun means an area's offset plus length runs past the end of
// the buffer that holds it.
type ErrRegionOverrun struct {
	Area           string
	Offset, Length uint32
	ImageLen       int
}

func (e *ErrRegionOverrun) Error() string {
	return fmt.Sprintf("region %q at offset %#x length %#x overruns image of length %#x",
		e.Area, e.Offset, e.Length, e.ImageLen)
}

// ErrFmapNotFound means no FMAP signature was found in the image.
type ErrFmapNotFound struct{}

func (e *ErrFmapNotFound) Error() string { return "no FMAP signature found in image" }

// ErrDevKeysRequired means FW_MAIN_A and FW_MAIN_B diverge and no developer
// signing identity was supplied.
type ErrDevKeysRequired struct{}

func (e *ErrDevKeysRequired) Error() string {
	return "FW_MAIN_A and FW_MAIN_B differ and no developer key was supplied"
}

// ErrGBBFull means a key or string is too large for its reserved GBB
// sub-region.
type ErrGBBFull struct {
	Field          string
	Have, Capacity int
}

func (e *ErrGBBFull) Error() string {
	return fmt.Sprintf("GBB field %q needs %d bytes, only %d available", e.Field, e.Have, e.Capacity)
}

// ErrUnsupportedField means the field doesn't exist in this GBB's version;
// callers downgrade this to a warning rather than treating it as fatal.
type ErrUnsupportedField struct {
	Field string
}

func (e *ErrUnsupportedField) Error() string {
	return fmt.Sprintf("GBB field %q not present in this GBB version", e.Field)
}

// ErrOverlappingRegions means two sub-regions of a parsed structure claim
// the same bytes.
type ErrOverlappingRegions struct {
	Context string
	A, B    string
}

func (e *ErrOverlappingRegions) Error() string {
	return fmt.Sprintf("%s: sub-regions %q and %q overlap", e.Context, e.A, e.B)
}

// ErrExternalSignerFailed means the external signer subprocess exited
// non-zero or returned data that doesn't look like a signature.
type ErrExternalSignerFailed struct {
	Program string
	Err     error
}

func (e *ErrExternalSignerFailed) Error() string {
	return fmt.Sprintf("external signer %q failed: %v", e.Program, e.Err)
}
func (e *ErrExternalSignerFailed) Unwrap() error { return e.Err }

// ErrIO wraps a mapping, read, write, or rename failure.
type ErrIO struct {
	Op  string
	Err error
}

func (e *ErrIO) Error() string { return fmt.Sprintf("io error during %s: %v", e.Op, e.Err) }
func (e *ErrIO) Unwrap() error { return e.Err }

// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gbb reads and edits the Google Binary Block: the FMAP region that
// carries a board's HWID string, root and recovery public keys, a bitmap
// blob, and a flag word (spec.md §4.5, C5).
//
// The header is packed the same way pkg/fmap unpacks its own header: fixed
// fields read in declared order with encoding/binary, offsets and sizes
// pointing at sub-ranges of the same backing buffer rather than copies.
// Sub-region bookkeeping reuses pkg/bytes the way fiano's own boot-policy
// manifest code does (bootpolicy.Manifest.IBBDataRanges): Range.Intersect
// catches a header claiming overlapping sub-regions, and IsZeroFilled
// recognizes a legacy GBB whose flags fields were never populated. A GBB
// whose flags fields are set but do not describe a usable 4-byte sub-region
// gets the same answer: no flags.
package gbb

import (
	"bytes"
	"encoding/binary"

	vbytes "github.com/linuxboot/vbootsign/pkg/bytes"
	"github.com/linuxboot/vbootsign/pkg/vboot/algo"
	"github.com/linuxboot/vbootsign/pkg/vboot/key"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// Magic identifies the start of a GBB region.
var Magic = [4]byte{'$', 'G', 'B', 'B'}

// header mirrors the on-disk GBB header. FlagsOffset/FlagsSize are zero in
// GBBs predating the flags field (spec.md §4.5 "older GBBs that lack a
// flags field").
type header struct {
	Magic             [4]byte
	MajorVersion      uint16
	MinorVersion      uint16
	HeaderSize        uint32
	_                 [4]byte // alignment
	HWIDOffset        uint32
	HWIDSize          uint32
	RootKeyOffset     uint32
	RootKeySize       uint32
	BmpfvOffset       uint32
	BmpfvSize         uint32
	RecoveryKeyOffset uint32
	RecoveryKeySize   uint32
	FlagsOffset       uint32
	FlagsSize         uint32
}

const headerSize = 4 + 2 + 2 + 4 + 4 + 4*10

// GBB is a view over a region's backing bytes. Mutations write directly
// through buf; the caller owns buf's lifetime (normally an mmap'd slice
// handed out by the image package).
type GBB struct {
	buf    []byte
	h      header
	rootID algo.ID
	recID  algo.ID
}

// Open parses buf's header in place. rootID and recID are supplied by the
// caller because the GBB wire format does not itself carry an algorithm ID
// for stored keys, only raw modulus bytes sized by the key's own region.
func Open(buf []byte, rootID, recID algo.ID) (*GBB, error) {
	if len(buf) < headerSize {
		return nil, &verr.ErrRegionOverrun{Area: "GBB", Offset: 0, Length: headerSize, ImageLen: len(buf)}
	}
	var h header
	if err := binary.Read(bytes.NewReader(buf[:headerSize]), binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if h.Magic != Magic {
		return nil, &verr.ErrBadSignature{Context: "bad GBB magic"}
	}
	g := &GBB{buf: buf, h: h, rootID: rootID, recID: recID}
	subRegions := []struct {
		name      string
		off, size uint32
	}{
		{"hwid", h.HWIDOffset, h.HWIDSize},
		{"rootkey", h.RootKeyOffset, h.RootKeySize},
		{"bmpfv", h.BmpfvOffset, h.BmpfvSize},
		{"recoverykey", h.RecoveryKeyOffset, h.RecoveryKeySize},
	}
	if g.hasFlags() {
		subRegions = append(subRegions, struct {
			name      string
			off, size uint32
		}{"flags", h.FlagsOffset, 4})
	}
	for _, want := range subRegions {
		if uint64(want.off)+uint64(want.size) > uint64(len(buf)) {
			return nil, &verr.ErrRegionOverrun{Area: "GBB", Offset: want.off, Length: want.size, ImageLen: len(buf)}
		}
	}
	if err := checkNoOverlap(subRegions); err != nil {
		return nil, err
	}
	return g, nil
}

// checkNoOverlap reports the first pair of sub-regions that claim the same
// bytes, using the same Range.Intersect fiano itself uses to report the set
// of byte ranges a boot-policy manifest's IBB segments cover.
func checkNoOverlap(subRegions []struct {
	name      string
	off, size uint32
}) error {
	for i, a := range subRegions {
		ra := vbytes.Range{Offset: uint64(a.off), Length: uint64(a.size)}
		for _, b := range subRegions[i+1:] {
			rb := vbytes.Range{Offset: uint64(b.off), Length: uint64(b.size)}
			if ra.Intersect(rb) {
				return &verr.ErrOverlappingRegions{Context: "GBB", A: a.name, B: b.name}
			}
		}
	}
	return nil
}

// hasFlags reports whether this GBB version carries a flags sub-region.
// The flags fields in legacy GBBs are left zero-filled rather than
// populated with a real offset/size, so a raw zero-fill check on the
// header's trailing eight bytes is the ground truth, not FlagsSize alone.
func (g *GBB) hasFlags() bool {
	raw := g.buf[headerSize-8 : headerSize]
	if vbytes.IsZeroFilled(raw) {
		return false
	}
	return g.h.FlagsSize >= 4 && uint64(g.h.FlagsOffset)+4 <= uint64(len(g.buf))
}

// GetHWID returns the NUL-terminated HWID string.
func (g *GBB) GetHWID() string {
	region := g.buf[g.h.HWIDOffset : g.h.HWIDOffset+g.h.HWIDSize]
	if i := bytes.IndexByte(region, 0); i >= 0 {
		region = region[:i]
	}
	return string(region)
}

// SetHWID rewrites the HWID in place, NUL-padding to the slot size. Fails
// if s (plus its terminator) would not fit.
func (g *GBB) SetHWID(s string) error {
	region := g.buf[g.h.HWIDOffset : g.h.HWIDOffset+g.h.HWIDSize]
	if uint32(len(s))+1 > g.h.HWIDSize {
		return &verr.ErrGBBFull{Field: "hwid", Have: len(s) + 1, Capacity: int(g.h.HWIDSize)}
	}
	for i := range region {
		region[i] = 0
	}
	copy(region, s)
	return nil
}

// GetFlags returns the flag word, or UnsupportedField on a legacy GBB.
func (g *GBB) GetFlags() (uint32, error) {
	if !g.hasFlags() {
		return 0, &verr.ErrUnsupportedField{Field: "flags"}
	}
	return binary.LittleEndian.Uint32(g.buf[g.h.FlagsOffset : g.h.FlagsOffset+4]), nil
}

// SetFlags writes the flag word, or returns UnsupportedField on a legacy
// GBB; callers are expected to downgrade that to a warning (spec.md §4.5).
func (g *GBB) SetFlags(flags uint32) error {
	if !g.hasFlags() {
		return &verr.ErrUnsupportedField{Field: "flags"}
	}
	binary.LittleEndian.PutUint32(g.buf[g.h.FlagsOffset:g.h.FlagsOffset+4], flags)
	return nil
}

// GetRootKey unmarshals the stored root public key.
func (g *GBB) GetRootKey() (*key.PublicKey, error) {
	return g.readKey(g.h.RootKeyOffset, g.h.RootKeySize, g.rootID)
}

// GetRecoveryKey unmarshals the stored recovery public key.
func (g *GBB) GetRecoveryKey() (*key.PublicKey, error) {
	return g.readKey(g.h.RecoveryKeyOffset, g.h.RecoveryKeySize, g.recID)
}

func (g *GBB) readKey(offset, size uint32, id algo.ID) (*key.PublicKey, error) {
	d, err := id.Descriptor()
	if err != nil {
		return nil, err
	}
	modBytes := d.KeyBits / 8
	if int(size) < modBytes {
		return nil, &verr.ErrGBBFull{Field: "key", Have: modBytes, Capacity: int(size)}
	}
	return key.UnmarshalPublicKey(id, g.buf[offset:offset+uint32(modBytes)])
}

// SetRootKey writes pub into the root-key sub-region, zero-padding any
// trailing reserved space.
func (g *GBB) SetRootKey(pub *key.PublicKey) error {
	return g.writeKey(g.h.RootKeyOffset, g.h.RootKeySize, pub)
}

// SetRecoveryKey writes pub into the recovery-key sub-region.
func (g *GBB) SetRecoveryKey(pub *key.PublicKey) error {
	return g.writeKey(g.h.RecoveryKeyOffset, g.h.RecoveryKeySize, pub)
}

func (g *GBB) writeKey(offset, size uint32, pub *key.PublicKey) error {
	packed, err := pub.Marshal()
	if err != nil {
		return err
	}
	if uint32(len(packed)) > size {
		return &verr.ErrGBBFull{Field: "key", Have: len(packed), Capacity: int(size)}
	}
	region := g.buf[offset : offset+size]
	for i := range region {
		region[i] = 0
	}
	copy(region, packed)
	return nil
}

// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package biossign orchestrates signing a BIOS image's A/B firmware slots:
// it walks the FMAP, detects A/B divergence, picks the developer or normal
// signing identity per slot, writes fresh VBLOCK_A/B bytes in place, and
// applies the ancillary GBB edits (root/recovery key, HWID, flags) the same
// sign operation carries (spec.md §1, §4.6, C6; GBB per §4.5, C5).
package biossign

import (
	"bytes"
	"fmt"

	"github.com/linuxboot/vbootsign/pkg/fmap"
	"github.com/linuxboot/vbootsign/pkg/vboot/gbb"
	"github.com/linuxboot/vbootsign/pkg/vboot/key"
	"github.com/linuxboot/vbootsign/pkg/vboot/keyblock"
	"github.com/linuxboot/vbootsign/pkg/vboot/preamble"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// slotState is the per-BIOS-slot progress record (spec.md §4.9 state
// machine): Unseen -> RegionFound -> PreambleParsed -> BodySized -> Signed.
type slotState int

const (
	Unseen slotState = iota
	RegionFound
	PreambleParsed
	BodySized
	Signed
)

// Identity is a signing identity: the pre-built keyblock bytes to emit
// verbatim, and the signer that produces the body/preamble signature over
// the matching data key.
type Identity struct {
	KeyblockBytes []byte
	DataKeySigner key.Signer
}

// Keys bundles the identities and kernel subkey needed to sign both slots,
// plus the ancillary GBB public keys (spec.md §1: "whose GBB metadata
// carries the new root and recovery public keys"). GBBRootPub/GBBRecoveryPub
// are nil when the caller did not ask to update them. Dev is nil when no
// developer identity was supplied on the CLI.
type Keys struct {
	Normal          Identity
	Dev             *Identity
	KernelSubkeyPub *key.PublicKey
	GBBRootPub      *key.PublicKey
	GBBRecoveryPub  *key.PublicKey
}

// Options carries the caller-supplied version and an optional flags
// override; Flags == nil means "preserve the existing preamble's flags
// when one parses, else zero" (spec.md §4.6 step 2, §8 property 5). HWID
// and GBBFlags are the GBB-editor inputs (spec.md §4.5, C5); nil means
// leave the corresponding GBB field untouched.
type Options struct {
	Version  uint32
	Flags    *uint32
	HWID     *string
	GBBFlags *uint32
}

// Result reports outcomes that do not fail the operation.
type Result struct {
	Warnings []string
}

type slot struct {
	name       string // "A" or "B"
	fwArea     string
	vblockArea string
	fwOffset   uint32
	fwBuf      []byte // the full clamped FW_MAIN_* slice
	vblockBuf  []byte
	bodyLen    uint32
	flags      uint32
	state      slotState
}

// Sign locates FW_MAIN_A/B and VBLOCK_A/B via the embedded FMAP, resolves
// A/B divergence, and writes new keyblock||preamble bytes into each VBLOCK
// region of buf in place.
func Sign(buf []byte, keys Keys, opt Options) (*Result, error) {
	fm, _, err := fmap.Read(bytes.NewReader(buf))
	if err != nil {
		return nil, &verr.ErrFmapNotFound{}
	}

	res := &Result{}
	slots := map[string]*slot{
		"A": {name: "A", fwArea: fmap.AreaFwMainA, vblockArea: fmap.AreaVBlockA},
		"B": {name: "B", fwArea: fmap.AreaFwMainB, vblockArea: fmap.AreaVBlockB},
	}

	var missing []string
	for _, s := range slots {
		fwOff, fwLen, ok := fm.FindAreaClamped(s.fwArea, len(buf))
		if !ok {
			missing = append(missing, s.fwArea)
			continue
		}
		vbOff, vbLen, ok := fm.FindAreaClamped(s.vblockArea, len(buf))
		if !ok {
			missing = append(missing, s.vblockArea)
			continue
		}
		s.fwOffset = fwOff
		s.fwBuf = buf[fwOff : fwOff+fwLen]
		s.vblockBuf = buf[vbOff : vbOff+vbLen]
		s.state = RegionFound
	}
	if len(missing) > 0 {
		return nil, &verr.ErrLayoutIncomplete{Missing: missing}
	}

	for _, s := range slots {
		bodyLen, flags, warn := shrinkFromExistingVBlock(s.vblockBuf, uint32(len(s.fwBuf)), opt.Flags)
		s.bodyLen = bodyLen
		s.flags = flags
		if warn != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("slot %s: %s", s.name, warn))
			s.state = BodySized
		} else {
			s.state = PreambleParsed
		}
	}

	a, b := slots["A"], slots["B"]
	diverged := !bytes.Equal(a.fwBuf[:a.bodyLen], b.fwBuf[:b.bodyLen])
	if diverged && keys.Dev == nil {
		return nil, &verr.ErrDevKeysRequired{}
	}

	aIdentity := keys.Normal
	if diverged {
		aIdentity = *keys.Dev
	}
	bIdentity := keys.Normal

	if err := signSlot(a, aIdentity, keys.KernelSubkeyPub, opt.Version); err != nil {
		return nil, err
	}
	if err := signSlot(b, bIdentity, keys.KernelSubkeyPub, opt.Version); err != nil {
		return nil, err
	}

	if err := editGBB(fm, buf, keys, opt, res); err != nil {
		return nil, err
	}

	return res, nil
}

// editGBB applies the ancillary GBB edits (spec.md §1, §4.5, C5) when the
// image carries a GBB area. GBB is not one of the four regions step 3
// requires to be present; an image without one is simply left untouched.
func editGBB(fm *fmap.FMap, buf []byte, keys Keys, opt Options, res *Result) error {
	off, length, ok := fm.FindAreaClamped(fmap.AreaGBB, len(buf))
	if !ok {
		return nil
	}

	rootID := keys.Normal.DataKeySigner.Algo()
	if keys.GBBRootPub != nil {
		rootID = keys.GBBRootPub.Algo
	}
	recID := rootID
	if keys.GBBRecoveryPub != nil {
		recID = keys.GBBRecoveryPub.Algo
	}

	g, err := gbb.Open(buf[off:off+length], rootID, recID)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("GBB: %v, skipping ancillary edits", err))
		return nil
	}

	if keys.GBBRootPub != nil {
		if err := g.SetRootKey(keys.GBBRootPub); err != nil {
			return err
		}
	}
	if keys.GBBRecoveryPub != nil {
		if err := g.SetRecoveryKey(keys.GBBRecoveryPub); err != nil {
			return err
		}
	}
	if opt.HWID != nil {
		if err := g.SetHWID(*opt.HWID); err != nil {
			return err
		}
	}
	if opt.GBBFlags != nil {
		if err := g.SetFlags(*opt.GBBFlags); err != nil {
			if _, unsupported := err.(*verr.ErrUnsupportedField); unsupported {
				res.Warnings = append(res.Warnings, fmt.Sprintf("GBB: %v", err))
			} else {
				return err
			}
		}
	}
	return nil
}

// shrinkFromExistingVBlock attempts to parse the existing keyblock and
// preamble out of an existing VBLOCK region. On success it returns the
// preamble's declared body length (a shrink from the full FW_MAIN region)
// and the flags to preserve when the caller didn't override them. On
// failure it returns the full region length and a non-empty warning
// (spec.md §4.6 step 2, §4.9 "failure semantics").
func shrinkFromExistingVBlock(vblockBuf []byte, fullFwLen uint32, overrideFlags *uint32) (bodyLen, flags uint32, warning string) {
	kb, err := keyblock.Verify(vblockBuf, nil)
	if err != nil {
		return fullFwLen, flagsOrZero(overrideFlags), fmt.Sprintf("unparseable existing keyblock (%v), using full region length", err)
	}
	kbTotalLen := len(kb.SignedRange) + len(kb.Signature.Data)
	if kbTotalLen > len(vblockBuf) {
		return fullFwLen, flagsOrZero(overrideFlags), "existing keyblock size exceeds vblock region, using full region length"
	}
	p, _, err := preamble.Parse(vblockBuf[kbTotalLen:])
	if err != nil {
		return fullFwLen, flagsOrZero(overrideFlags), fmt.Sprintf("unparseable existing preamble (%v), using full region length", err)
	}
	if overrideFlags != nil {
		flags = *overrideFlags
	} else {
		flags = p.Flags
	}
	if p.BodySignature.DataSize > fullFwLen {
		return fullFwLen, flags, "existing preamble body size exceeds FW_MAIN region, using full region length"
	}
	return p.BodySignature.DataSize, flags, ""
}

func flagsOrZero(f *uint32) uint32 {
	if f == nil {
		return 0
	}
	return *f
}

func signSlot(s *slot, id Identity, kernelSubkeyPub *key.PublicKey, version uint32) error {
	body := s.fwBuf[:s.bodyLen]
	bodySig, err := id.DataKeySigner.Sign(body)
	if err != nil {
		return err
	}
	preambleBytes, err := preamble.Make(version, kernelSubkeyPub, bodySig, s.flags, id.DataKeySigner)
	if err != nil {
		return err
	}
	out := append(append([]byte(nil), id.KeyblockBytes...), preambleBytes...)
	if len(out) > len(s.vblockBuf) {
		return &verr.ErrRegionOverrun{Area: s.vblockArea, Offset: 0, Length: uint32(len(out)), ImageLen: len(s.vblockBuf)}
	}
	copy(s.vblockBuf, out)
	s.state = Signed
	return nil
}

// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernelsign

import (
	"github.com/linuxboot/vbootsign/pkg/vboot/key"
	"github.com/linuxboot/vbootsign/pkg/vboot/keyblock"
	"github.com/linuxboot/vbootsign/pkg/vboot/preamble"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// CreateParams are the inputs to a fresh kernel partition (spec.md §4.7
// "Create from raw vmlinuz").
type CreateParams struct {
	Vmlinuz         []byte
	Arch            Arch
	BodyLoadAddr    uint32
	Cmdline         string
	Bootloader      []byte
	Padding         uint32
	KeyblockBytes   []byte
	DataKeySigner   key.Signer
	KernelSubkeyPub *key.PublicKey
	Version         uint32
	Flags           uint32
	VBlockOnly      bool
}

// CreateKernelPartition builds a blob from the raw inputs, signs it, and
// emits either the vblock alone or a padded vblock followed by the blob.
func CreateKernelPartition(p CreateParams) ([]byte, error) {
	blob := BuildBlob(BlobParams{
		Vmlinuz:      p.Vmlinuz,
		Bootloader:   p.Bootloader,
		Cmdline:      p.Cmdline,
		BodyLoadAddr: p.BodyLoadAddr,
		Arch:         p.Arch,
	})

	vblock, err := signVBlock(blob, p.KeyblockBytes, p.DataKeySigner, p.KernelSubkeyPub, p.Version, p.Flags)
	if err != nil {
		return nil, err
	}
	if p.VBlockOnly {
		return vblock, nil
	}
	return assemblePartition(vblock, blob, p.Padding)
}

// ResignParams are the inputs to resigning an existing kernel partition.
// Zero-valued optional fields inherit from the existing preamble (spec.md
// §4.7 "unspecified attributes inherit from the existing preamble").
type ResignParams struct {
	Padding         uint32
	NewKeyblock     []byte // nil keeps the existing keyblock bytes
	Cmdline         *string
	DataKeySigner   key.Signer
	KernelSubkeyPub *key.PublicKey // nil keeps the existing preamble's subkey
	Version         *uint32
	Flags           *uint32
	// LoadAddr is intentionally absent: body-load-address is never taken
	// from the caller on resign (spec.md §9 preserved bug).
}

// ResignKernelPartition parses an existing partition, rebuilds its blob
// (preserving BodyLoadAddr, kernel image, and bootloader unconditionally),
// and re-signs it.
func ResignKernelPartition(existing []byte, p ResignParams) ([]byte, error) {
	if uint32(len(existing)) < p.Padding {
		return nil, &verr.ErrRegionOverrun{Area: "kernel partition", Offset: 0, Length: p.Padding, ImageLen: len(existing)}
	}
	vblockBuf := existing[:p.Padding]
	blobBuf := existing[p.Padding:]

	kb, err := keyblock.Verify(vblockBuf, nil)
	if err != nil {
		return nil, err
	}
	kbLen := len(kb.SignedRange) + len(kb.Signature.Data)
	if kbLen > len(vblockBuf) {
		return nil, &verr.ErrBadSignature{Context: "existing kernel keyblock exceeds vblock region"}
	}

	oldPreamble, _, err := preamble.Parse(vblockBuf[kbLen:])
	if err != nil {
		return nil, err
	}

	oldBlob, err := ParseBlob(blobBuf)
	if err != nil {
		return nil, err
	}

	cmdline := oldBlob.Cmdline
	if p.Cmdline != nil {
		cmdline = *p.Cmdline
	}

	newBlob := BuildBlob(BlobParams{
		Vmlinuz:      oldBlob.Kernel,
		Bootloader:   oldBlob.Bootloader,
		Cmdline:      cmdline,
		BodyLoadAddr: oldBlob.BodyLoadAddr, // never overridden on resign
	})

	keyblockBytes := vblockBuf[:kbLen]
	if p.NewKeyblock != nil {
		keyblockBytes = p.NewKeyblock
	}
	version := oldPreamble.FirmwareVersion
	if p.Version != nil {
		version = *p.Version
	}
	flags := oldPreamble.Flags
	if p.Flags != nil {
		flags = *p.Flags
	}
	kernelSubkeyPub := oldPreamble.KernelSubkey
	if p.KernelSubkeyPub != nil {
		kernelSubkeyPub = p.KernelSubkeyPub
	}

	vblock, err := signVBlock(newBlob, keyblockBytes, p.DataKeySigner, kernelSubkeyPub, version, flags)
	if err != nil {
		return nil, err
	}
	return assemblePartition(vblock, newBlob, p.Padding)
}

func signVBlock(blob, keyblockBytes []byte, signer key.Signer, kernelSubkeyPub *key.PublicKey, version, flags uint32) ([]byte, error) {
	bodySig, err := signer.Sign(blob)
	if err != nil {
		return nil, err
	}
	preambleBytes, err := preamble.Make(version, kernelSubkeyPub, bodySig, flags, signer)
	if err != nil {
		return nil, err
	}
	return append(append([]byte(nil), keyblockBytes...), preambleBytes...), nil
}

func assemblePartition(vblock, blob []byte, padding uint32) ([]byte, error) {
	if uint32(len(vblock)) > padding {
		return nil, &verr.ErrRegionOverrun{Area: "kernel vblock", Offset: 0, Length: uint32(len(vblock)), ImageLen: int(padding)}
	}
	out := make([]byte, padding)
	copy(out, vblock)
	return append(out, blob...), nil
}

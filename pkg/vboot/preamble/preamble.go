// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package preamble builds and parses firmware/kernel preambles: version,
// kernel subkey, body signature, flags, and a trailing signature by the
// firmware/kernel data key (spec.md §4.3, C3).
package preamble

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/linuxboot/vbootsign/pkg/vboot/algo"
	"github.com/linuxboot/vbootsign/pkg/vboot/key"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// header is the fixed-width prefix of a marshaled preamble.
type header struct {
	PreambleSize     uint32
	FirmwareVersion  uint32
	KernelSubkeyAlgo uint8
	_                [3]byte
	KernelSubkeyLen  uint32
	BodySigAlgo      uint8
	_                [3]byte
	BodySigDataSize  uint32
	BodySigLen       uint32
	Flags            uint32
	DataKeySigAlgo   uint8
	_                [3]byte
	DataKeySigLen    uint32
}

const headerSize = 4 + 4 + 1 + 3 + 4 + 1 + 3 + 4 + 4 + 4 + 1 + 3 + 4

// Preamble is the parsed form of a verified preamble.
type Preamble struct {
	FirmwareVersion uint32
	KernelSubkey    *key.PublicKey
	BodySignature   *key.Signature
	Flags           uint32
	DataKeySig      *key.Signature
}

// Make assembles the header, copies kernelSubkeyPub, appends bodySig, and
// signs the whole foregoing with dataKeySigner (spec.md §4.3).
func Make(version uint32, kernelSubkeyPub *key.PublicKey, bodySig *key.Signature, flags uint32, dataKeySigner key.Signer) ([]byte, error) {
	subkeyBytes, err := kernelSubkeyPub.Marshal()
	if err != nil {
		return nil, err
	}
	dataKeyPub, err := dataKeySigner.Public()
	if err != nil {
		return nil, err
	}
	dataKeyDescriptor, err := dataKeyPub.Algo.Descriptor()
	if err != nil {
		return nil, err
	}

	h := header{
		FirmwareVersion:  version,
		KernelSubkeyAlgo: uint8(kernelSubkeyPub.Algo),
		KernelSubkeyLen:  uint32(len(subkeyBytes)),
		BodySigAlgo:      uint8(bodySig.Algo),
		BodySigDataSize:  bodySig.DataSize,
		BodySigLen:       uint32(len(bodySig.Data)),
		Flags:            flags,
		DataKeySigAlgo:   uint8(dataKeyPub.Algo),
		DataKeySigLen:    uint32(dataKeyDescriptor.KeyBits / 8),
	}
	h.PreambleSize = uint32(headerSize) + h.KernelSubkeyLen + h.BodySigLen + h.DataKeySigLen

	signedRange := new(bytes.Buffer)
	if err := binary.Write(signedRange, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	signedRange.Write(subkeyBytes)
	signedRange.Write(bodySig.Data)

	sig, err := dataKeySigner.Sign(signedRange.Bytes())
	if err != nil {
		return nil, err
	}

	out := new(bytes.Buffer)
	out.Write(signedRange.Bytes())
	out.Write(sig.Data)
	return out.Bytes(), nil
}

// Parse decodes raw into a Preamble without verifying the trailing
// signature; callers that have a trusted data key should call Verify too.
func Parse(raw []byte) (*Preamble, []byte, error) {
	if len(raw) < headerSize {
		return nil, nil, fmt.Errorf("preamble: shorter than header (%d < %d)", len(raw), headerSize)
	}
	var h header
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), binary.LittleEndian, &h); err != nil {
		return nil, nil, err
	}

	subkeyID := algo.ID(h.KernelSubkeyAlgo)
	if _, err := subkeyID.Descriptor(); err != nil {
		return nil, nil, fmt.Errorf("preamble: bad kernel subkey algorithm: %w", err)
	}
	bodySigID := algo.ID(h.BodySigAlgo)
	if _, err := bodySigID.Descriptor(); err != nil {
		return nil, nil, fmt.Errorf("preamble: bad body signature algorithm: %w", err)
	}
	dataKeySigID := algo.ID(h.DataKeySigAlgo)
	if _, err := dataKeySigID.Descriptor(); err != nil {
		return nil, nil, fmt.Errorf("preamble: bad data key signature algorithm: %w", err)
	}

	want := uint64(headerSize) + uint64(h.KernelSubkeyLen) + uint64(h.BodySigLen) + uint64(h.DataKeySigLen)
	if uint64(len(raw)) < want {
		return nil, nil, &verr.ErrRegionOverrun{Area: "preamble", Offset: 0, Length: uint32(want), ImageLen: len(raw)}
	}

	off := headerSize
	subkeyBytes := raw[off : off+int(h.KernelSubkeyLen)]
	off += int(h.KernelSubkeyLen)
	bodySigBytes := raw[off : off+int(h.BodySigLen)]
	off += int(h.BodySigLen)
	signedEnd := off
	dataKeySigBytes := raw[off : off+int(h.DataKeySigLen)]

	subkey, err := key.UnmarshalPublicKey(subkeyID, subkeyBytes)
	if err != nil {
		return nil, nil, err
	}

	p := &Preamble{
		FirmwareVersion: h.FirmwareVersion,
		KernelSubkey:    subkey,
		BodySignature:   &key.Signature{Algo: bodySigID, DataSize: h.BodySigDataSize, Data: bodySigBytes},
		Flags:           h.Flags,
		DataKeySig:      &key.Signature{Algo: dataKeySigID, DataSize: uint32(signedEnd), Data: dataKeySigBytes},
	}
	return p, raw[:signedEnd], nil
}

// Verify parses raw and checks its trailing signature against dataKeyPub.
func Verify(raw []byte, dataKeyPub *key.PublicKey) (*Preamble, error) {
	p, signedRange, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := key.Verify(dataKeyPub, p.DataKeySig, signedRange); err != nil {
		return nil, err
	}
	return p, nil
}

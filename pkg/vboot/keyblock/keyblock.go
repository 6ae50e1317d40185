// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package keyblock builds and verifies keyblocks: a public data key and a
// flag word, wrapped and signed by a root private key (spec.md §4.2, C2).
//
// The layout is packed by hand with encoding/binary the way fiano packs
// fmap.FMap (pkg/fmap/fmap.go Read/Write: fixed header fields read in
// order, followed by a variable-length tail) rather than via a single
// binary.Write of a struct, because the data key and signature are both
// variable-length.
package keyblock

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/linuxboot/vbootsign/pkg/vboot/algo"
	"github.com/linuxboot/vbootsign/pkg/vboot/key"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// Magic identifies the start of a keyblock.
var Magic = [4]byte{'V', 'B', 'K', '1'}

// header is the fixed-width prefix of a marshaled keyblock.
type header struct {
	Magic         [4]byte
	KeyBlockSize  uint32
	Flags         uint32
	DataKeyAlgo   uint8
	_             [3]byte // alignment
	DataKeyLen    uint32
	SignatureAlgo uint8
	_             [3]byte // alignment
	SignatureLen  uint32
}

const headerSize = 4 + 4 + 4 + 1 + 3 + 4 + 1 + 3 + 4

// Keyblock is the parsed form of a verified keyblock.
type Keyblock struct {
	Flags     uint32
	DataKey   *key.PublicKey
	Signature *key.Signature
	// SignedRange is the header+key byte range the Signature covers.
	SignedRange []byte
}

// Make packs dataKeyPub and flags, signs the header+key with signer, and
// returns a contiguous blob of size KeyBlockSize (spec.md §4.2).
func Make(dataKeyPub *key.PublicKey, signer key.Signer, flags uint32) ([]byte, error) {
	keyBytes, err := dataKeyPub.Marshal()
	if err != nil {
		return nil, err
	}

	rootPub, err := signer.Public()
	if err != nil {
		return nil, err
	}
	sigDescriptor, err := rootPub.Algo.Descriptor()
	if err != nil {
		return nil, err
	}

	h := header{
		Magic:         Magic,
		Flags:         flags,
		DataKeyAlgo:   uint8(dataKeyPub.Algo),
		DataKeyLen:    uint32(len(keyBytes)),
		SignatureAlgo: uint8(rootPub.Algo),
		SignatureLen:  uint32(sigDescriptor.KeyBits / 8),
	}
	h.KeyBlockSize = uint32(headerSize) + h.DataKeyLen + h.SignatureLen

	signedRange := new(bytes.Buffer)
	if err := binary.Write(signedRange, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	signedRange.Write(keyBytes)

	sig, err := signer.Sign(signedRange.Bytes())
	if err != nil {
		return nil, err
	}

	out := new(bytes.Buffer)
	out.Write(signedRange.Bytes())
	out.Write(sig.Data)
	return out.Bytes(), nil
}

// Verify bounds-checks every length field against the buffer, then, when
// trustedRoot is non-nil, verifies the trailing signature against it
// (spec.md §4.2). With a nil trustedRoot the signature is not checked.
func Verify(raw []byte, trustedRoot *key.PublicKey) (*Keyblock, error) {
	if len(raw) < headerSize {
		return nil, &verr.ErrBadSignature{Context: "keyblock shorter than header"}
	}
	var h header
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if h.Magic != Magic {
		return nil, &verr.ErrBadSignature{Context: "bad keyblock magic"}
	}

	dataKeyID := algo.ID(h.DataKeyAlgo)
	if _, err := dataKeyID.Descriptor(); err != nil {
		return nil, &verr.ErrBadKey{Path: "<keyblock>", Err: err}
	}
	sigID := algo.ID(h.SignatureAlgo)
	if _, err := sigID.Descriptor(); err != nil {
		return nil, &verr.ErrBadKey{Path: "<keyblock>", Err: err}
	}

	want := uint64(headerSize) + uint64(h.DataKeyLen) + uint64(h.SignatureLen)
	if uint64(h.KeyBlockSize) < want {
		return nil, &verr.ErrBadSignature{Context: fmt.Sprintf(
			"key_block_size %d smaller than header+key+signature %d", h.KeyBlockSize, want)}
	}
	if uint64(len(raw)) < want {
		return nil, &verr.ErrRegionOverrun{Area: "keyblock", Offset: 0, Length: uint32(want), ImageLen: len(raw)}
	}

	keyStart := headerSize
	keyEnd := keyStart + int(h.DataKeyLen)
	sigStart := keyEnd
	sigEnd := sigStart + int(h.SignatureLen)

	dataKey, err := key.UnmarshalPublicKey(dataKeyID, raw[keyStart:keyEnd])
	if err != nil {
		return nil, err
	}

	sig := &key.Signature{Algo: sigID, DataSize: uint32(keyEnd), Data: raw[sigStart:sigEnd]}
	if trustedRoot != nil {
		if err := key.Verify(trustedRoot, sig, raw[:keyEnd]); err != nil {
			return nil, err
		}
	}

	return &Keyblock{
		Flags:       h.Flags,
		DataKey:     dataKey,
		Signature:   sig,
		SignedRange: append([]byte(nil), raw[:keyEnd]...),
	}, nil
}

// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package algo enumerates the signing algorithm IDs used by keyblocks and
// preambles: each ID selects a hash function, an RSA modulus size, and a
// padding scheme. IDs are a contiguous range [0, NumAlgorithms).
package algo

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"

	"github.com/google/go-tpm/tpm2"
)

// ID identifies a (hash, modulus size, padding) triple.
type ID uint8

// The algorithm table, in the boot ROM's canonical order. Index == wire
// value. All entries use PKCS#1 v1.5 padding; the boot ROM's verified-boot
// v1 layout (spec.md §6) has never defined a PSS variant.
const (
	RSA1024SHA1 ID = iota
	RSA1024SHA256
	RSA1024SHA512
	RSA2048SHA1
	RSA2048SHA256
	RSA2048SHA512
	RSA4096SHA1
	RSA4096SHA256
	RSA4096SHA512
	RSA8192SHA1
	RSA8192SHA256
	RSA8192SHA512

	// NumAlgorithms is the count of valid algorithm IDs; valid IDs are
	// [0, NumAlgorithms).
	NumAlgorithms
)

// Descriptor is what an ID resolves to.
type Descriptor struct {
	Hash    crypto.Hash
	TPMHash tpm2.Algorithm
	KeyBits int
	Name    string
}

var table = [NumAlgorithms]Descriptor{
	RSA1024SHA1:   {crypto.SHA1, tpm2.AlgSHA1, 1024, "RSA1024SHA1"},
	RSA1024SHA256: {crypto.SHA256, tpm2.AlgSHA256, 1024, "RSA1024SHA256"},
	RSA1024SHA512: {crypto.SHA512, tpm2.AlgSHA512, 1024, "RSA1024SHA512"},
	RSA2048SHA1:   {crypto.SHA1, tpm2.AlgSHA1, 2048, "RSA2048SHA1"},
	RSA2048SHA256: {crypto.SHA256, tpm2.AlgSHA256, 2048, "RSA2048SHA256"},
	RSA2048SHA512: {crypto.SHA512, tpm2.AlgSHA512, 2048, "RSA2048SHA512"},
	RSA4096SHA1:   {crypto.SHA1, tpm2.AlgSHA1, 4096, "RSA4096SHA1"},
	RSA4096SHA256: {crypto.SHA256, tpm2.AlgSHA256, 4096, "RSA4096SHA256"},
	RSA4096SHA512: {crypto.SHA512, tpm2.AlgSHA512, 4096, "RSA4096SHA512"},
	RSA8192SHA1:   {crypto.SHA1, tpm2.AlgSHA1, 8192, "RSA8192SHA1"},
	RSA8192SHA256: {crypto.SHA256, tpm2.AlgSHA256, 8192, "RSA8192SHA256"},
	RSA8192SHA512: {crypto.SHA512, tpm2.AlgSHA512, 8192, "RSA8192SHA512"},
}

// Descriptor returns the (hash, modulus size) pair an ID resolves to, or an
// error if id is out of [0, NumAlgorithms).
func (id ID) Descriptor() (Descriptor, error) {
	if id >= NumAlgorithms {
		return Descriptor{}, fmt.Errorf("algo: id %d out of range [0, %d)", id, NumAlgorithms)
	}
	return table[id], nil
}

// String implements fmt.Stringer.
func (id ID) String() string {
	d, err := id.Descriptor()
	if err != nil {
		return fmt.Sprintf("algo?<%d>", uint8(id))
	}
	return d.Name
}

// ForKeyBits finds the first ID using the given hash and modulus size, for
// callers (e.g. PEM loading) that know those two facts but not the wire ID.
func ForKeyBits(hash crypto.Hash, keyBits int) (ID, error) {
	for i, d := range table {
		if d.Hash == hash && d.KeyBits == keyBits {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("algo: no algorithm ID for hash %s and %d-bit key", hash, keyBits)
}

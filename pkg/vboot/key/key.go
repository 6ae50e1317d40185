// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package key loads private and public signing keys and computes or
// verifies body signatures over arbitrary byte ranges (spec.md §4.1, C1).
//
// Public keys are packed the way fiano's own key-manifest code packs an
// RSA public key (pkg/intel/metadata/manifest/key.go: Key.SetPubKey /
// Key.PubKey) — a fixed-size big-endian modulus, exponent implied rather
// than carried, since every verified-boot v1 key uses the fixed public
// exponent 65537.
package key

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"

	"github.com/linuxboot/vbootsign/pkg/vboot/algo"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// PublicExponent is the RSA public exponent every verified-boot v1 key
// uses. It is never carried on the wire; only the modulus is.
const PublicExponent = 65537

// PublicKey is an algorithm-tagged RSA public key.
type PublicKey struct {
	Algo    algo.ID
	Modulus *big.Int
}

// RSA returns the standard library representation of k.
func (k *PublicKey) RSA() *rsa.PublicKey {
	return &rsa.PublicKey{N: k.Modulus, E: PublicExponent}
}

// Marshal packs k into its fixed-width wire form: the modulus, big-endian,
// zero-padded to the algorithm's key size.
func (k *PublicKey) Marshal() ([]byte, error) {
	d, err := k.Algo.Descriptor()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, d.KeyBits/8)
	k.Modulus.FillBytes(buf)
	return buf, nil
}

// UnmarshalPublicKey parses the fixed-width wire form produced by Marshal.
func UnmarshalPublicKey(id algo.ID, data []byte) (*PublicKey, error) {
	d, err := id.Descriptor()
	if err != nil {
		return nil, err
	}
	if len(data) != d.KeyBits/8 {
		return nil, fmt.Errorf("key: %s expects a %d-byte modulus, got %d", id, d.KeyBits/8, len(data))
	}
	return &PublicKey{Algo: id, Modulus: new(big.Int).SetBytes(data)}, nil
}

// FromRSA wraps an *rsa.PublicKey with the algorithm ID matching its hash
// and key size. Used when a signer's public half must be re-embedded into
// a keyblock or preamble.
func FromRSA(id algo.ID, pub *rsa.PublicKey) (*PublicKey, error) {
	if pub.E != PublicExponent {
		return nil, fmt.Errorf("key: unsupported public exponent %d, want %d", pub.E, PublicExponent)
	}
	d, err := id.Descriptor()
	if err != nil {
		return nil, err
	}
	if pub.N.BitLen() > d.KeyBits {
		return nil, &verr.ErrAlgoMismatch{Declared: id, Got: wantBits(pub.N.BitLen())}
	}
	return &PublicKey{Algo: id, Modulus: pub.N}, nil
}

type wantBits int

func (w wantBits) String() string { return fmt.Sprintf("%d-bit key", int(w)) }

// PrivateKey is an algorithm-tagged RSA private key loaded from an internal
// wire-format keyfile or from PEM (LoadPrivateKeyPEM). In-process and
// external signing (sign.go / external.go) both sit behind the Signer
// interface so callers never branch on provenance.
type PrivateKey struct {
	Algo algo.ID
	RSA  *rsa.PrivateKey
}

// LoadPrivateKeyfile loads the internal wire keyfile format: a one-byte
// algorithm ID followed by a PKCS#1 DER-encoded RSA private key. This is
// the format keyfile-parsing external collaborators (spec.md §1 non-goals)
// are expected to hand the core; the core itself never walks a directory
// looking for one.
func LoadPrivateKeyfile(path string) (*PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &verr.ErrBadKey{Path: path, Err: err}
	}
	if len(raw) < 2 {
		return nil, &verr.ErrBadKey{Path: path, Err: fmt.Errorf("keyfile too short")}
	}
	id := algo.ID(raw[0])
	if _, err := id.Descriptor(); err != nil {
		return nil, &verr.ErrBadKey{Path: path, Err: err}
	}
	rsaKey, err := x509.ParsePKCS1PrivateKey(raw[1:])
	if err != nil {
		return nil, &verr.ErrBadKey{Path: path, Err: err}
	}
	return &PrivateKey{Algo: id, RSA: rsaKey}, nil
}

// LoadPrivateKeyPEM loads a PEM-encoded PKCS#1 or PKCS#8 RSA private key
// and tags it with the explicitly supplied algorithm ID (spec.md §4.1:
// "load a private key ... from a PEM file with an explicit algorithm").
func LoadPrivateKeyPEM(path string, id algo.ID) (*PrivateKey, error) {
	rsaKey, err := parsePEMPrivateKey(path)
	if err != nil {
		return nil, err
	}
	if _, err := id.Descriptor(); err != nil {
		return nil, &verr.ErrBadKey{Path: path, Err: err}
	}
	if rsaKey.N.BitLen() > bitsOf(id) {
		return nil, &verr.ErrAlgoMismatch{Declared: id, Got: wantBits(rsaKey.N.BitLen())}
	}
	return &PrivateKey{Algo: id, RSA: rsaKey}, nil
}

func bitsOf(id algo.ID) int {
	d, err := id.Descriptor()
	if err != nil {
		return 0
	}
	return d.KeyBits
}

func parsePEMPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &verr.ErrBadKey{Path: path, Err: err}
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, &verr.ErrBadKey{Path: path, Err: fmt.Errorf("no PEM block found")}
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	generic, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, &verr.ErrBadKey{Path: path, Err: err}
	}
	rsaKey, ok := generic.(*rsa.PrivateKey)
	if !ok {
		return nil, &verr.ErrBadKey{Path: path, Err: fmt.Errorf("PEM key is not RSA")}
	}
	return rsaKey, nil
}

// LoadPublicKeyfile loads a bare public key in the Marshal wire format,
// tagged with an explicit algorithm ID (spec.md §4.1: "load a public key").
func LoadPublicKeyfile(path string, id algo.ID) (*PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &verr.ErrBadKey{Path: path, Err: err}
	}
	pub, err := UnmarshalPublicKey(id, raw)
	if err != nil {
		return nil, &verr.ErrBadKey{Path: path, Err: err}
	}
	return pub, nil
}

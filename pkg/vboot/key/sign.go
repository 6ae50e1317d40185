// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package key

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/linuxboot/vbootsign/pkg/vboot/algo"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// Signer produces a body signature over an arbitrary byte range. The
// in-process RSA path and the external-program path (external.go) both
// implement it, so keyblock and preamble builders never branch on
// provenance (spec.md §4.1 "External-signer variant: ... No other behavior
// changes").
type Signer interface {
	Algo() algo.ID
	Public() (*PublicKey, error)
	Sign(data []byte) (*Signature, error)
}

// Signature is an algorithm-tagged signature plus the length of the data it
// covers, mirroring the firmware preamble's body-signature field (spec.md
// §3 "Body signature ... data_size field is the authoritative ... length").
type Signature struct {
	Algo     algo.ID
	DataSize uint32
	Data     []byte
}

// rsaSigner signs in-process with an *rsa.PrivateKey.
type rsaSigner struct {
	priv *PrivateKey
}

// NewSigner wraps a loaded private key as a Signer.
func NewSigner(priv *PrivateKey) Signer {
	return &rsaSigner{priv: priv}
}

func (s *rsaSigner) Algo() algo.ID { return s.priv.Algo }

func (s *rsaSigner) Public() (*PublicKey, error) {
	return FromRSA(s.priv.Algo, &s.priv.RSA.PublicKey)
}

func (s *rsaSigner) Sign(data []byte) (*Signature, error) {
	sig, err := signPKCS1v15(s.priv.Algo, s.priv.RSA, data)
	if err != nil {
		return nil, err
	}
	return &Signature{Algo: s.priv.Algo, DataSize: uint32(len(data)), Data: sig}, nil
}

func signPKCS1v15(id algo.ID, priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	d, err := id.Descriptor()
	if err != nil {
		return nil, err
	}
	h := d.Hash.New()
	h.Write(data)
	digest := h.Sum(nil)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, d.Hash, digest)
	if err != nil {
		return nil, &verr.ErrBadSignature{Context: err.Error()}
	}
	return sig, nil
}

// Verify checks sig against data under pub. Returns ErrBadSignature on
// mismatch and ErrAlgoMismatch if sig and pub disagree on algorithm.
func Verify(pub *PublicKey, sig *Signature, data []byte) error {
	if sig.Algo != pub.Algo {
		return &verr.ErrAlgoMismatch{Declared: pub.Algo, Got: sig.Algo}
	}
	if sig.DataSize != uint32(len(data)) {
		return &verr.ErrBadSignature{Context: fmt.Sprintf("signed %d bytes, got %d to verify", sig.DataSize, len(data))}
	}
	d, err := pub.Algo.Descriptor()
	if err != nil {
		return err
	}
	h := d.Hash.New()
	h.Write(data)
	digest := h.Sum(nil)
	if err := rsa.VerifyPKCS1v15(pub.RSA(), d.Hash, digest, sig.Data); err != nil {
		return &verr.ErrBadSignature{Context: err.Error()}
	}
	return nil
}

// hashData hashes data under id's hash function; used by callers in this
// package (the external signer) that need the digest rather than a full
// Sign call.
func hashData(id algo.ID, data []byte) ([]byte, crypto.Hash, error) {
	d, err := id.Descriptor()
	if err != nil {
		return nil, 0, err
	}
	h := d.Hash.New()
	h.Write(data)
	return h.Sum(nil), d.Hash, nil
}

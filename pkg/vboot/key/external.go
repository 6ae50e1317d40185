// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package key

import (
	"bytes"
	"fmt"
	"os/exec"

	"github.com/linuxboot/vbootsign/pkg/vboot/algo"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// externalSigner streams the to-be-signed digest to an external program's
// stdin and reads the raw signature back from stdout, in the manner
// fiano's system-tool compression wrappers shell out to xz/brotli
// (pkg/compression/systemlzma.go): one blocking exec.Command per call, no
// persistent child process.
type externalSigner struct {
	program string
	pub     *PublicKey
}

// NewExternalSigner builds a Signer that signs by invoking program. pub is
// the public key paired with the external program's private key — the PEM
// file supplied alongside --pem_external on the CLI carries it (spec.md
// §4.1 "when a PEM private key and an external program path are both
// supplied").
func NewExternalSigner(program string, pub *PublicKey) Signer {
	return &externalSigner{program: program, pub: pub}
}

func (s *externalSigner) Algo() algo.ID               { return s.pub.Algo }
func (s *externalSigner) Public() (*PublicKey, error) { return s.pub, nil }

func (s *externalSigner) Sign(data []byte) (*Signature, error) {
	digest, _, err := hashData(s.pub.Algo, data)
	if err != nil {
		return nil, err
	}
	d, err := s.pub.Algo.Descriptor()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(s.program)
	cmd.Stdin = bytes.NewReader(digest)
	out, err := cmd.Output()
	if err != nil {
		return nil, &verr.ErrExternalSignerFailed{Program: s.program, Err: err}
	}
	if len(out) != d.KeyBits/8 {
		return nil, &verr.ErrExternalSignerFailed{Program: s.program,
			Err: fmt.Errorf("unexpected signature length: got %d, want %d", len(out), d.KeyBits/8)}
	}
	return &Signature{Algo: s.pub.Algo, DataSize: uint32(len(data)), Data: out}, nil
}

// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/linuxboot/vbootsign/pkg/vboot/algo"
	"github.com/linuxboot/vbootsign/pkg/vboot/key"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// loadSigner resolves the --signprivate / --pem_signpriv(+--pem_algo,
// --pem_external) triad into a single Signer, matching the external-signer
// variant in spec.md §4.1: "when a PEM private key and an external program
// path are both supplied, signatures are produced by invoking the external
// program."
func loadSigner(o *options) (key.Signer, error) {
	switch {
	case o.PemSignPriv != "":
		id := algo.ID(o.PemAlgo)
		priv, err := key.LoadPrivateKeyPEM(o.PemSignPriv, id)
		if err != nil {
			return nil, err
		}
		if o.PemExternal != "" {
			pub, err := key.FromRSA(id, &priv.RSA.PublicKey)
			if err != nil {
				return nil, err
			}
			return key.NewExternalSigner(o.PemExternal, pub), nil
		}
		return key.NewSigner(priv), nil
	case o.SignPrivate != "":
		priv, err := key.LoadPrivateKeyfile(o.SignPrivate)
		if err != nil {
			return nil, err
		}
		return key.NewSigner(priv), nil
	default:
		return nil, &verr.ErrBadArgs{Msg: "no signing key supplied"}
	}
}

func loadKeyblockBytes(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &verr.ErrIO{Op: "read keyblock " + path, Err: err}
	}
	return raw, nil
}

// loadPubKeyFile loads a bare public key tagged with id — used for the
// kernel subkey and the GBB root/recovery keys alike, since none of spec.md
// §6's flags carry a dedicated algorithm for these and all three are
// assumed to share the signer's algorithm family (DESIGN.md Open-Q4).
func loadPubKeyFile(path string, id algo.ID) (*key.PublicKey, error) {
	return key.LoadPublicKeyfile(path, id)
}

// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gbb

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxboot/vbootsign/pkg/vboot/algo"
	"github.com/linuxboot/vbootsign/pkg/vboot/key"
)

// buildGBB lays out a synthetic GBB region: header, then HWID/rootkey/bmpfv/
// recoverykey/flags sub-regions back to back. withFlags=false mimics a
// legacy GBB with no flags sub-region.
func buildGBB(t *testing.T, withFlags bool) []byte {
	t.Helper()
	const (
		hwidSize = 64
		keySize  = 2048 / 8 // room for a 2048-bit modulus
		bmpSize  = 16
	)

	hwidOff := uint32(headerSize)
	rootOff := hwidOff + hwidSize
	bmpOff := rootOff + keySize
	recOff := bmpOff + bmpSize
	flagsOff := recOff + keySize

	total := flagsOff
	if withFlags {
		total += 4
	}

	buf := make([]byte, total)
	h := header{
		Magic:             Magic,
		MajorVersion:      1,
		MinorVersion:      1,
		HeaderSize:        headerSize,
		HWIDOffset:        hwidOff,
		HWIDSize:          hwidSize,
		RootKeyOffset:     rootOff,
		RootKeySize:       keySize,
		BmpfvOffset:       bmpOff,
		BmpfvSize:         bmpSize,
		RecoveryKeyOffset: recOff,
		RecoveryKeySize:   keySize,
	}
	if withFlags {
		h.FlagsOffset = flagsOff
		h.FlagsSize = 4
	}

	w := new(bytes.Buffer)
	require.NoError(t, binary.Write(w, binary.LittleEndian, h))
	copy(buf, w.Bytes())
	return buf
}

func genPubKey(t *testing.T, id algo.ID, bits int) *key.PublicKey {
	t.Helper()
	rsaKey, err := rsa.GenerateKey(rand.Reader, bits)
	require.NoError(t, err)
	pub, err := key.FromRSA(id, &rsaKey.PublicKey)
	require.NoError(t, err)
	return pub
}

func TestHWIDRoundTrip(t *testing.T) {
	buf := buildGBB(t, true)
	g, err := Open(buf, algo.RSA2048SHA256, algo.RSA2048SHA256)
	require.NoError(t, err)

	require.NoError(t, g.SetHWID("ACME BOARD A1-B2C"))
	assert.Equal(t, "ACME BOARD A1-B2C", g.GetHWID())
}

func TestSetHWIDTooLong(t *testing.T) {
	buf := buildGBB(t, true)
	g, err := Open(buf, algo.RSA2048SHA256, algo.RSA2048SHA256)
	require.NoError(t, err)

	huge := make([]byte, 1000)
	err = g.SetHWID(string(huge))
	assert.Error(t, err)
}

func TestRootKeyRoundTrip(t *testing.T) {
	buf := buildGBB(t, true)
	g, err := Open(buf, algo.RSA2048SHA256, algo.RSA2048SHA256)
	require.NoError(t, err)

	pub := genPubKey(t, algo.RSA2048SHA256, 2048)
	require.NoError(t, g.SetRootKey(pub))

	got, err := g.GetRootKey()
	require.NoError(t, err)
	assert.Equal(t, pub.Modulus, got.Modulus)
}

func TestRecoveryKeyRoundTrip(t *testing.T) {
	buf := buildGBB(t, true)
	g, err := Open(buf, algo.RSA2048SHA256, algo.RSA2048SHA256)
	require.NoError(t, err)

	pub := genPubKey(t, algo.RSA2048SHA256, 2048)
	require.NoError(t, g.SetRecoveryKey(pub))

	got, err := g.GetRecoveryKey()
	require.NoError(t, err)
	assert.Equal(t, pub.Modulus, got.Modulus)
}

func TestFlagsRoundTrip(t *testing.T) {
	buf := buildGBB(t, true)
	g, err := Open(buf, algo.RSA2048SHA256, algo.RSA2048SHA256)
	require.NoError(t, err)

	require.NoError(t, g.SetFlags(0x42))
	got, err := g.GetFlags()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x42), got)
}

func TestFlagsUnsupportedOnLegacyGBB(t *testing.T) {
	buf := buildGBB(t, false)
	g, err := Open(buf, algo.RSA2048SHA256, algo.RSA2048SHA256)
	require.NoError(t, err)

	_, err = g.GetFlags()
	assert.Error(t, err)
	err = g.SetFlags(1)
	assert.Error(t, err)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	buf := buildGBB(t, true)
	buf[0] = 'X'
	_, err := Open(buf, algo.RSA2048SHA256, algo.RSA2048SHA256)
	assert.Error(t, err)
}

func TestOpenRejectsShortBuffer(t *testing.T) {
	_, err := Open([]byte{1, 2, 3}, algo.RSA2048SHA256, algo.RSA2048SHA256)
	assert.Error(t, err)
}

func TestOpenRejectsOverlappingSubRegions(t *testing.T) {
	buf := buildGBB(t, true)

	var h header
	require.NoError(t, binary.Read(bytes.NewReader(buf[:headerSize]), binary.LittleEndian, &h))
	h.RootKeyOffset = h.HWIDOffset // now overlaps the HWID slot
	w := new(bytes.Buffer)
	require.NoError(t, binary.Write(w, binary.LittleEndian, h))
	copy(buf, w.Bytes())

	_, err := Open(buf, algo.RSA2048SHA256, algo.RSA2048SHA256)
	assert.Error(t, err)
}

// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	flag "github.com/spf13/pflag"
)

func newTestOptions(t *testing.T, args ...string) (*options, *flag.FlagSet) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o := registerFlags(fs)
	require.NoError(t, fs.Parse(args))
	return o, fs
}

func TestInferTypeFromFV(t *testing.T) {
	o, _ := newTestOptions(t, "--fv=image.bin")
	ty, err := o.inferType()
	require.NoError(t, err)
	assert.Equal(t, typeFirmware, ty)
}

func TestInferTypeFromKernelArgs(t *testing.T) {
	o, _ := newTestOptions(t, "--vmlinuz=v.bin", "--arch=arm")
	ty, err := o.inferType()
	require.NoError(t, err)
	assert.Equal(t, typeKernel, ty)
}

func TestInferTypeFromDataPubKey(t *testing.T) {
	o, _ := newTestOptions(t, "--datapubkey=pub.bin")
	ty, err := o.inferType()
	require.NoError(t, err)
	assert.Equal(t, typePubKey, ty)
}

func TestInferTypeExplicit(t *testing.T) {
	o, _ := newTestOptions(t, "--type=kernelpartition", "--infile=part.bin")
	ty, err := o.inferType()
	require.NoError(t, err)
	assert.Equal(t, typeKernelPartition, ty)
}

func TestInferTypeUnresolvable(t *testing.T) {
	o, _ := newTestOptions(t)
	_, err := o.inferType()
	assert.Error(t, err)
}

func TestValidateAccumulatesMultipleErrors(t *testing.T) {
	o, _ := newTestOptions(t, "--fv=image.bin", "--devsign=dev.key")
	err := o.validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "signprivate")
	assert.Contains(t, msg, "keyblock")
	assert.Contains(t, msg, "kernelkey")
	assert.Contains(t, msg, "devkeyblock")
}

func TestValidatePassesWithCompleteFirmwareArgs(t *testing.T) {
	o, _ := newTestOptions(t, "--fv=image.bin", "--signprivate=k.bin", "--keyblock=kb.bin", "--kernelkey=sub.bin")
	assert.NoError(t, o.validate())
}

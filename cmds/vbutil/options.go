// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/hashicorp/go-multierror"
	flag "github.com/spf13/pflag"

	"github.com/linuxboot/vbootsign/pkg/vboot/kernelsign"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// inputType is the sniffed or declared shape of the primary input.
type inputType string

const (
	typeFirmware        inputType = "firmware"
	typeKernel          inputType = "kernel"
	typeKernelPartition inputType = "kernelpartition"
	typePubKey          inputType = "pubkey"
)

// options is the immutable, fully-parsed command. It replaces the
// process-wide option bag the original tooling threaded implicitly; every
// component below is handed a pointer to this one parsed value rather than
// reading global state (spec.md §9 "Global option bag").
type options struct {
	SignPrivate string
	Keyblock    string
	KernelKey   string
	DevSign     string
	DevKeyblock string

	Version uint32
	Flags   uint32

	LoemDir string
	LoemID  string

	FV         string
	InFile     string
	Vmlinuz    string
	DataPubKey string
	OutFile    string

	RootKey     string
	RecoveryKey string
	HWID        string

	Bootloader string
	Config     string
	ArchStr    string

	KLoadAddr uint32
	Pad       uint32

	PemSignPriv string
	PemAlgo     uint32
	PemExternal string

	VBlockOnly bool
	TypeStr    string
	Summary    bool

	fsRef *flag.FlagSet
}

func registerFlags(fs *flag.FlagSet) *options {
	o := &options{}
	fs.StringVarP(&o.SignPrivate, "signprivate", "s", "", "firmware/kernel data-key private key")
	fs.StringVarP(&o.Keyblock, "keyblock", "b", "", "keyblock wrapping the matching public key")
	fs.StringVarP(&o.KernelKey, "kernelkey", "k", "", "kernel subkey public key")
	fs.StringVarP(&o.DevSign, "devsign", "S", "", "developer-slot private key")
	fs.StringVarP(&o.DevKeyblock, "devkeyblock", "B", "", "developer-slot keyblock")
	fs.Uint32VarP(&o.Version, "version", "v", 0, "firmware or kernel version")
	fs.Uint32VarP(&o.Flags, "flags", "f", 0, "preamble flags (default: preserve)")
	fs.StringVarP(&o.LoemDir, "loemdir", "d", "", "directory to emit per-OEM vblock sidecars")
	fs.StringVarP(&o.LoemID, "loemid", "l", "", "OEM identifier suffix for sidecar files")
	fs.StringVar(&o.FV, "fv", "", "firmware body input (also forces type=firmware)")
	fs.StringVar(&o.InFile, "infile", "", "generic input file")
	fs.StringVar(&o.Vmlinuz, "vmlinuz", "", "raw kernel image input")
	fs.StringVar(&o.DataPubKey, "datapubkey", "", "bare public key to wrap into a keyblock")
	fs.StringVar(&o.OutFile, "outfile", "", "output path (absent: sign in place)")
	fs.StringVar(&o.RootKey, "rootkey", "", "new GBB root public key (firmware signing only)")
	fs.StringVar(&o.RecoveryKey, "recoverykey", "", "new GBB recovery public key (firmware signing only)")
	fs.StringVar(&o.HWID, "hwid", "", "new GBB hardware identifier string (firmware signing only)")
	fs.StringVar(&o.Bootloader, "bootloader", "", "kernel bootloader stub input")
	fs.StringVar(&o.Config, "config", "", "kernel command-line file")
	fs.StringVar(&o.ArchStr, "arch", "", "kernel architecture: x86/amd64, arm/aarch64, mips")
	fs.Uint32Var(&o.KLoadAddr, "kloadaddr", kernelsign.DefaultLoadAddr, "kernel body load address")
	fs.Uint32Var(&o.Pad, "pad", 65536, "vblock padding")
	fs.StringVar(&o.PemSignPriv, "pem_signpriv", "", "PEM-encoded signing private key")
	fs.Uint32Var(&o.PemAlgo, "pem_algo", 0, "algorithm ID for --pem_signpriv")
	fs.StringVar(&o.PemExternal, "pem_external", "", "external signer program for --pem_signpriv")
	fs.BoolVar(&o.VBlockOnly, "vblockonly", false, "emit only the vblock (requires --outfile)")
	fs.StringVar(&o.TypeStr, "type", "", "force input classification")
	fs.BoolVar(&o.Summary, "summary", false, "print a read-only summary of resolved options and exit")

	o.fsRef = fs
	return o
}

// flagWasSet reports whether name was explicitly passed, since pflag has no
// zero-value-vs-unset distinction for Uint32Var.
func flagWasSet(fs *flag.FlagSet, name string) bool {
	return fs.Changed(name)
}

// validate accumulates every structural problem with the parsed flags
// instead of stopping at the first one (spec.md §7 "errors are accumulated
// during argument parsing").
func (o *options) validate() error {
	var result *multierror.Error

	t, err := o.inferType()
	if err != nil {
		result = multierror.Append(result, err)
		return result.ErrorOrNil()
	}

	switch t {
	case typeFirmware:
		if o.SignPrivate == "" && o.PemSignPriv == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "firmware signing needs --signprivate or --pem_signpriv"})
		}
		if o.Keyblock == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "firmware signing needs --keyblock"})
		}
		if o.KernelKey == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "firmware signing needs --kernelkey"})
		}
		if (o.DevSign == "") != (o.DevKeyblock == "") {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "--devsign and --devkeyblock must be supplied together"})
		}
		if o.LoemID != "" && o.LoemDir == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "--loemid requires --loemdir"})
		}
	case typeKernel:
		if o.Vmlinuz == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "kernel creation needs --vmlinuz"})
		}
		if o.ArchStr == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "kernel creation needs --arch"})
		}
		if o.Keyblock == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "kernel creation needs --keyblock"})
		}
		if o.SignPrivate == "" && o.PemSignPriv == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "kernel creation needs --signprivate or --pem_signpriv"})
		}
		if o.VBlockOnly && o.OutFile == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "--vblockonly requires --outfile"})
		}
	case typeKernelPartition:
		if o.InFile == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "kernel partition resign needs --infile"})
		}
		if o.SignPrivate == "" && o.PemSignPriv == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "kernel partition resign needs --signprivate or --pem_signpriv"})
		}
	case typePubKey:
		if o.DataPubKey == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "pubkey wrap needs --datapubkey"})
		}
		if o.SignPrivate == "" && o.PemSignPriv == "" {
			result = multierror.Append(result, &verr.ErrBadArgs{Msg: "pubkey wrap needs a root --signprivate or --pem_signpriv"})
		}
	}

	if o.PemSignPriv != "" && o.PemExternal != "" && o.PemAlgo == 0 && !flagWasSet(o.fsRef, "pem_algo") {
		result = multierror.Append(result, &verr.ErrBadArgs{Msg: "--pem_external requires --pem_algo"})
	}

	return result.ErrorOrNil()
}

// inferType sniffs --type, falling back to the argument-shape inference
// spec.md §6 describes: "--fv also forces type"; --bootloader/--config/
// --arch imply a raw kernel input; --kernelkey/--fv imply raw firmware.
func (o *options) inferType() (inputType, error) {
	switch o.TypeStr {
	case string(typeFirmware), string(typeKernel), string(typeKernelPartition), string(typePubKey):
		return inputType(o.TypeStr), nil
	case "":
	default:
		return "", &verr.ErrBadArgs{Msg: "unknown --type " + o.TypeStr}
	}

	switch {
	case o.FV != "":
		return typeFirmware, nil
	case o.DataPubKey != "":
		return typePubKey, nil
	case o.Bootloader != "" || o.Config != "" || o.ArchStr != "" || o.Vmlinuz != "":
		return typeKernel, nil
	case o.KernelKey != "":
		return typeFirmware, nil
	case o.InFile != "":
		return typeKernelPartition, nil
	}
	return "", &verr.ErrBadArgs{Msg: "cannot infer input type; pass --type explicitly"}
}

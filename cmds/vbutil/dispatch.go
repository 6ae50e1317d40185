// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/linuxboot/vbootsign/pkg/fmap"
	"github.com/linuxboot/vbootsign/pkg/vboot/biossign"
	"github.com/linuxboot/vbootsign/pkg/vboot/image"
	"github.com/linuxboot/vbootsign/pkg/vboot/kernelsign"
	"github.com/linuxboot/vbootsign/pkg/vboot/key"
	"github.com/linuxboot/vbootsign/pkg/vboot/keyblock"
	"github.com/linuxboot/vbootsign/pkg/vboot/loem"
	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

func signFirmware(o *options, fs *flag.FlagSet, diag *diagnostics) error {
	path := firstNonEmpty(o.FV, o.InFile)
	if path == "" {
		return &verr.ErrBadArgs{Msg: "firmware signing needs --fv or --infile"}
	}

	signer, err := loadSigner(o)
	if err != nil {
		return err
	}
	keyblockBytes, err := loadKeyblockBytes(o.Keyblock)
	if err != nil {
		return err
	}
	kernelSubkeyPub, err := loadPubKeyFile(o.KernelKey, signer.Algo())
	if err != nil {
		return err
	}

	keys := biossign.Keys{
		Normal:          biossign.Identity{KeyblockBytes: keyblockBytes, DataKeySigner: signer},
		KernelSubkeyPub: kernelSubkeyPub,
	}
	if o.RootKey != "" {
		keys.GBBRootPub, err = loadPubKeyFile(o.RootKey, signer.Algo())
		if err != nil {
			return err
		}
	}
	if o.RecoveryKey != "" {
		keys.GBBRecoveryPub, err = loadPubKeyFile(o.RecoveryKey, signer.Algo())
		if err != nil {
			return err
		}
	}
	if o.DevSign != "" {
		devPriv, err := key.LoadPrivateKeyfile(o.DevSign)
		if err != nil {
			return err
		}
		devKeyblockBytes, err := loadKeyblockBytes(o.DevKeyblock)
		if err != nil {
			return err
		}
		keys.Dev = &biossign.Identity{KeyblockBytes: devKeyblockBytes, DataKeySigner: key.NewSigner(devPriv)}
	}

	opt := biossign.Options{Version: o.Version}
	if flagWasSet(fs, "flags") {
		f := o.Flags
		opt.Flags = &f
		g := o.Flags
		opt.GBBFlags = &g
	}
	if o.HWID != "" {
		h := o.HWID
		opt.HWID = &h
	}

	mode := image.ReadWrite
	target := path
	if o.OutFile != "" {
		if err := copyFile(path, o.OutFile); err != nil {
			return err
		}
		target = o.OutFile
	}

	im, err := image.Open(target, mode)
	if err != nil {
		return err
	}
	res, err := biossign.Sign(im.Buf(), keys, opt)
	if err != nil {
		im.CloseError()
		return err
	}
	for _, w := range res.Warnings {
		diag.Warnf("%s", w)
	}
	if err := im.CloseSuccess(); err != nil {
		return err
	}

	if o.LoemID != "" {
		vblockA, vblockB, err := readVBlocksForLoem(target)
		if err != nil {
			return err
		}
		if err := loem.WriteSidecars(o.LoemDir, o.LoemID, vblockA, vblockB); err != nil {
			return err
		}
	}
	return nil
}

func createKernel(o *options, fs *flag.FlagSet, diag *diagnostics) error {
	vmlinuz, err := os.ReadFile(o.Vmlinuz)
	if err != nil {
		return &verr.ErrIO{Op: "read " + o.Vmlinuz, Err: err}
	}
	var bootloader []byte
	if o.Bootloader != "" {
		bootloader, err = os.ReadFile(o.Bootloader)
		if err != nil {
			return &verr.ErrIO{Op: "read " + o.Bootloader, Err: err}
		}
	}
	cmdline := ""
	if o.Config != "" {
		raw, err := os.ReadFile(o.Config)
		if err != nil {
			return &verr.ErrIO{Op: "read " + o.Config, Err: err}
		}
		cmdline = string(raw)
	}
	arch, err := kernelsign.ParseArch(o.ArchStr)
	if err != nil {
		return err
	}

	signer, err := loadSigner(o)
	if err != nil {
		return err
	}
	keyblockBytes, err := loadKeyblockBytes(o.Keyblock)
	if err != nil {
		return err
	}
	var kernelSubkeyPub *key.PublicKey
	if o.KernelKey != "" {
		kernelSubkeyPub, err = loadPubKeyFile(o.KernelKey, signer.Algo())
		if err != nil {
			return err
		}
	}

	out, err := kernelsign.CreateKernelPartition(kernelsign.CreateParams{
		Vmlinuz:         vmlinuz,
		Arch:            arch,
		BodyLoadAddr:    o.KLoadAddr,
		Cmdline:         cmdline,
		Bootloader:      bootloader,
		Padding:         o.Pad,
		KeyblockBytes:   keyblockBytes,
		DataKeySigner:   signer,
		KernelSubkeyPub: kernelSubkeyPub,
		Version:         o.Version,
		Flags:           o.Flags,
		VBlockOnly:      o.VBlockOnly,
	})
	if err != nil {
		return err
	}
	return writeOutput(o, out)
}

func resignKernel(o *options, fs *flag.FlagSet, diag *diagnostics) error {
	existing, err := os.ReadFile(o.InFile)
	if err != nil {
		return &verr.ErrIO{Op: "read " + o.InFile, Err: err}
	}
	signer, err := loadSigner(o)
	if err != nil {
		return err
	}

	p := kernelsign.ResignParams{
		Padding:       o.Pad,
		DataKeySigner: signer,
	}
	if o.Config != "" {
		raw, err := os.ReadFile(o.Config)
		if err != nil {
			return &verr.ErrIO{Op: "read " + o.Config, Err: err}
		}
		cmdline := string(raw)
		p.Cmdline = &cmdline
	}
	if flagWasSet(fs, "version") {
		v := o.Version
		p.Version = &v
	}
	if flagWasSet(fs, "flags") {
		f := o.Flags
		p.Flags = &f
	}
	if o.Keyblock != "" {
		kb, err := loadKeyblockBytes(o.Keyblock)
		if err != nil {
			return err
		}
		p.NewKeyblock = kb
	}
	if o.KernelKey != "" {
		pub, err := loadPubKeyFile(o.KernelKey, signer.Algo())
		if err != nil {
			return err
		}
		p.KernelSubkeyPub = pub
	}

	out, err := kernelsign.ResignKernelPartition(existing, p)
	if err != nil {
		return err
	}

	target := o.InFile
	if o.OutFile != "" {
		target = o.OutFile
	}
	return os.WriteFile(target, out, 0o644)
}

func wrapPubKey(o *options, diag *diagnostics) error {
	rootSigner, err := loadSigner(o)
	if err != nil {
		return err
	}
	dataPub, err := key.LoadPublicKeyfile(o.DataPubKey, rootSigner.Algo())
	if err != nil {
		return err
	}
	out, err := keyblock.Make(dataPub, rootSigner, o.Flags)
	if err != nil {
		return err
	}
	return writeOutput(o, out)
}

func writeOutput(o *options, data []byte) error {
	if o.OutFile == "" {
		return &verr.ErrBadArgs{Msg: "this operation requires --outfile"}
	}
	if err := os.WriteFile(o.OutFile, data, 0o644); err != nil {
		return &verr.ErrIO{Op: "write " + o.OutFile, Err: err}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return &verr.ErrIO{Op: "read " + src, Err: err}
	}
	return image.CopyThenRename(dst, data)
}

func readVBlocksForLoem(path string) (vblockA, vblockB []byte, err error) {
	im, err := image.Open(path, image.ReadOnly)
	if err != nil {
		return nil, nil, err
	}
	defer im.CloseSuccess()

	fm, _, err := fmap.Read(bytes.NewReader(im.Buf()))
	if err != nil {
		return nil, nil, &verr.ErrFmapNotFound{}
	}
	offA, lenA, ok := fm.FindAreaClamped(fmap.AreaVBlockA, im.Len())
	if !ok {
		return nil, nil, &verr.ErrLayoutIncomplete{Missing: []string{fmap.AreaVBlockA}}
	}
	offB, lenB, ok := fm.FindAreaClamped(fmap.AreaVBlockB, im.Len())
	if !ok {
		return nil, nil, &verr.ErrLayoutIncomplete{Missing: []string{fmap.AreaVBlockB}}
	}
	return append([]byte(nil), im.Buf()[offA:offA+lenA]...),
		append([]byte(nil), im.Buf()[offB:offB+lenB]...),
		nil
}

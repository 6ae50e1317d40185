// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernelsign assembles kernel blobs from a raw vmlinuz, bootloader
// stub, and command line, and signs them into a keyblock+preamble vblock or
// a full kernel partition (spec.md §4.7, §3 "Kernel blob", C7).
package kernelsign

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Arch selects the architecture-specific bootloader stub layout.
type Arch uint8

const (
	ArchX86 Arch = iota
	ArchARM
	ArchMIPS
)

// ParseArch maps a CLI --arch value to an Arch (spec.md §6: "arch ∈
// {x86/amd64, arm/aarch64, mips}").
func ParseArch(s string) (Arch, error) {
	switch s {
	case "x86", "amd64":
		return ArchX86, nil
	case "arm", "aarch64":
		return ArchARM, nil
	case "mips":
		return ArchMIPS, nil
	default:
		return 0, fmt.Errorf("kernelsign: unknown arch %q", s)
	}
}

// DefaultLoadAddr is the conventional body load address (spec.md §6
// "--kloadaddr ... default 0x100000-class constant").
const DefaultLoadAddr = 0x100000

// zeroPageSize is the fixed size of the entry header page prefixing every
// kernel blob, matching the Linux boot protocol convention of a
// page-aligned parameter block ahead of the kernel image.
const zeroPageSize = 4096

// zeroPage is the fixed-width header packed into the first zeroPageSize
// bytes of a blob. Everything past it is zero-filled padding.
type zeroPage struct {
	BodyLoadAddr   uint32
	KernelSize     uint32
	BootloaderAddr uint32
	BootloaderSize uint32
	CmdlineAddr    uint32
	CmdlineSize    uint32
}

const zeroPageHeaderSize = 4 * 6

// Blob is a parsed kernel blob.
type Blob struct {
	BodyLoadAddr uint32
	Kernel       []byte
	Bootloader   []byte
	Cmdline      string
}

// BlobParams are the inputs to building a fresh blob.
type BlobParams struct {
	Vmlinuz      []byte
	Bootloader   []byte
	Cmdline      string
	BodyLoadAddr uint32
	Arch         Arch
}

// BuildBlob packs params into the wire layout: zero page, kernel image,
// bootloader stub, command-line buffer (spec.md §3 "Kernel blob").
// Arch is not read: the wire layout is the same for every architecture.
func BuildBlob(p BlobParams) []byte {
	cmdlineBytes := append([]byte(p.Cmdline), 0)

	bootloaderAddr := p.BodyLoadAddr + zeroPageSize + uint32(len(p.Vmlinuz))
	cmdlineAddr := bootloaderAddr + uint32(len(p.Bootloader))

	zp := zeroPage{
		BodyLoadAddr:   p.BodyLoadAddr,
		KernelSize:     uint32(len(p.Vmlinuz)),
		BootloaderAddr: bootloaderAddr,
		BootloaderSize: uint32(len(p.Bootloader)),
		CmdlineAddr:    cmdlineAddr,
		CmdlineSize:    uint32(len(cmdlineBytes)),
	}

	out := new(bytes.Buffer)
	binary.Write(out, binary.LittleEndian, zp)
	out.Write(make([]byte, zeroPageSize-zeroPageHeaderSize))
	out.Write(p.Vmlinuz)
	out.Write(p.Bootloader)
	out.Write(cmdlineBytes)
	return out.Bytes()
}

// ParseBlob unpacks a blob produced by BuildBlob.
func ParseBlob(raw []byte) (*Blob, error) {
	if len(raw) < zeroPageSize {
		return nil, fmt.Errorf("kernelsign: blob shorter than zero page (%d < %d)", len(raw), zeroPageSize)
	}
	var zp zeroPage
	if err := binary.Read(bytes.NewReader(raw[:zeroPageHeaderSize]), binary.LittleEndian, &zp); err != nil {
		return nil, err
	}

	kernelStart := zeroPageSize
	kernelEnd := kernelStart + int(zp.KernelSize)
	bootloaderEnd := kernelEnd + int(zp.BootloaderSize)
	cmdlineEnd := bootloaderEnd + int(zp.CmdlineSize)
	if cmdlineEnd > len(raw) {
		return nil, fmt.Errorf("kernelsign: blob truncated: need %d bytes, have %d", cmdlineEnd, len(raw))
	}

	cmdline := raw[bootloaderEnd:cmdlineEnd]
	if i := bytes.IndexByte(cmdline, 0); i >= 0 {
		cmdline = cmdline[:i]
	}

	return &Blob{
		BodyLoadAddr: zp.BodyLoadAddr,
		Kernel:       raw[kernelStart:kernelEnd],
		Bootloader:   raw[kernelEnd:bootloaderEnd],
		Cmdline:      string(cmdline),
	}, nil
}

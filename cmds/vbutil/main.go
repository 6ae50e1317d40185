// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command vbutil signs and resigns verified-boot firmware images and kernel
// partitions (spec.md §6).
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	flag "github.com/spf13/pflag"

	vlog "github.com/linuxboot/vbootsign/pkg/log"
)

func main() {
	fs := flag.NewFlagSet("vbutil", flag.ContinueOnError)
	o := registerFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(os.Stdout, os.Stderr, o, fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run is main's testable core: every side effect (stdout, stderr, argv)
// arrives as a parameter rather than through package-level state.
func run(stdout, stderr io.Writer, o *options, fs *flag.FlagSet) error {
	if err := o.validate(); err != nil {
		return err
	}
	t, err := o.inferType()
	if err != nil {
		return err
	}

	if o.Summary {
		printSummary(stdout, o, t)
		return nil
	}

	diag := &diagnostics{w: stderr}

	switch t {
	case typeFirmware:
		return signFirmware(o, fs, diag)
	case typeKernel:
		return createKernel(o, fs, diag)
	case typeKernelPartition:
		return resignKernel(o, fs, diag)
	case typePubKey:
		return wrapPubKey(o, diag)
	default:
		return fmt.Errorf("vbutil: unhandled input type %q", t)
	}
}

// diagnostics collects non-fatal warnings (spec.md §7: "Warnings ... go to
// the diagnostic stream and do not count toward the exit code").
type diagnostics struct {
	w io.Writer
}

func (d *diagnostics) Warnf(format string, args ...interface{}) {
	vlog.Warnf(format, args...)
	fmt.Fprintf(d.w, "warning: "+format+"\n", args...)
}

func printSummary(w io.Writer, o *options, t inputType) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("vbutil resolved options")
	tw.AppendHeader(table.Row{"Field", "Value"})
	tw.AppendRow(table.Row{"type", string(t)})
	tw.AppendRow(table.Row{"signprivate", o.SignPrivate})
	tw.AppendRow(table.Row{"keyblock", o.Keyblock})
	tw.AppendRow(table.Row{"kernelkey", o.KernelKey})
	tw.AppendRow(table.Row{"devsign", o.DevSign})
	tw.AppendRow(table.Row{"devkeyblock", o.DevKeyblock})
	tw.AppendRow(table.Row{"version", o.Version})
	tw.AppendRow(table.Row{"flags", o.Flags})
	tw.AppendRow(table.Row{"loemdir", o.LoemDir})
	tw.AppendRow(table.Row{"loemid", o.LoemID})
	tw.AppendRow(table.Row{"infile", firstNonEmpty(o.FV, o.InFile, o.Vmlinuz, o.DataPubKey)})
	tw.AppendRow(table.Row{"outfile", o.OutFile})
	tw.AppendRow(table.Row{"vblockonly", o.VBlockOnly})
	tw.AppendRow(table.Row{"pad", humanize.Bytes(uint64(o.Pad))})
	tw.AppendRow(table.Row{"kloadaddr", humanize.Bytes(uint64(o.KLoadAddr))})
	tw.Render()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loem writes per-OEM vblock sidecar files alongside an in-place
// BIOS sign, one per A/B slot, named vblock_A.<id> / vblock_B.<id>
// (spec.md §4.6 step 6, §4.9, C9).
package loem

import (
	"os"
	"path/filepath"

	"github.com/linuxboot/vbootsign/pkg/vboot/verr"
)

// WriteSidecars emits dir/vblock_A.<id> and dir/vblock_B.<id> containing
// vblockA and vblockB verbatim. Both are written before either is reported
// successful; on the first failure the sidecars already written are left
// in place, matching the core's no-retry failure policy.
func WriteSidecars(dir, id string, vblockA, vblockB []byte) error {
	if err := writeOne(filepath.Join(dir, "vblock_A."+id), vblockA); err != nil {
		return err
	}
	if err := writeOne(filepath.Join(dir, "vblock_B."+id), vblockB); err != nil {
		return err
	}
	return nil
}

func writeOne(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &verr.ErrIO{Op: "write " + path, Err: err}
	}
	return nil
}

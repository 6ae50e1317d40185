// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rollback compares the platform's TPM-reported key and firmware
// versions against a newly produced version and reports whether the new
// image would be rejected by anti-rollback enforcement. It never fails a
// sign operation itself; the caller decides whether to proceed on warning
// (spec.md §4.8, C8).
package rollback

import "fmt"

// Warning describes a version that the platform would currently reject.
type Warning struct {
	Subject  string
	Platform uint32
	New      uint32
}

func (w Warning) String() string {
	return fmt.Sprintf("%s version %d is not higher than the platform's current %d; "+
		"TPM anti-rollback will reject this image until the platform is updated",
		w.Subject, w.New, w.Platform)
}

// CheckDataKeyVersion warns when the platform-reported data-key version
// exceeds the version about to be written.
func CheckDataKeyVersion(platformDataKeyVersion, newDataKeyVersion uint32) (Warning, bool) {
	if platformDataKeyVersion > newDataKeyVersion {
		return Warning{Subject: "data key", Platform: platformDataKeyVersion, New: newDataKeyVersion}, true
	}
	return Warning{}, false
}

// CheckFirmwareVersion warns when the platform-reported firmware version
// exceeds the version about to be written.
func CheckFirmwareVersion(platformFirmwareVersion, newFirmwareVersion uint32) (Warning, bool) {
	if platformFirmwareVersion > newFirmwareVersion {
		return Warning{Subject: "firmware", Platform: platformFirmwareVersion, New: newFirmwareVersion}, true
	}
	return Warning{}, false
}

// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytes

// IsZeroFilled returns true if b consists of zeros only. Used to recognize
// untouched padding inside a reserved GBB sub-region.
//
//go:nosplit
func IsZeroFilled(b []byte) bool {
	return isZeroFilledSimple(b)
}

func isZeroFilledSimple(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

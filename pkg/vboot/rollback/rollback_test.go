// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rollback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckDataKeyVersionWarnsOnDowngrade(t *testing.T) {
	w, warn := CheckDataKeyVersion(5, 3)
	assert.True(t, warn)
	assert.Equal(t, uint32(5), w.Platform)
	assert.Equal(t, uint32(3), w.New)
	assert.Contains(t, w.String(), "data key")
}

func TestCheckDataKeyVersionNoWarnOnUpgrade(t *testing.T) {
	_, warn := CheckDataKeyVersion(3, 5)
	assert.False(t, warn)
}

func TestCheckDataKeyVersionNoWarnOnEqual(t *testing.T) {
	_, warn := CheckDataKeyVersion(4, 4)
	assert.False(t, warn)
}

func TestCheckFirmwareVersionWarnsOnDowngrade(t *testing.T) {
	w, warn := CheckFirmwareVersion(10, 2)
	assert.True(t, warn)
	assert.Contains(t, w.String(), "firmware")
}

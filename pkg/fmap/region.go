// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fmap

// Canonical area names the BIOS and kernel signers look for.
const (
	AreaGBB     = "GBB"
	AreaFwMainA = "FW_MAIN_A"
	AreaFwMainB = "FW_MAIN_B"
	AreaVBlockA = "VBLOCK_A"
	AreaVBlockB = "VBLOCK_B"
)

// legacyAliases maps a canonical area name to the older names some images
// still carry for it. FindArea tries the canonical name first, then each
// alias in order; first match wins.
var legacyAliases = map[string][]string{
	AreaVBlockA: {"VBOOTA"},
	AreaVBlockB: {"VBOOTB"},
	AreaGBB:     {"GBB_AREA"},
}

// FindArea resolves name to an area, trying legacy aliases when the
// canonical name isn't present. It returns ok=false if neither the name nor
// any of its aliases match an area in f.
func (f *FMap) FindArea(name string) (area Area, ok bool) {
	if i := f.IndexOfArea(name); i != -1 {
		return f.Areas[i], true
	}
	for _, alias := range legacyAliases[name] {
		if i := f.IndexOfArea(alias); i != -1 {
			return f.Areas[i], true
		}
	}
	return Area{}, false
}

// ClampToImage truncates an area's length so that offset+length never
// exceeds imageLen. An area entirely outside the image (offset >= imageLen)
// is reported absent. A truncated area is tolerated by the caller; an area
// whose offset is itself out of bounds is not.
func ClampToImage(offset, length uint32, imageLen int) (clampedLength uint32, ok bool) {
	if int64(offset) >= int64(imageLen) {
		return 0, false
	}
	end := int64(offset) + int64(length)
	if end > int64(imageLen) {
		return uint32(int64(imageLen) - int64(offset)), true
	}
	return length, true
}

// FindAreaClamped combines FindArea and ClampToImage: it resolves name
// (trying aliases), then clamps the result against imageLen. ok is false
// when the area is missing entirely or its offset lies beyond imageLen.
func (f *FMap) FindAreaClamped(name string, imageLen int) (offset, length uint32, ok bool) {
	area, found := f.FindArea(name)
	if !found {
		return 0, 0, false
	}
	clamped, inBounds := ClampToImage(area.Offset, area.Size, imageLen)
	if !inBounds {
		return 0, 0, false
	}
	return area.Offset, clamped, true
}

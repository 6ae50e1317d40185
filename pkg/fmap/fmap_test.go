// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fmap

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/xaionaro-go/bytesextra"
)

// Flash map is stored in little-endian. The fixture below models a real
// verified-boot layout (GBB + one FW_MAIN/VBLOCK pair) rather than the
// arbitrary area names fiano's own fixtures use, so a failure here points
// at the wire format this module actually reads/writes.
var fmapName = []byte("VBOOTSIGN_FLASH" + strings.Repeat("\x00", 32-15))
var gbbAreaName = []byte(AreaGBB + strings.Repeat("\x00", 32-len(AreaGBB)))
var fwMainAreaName = []byte(AreaFwMainA + strings.Repeat("\x00", 32-len(AreaFwMainA)))
var fakeFlash = bytes.Join([][]byte{
	// Arbitrary data preceding the fmap signature.
	bytes.Repeat([]byte{0x53, 0x11, 0x34, 0x22}, 94387),

	// Signature
	Signature,
	// VerMajor, VerMinor
	{1, 0},
	// Base
	{0xef, 0xbe, 0xad, 0xde, 0xbe, 0xba, 0xfe, 0xca},
	// Size
	{0x11, 0x22, 0x33, 0x44},
	// Name (32 bytes)
	fmapName,
	// NAreas
	{0x02, 0x00},

	// Areas[0].Offset
	{0xef, 0xbe, 0xad, 0xde},
	// Areas[0].Size
	{0x11, 0x11, 0x11, 0x11},
	// Areas[0].Name (32 bytes)
	gbbAreaName,
	// Areas[0].Flags
	{0x13, 0x10},

	// Areas[1].Offset
	{0xbe, 0xba, 0xfe, 0xca},
	// Areas[1].Size
	{0x22, 0x22, 0x22, 0x22},
	// Areas[1].Name (32 bytes)
	fwMainAreaName,
	// Areas[1].Flags
	{0x00, 0x00},
}, []byte{})

func TestReadFMap(t *testing.T) {
	r := bytes.NewReader(fakeFlash)
	fmap, _, err := Read(r)
	if err != nil {
		t.Fatal(err)
	}
	expected := FMap{
		Header: Header{
			VerMajor: 1,
			VerMinor: 0,
			Base:     0xcafebabedeadbeef,
			Size:     0x44332211,
			NAreas:   2,
		},
		Areas: []Area{
			{
				Offset: 0xdeadbeef,
				Size:   0x11111111,
				Flags:  0x1013,
			}, {
				Offset: 0xcafebabe,
				Size:   0x22222222,
				Flags:  0x0000,
			},
		},
	}
	copy(expected.Signature[:], []byte("__FMAP__"))
	copy(expected.Name.Value[:], fmapName)
	copy(expected.Areas[0].Name.Value[:], gbbAreaName)
	copy(expected.Areas[1].Name.Value[:], fwMainAreaName)
	if !reflect.DeepEqual(*fmap, expected) {
		t.Errorf("expected:\n%+v\ngot:\n%+v", expected, *fmap)
	}
}

func TestReadMetadata(t *testing.T) {
	r := bytes.NewReader(fakeFlash)
	_, metadata, err := Read(r)
	if err != nil {
		t.Fatal(err)
	}
	expected := Metadata{
		Start: 4 * 94387,
	}
	if !reflect.DeepEqual(*metadata, expected) {
		t.Errorf("expected:\n%+v\ngot:\n%+v", expected, *metadata)
	}
}

func TestFieldNames(t *testing.T) {
	r := bytes.NewReader(fakeFlash)
	fmap, _, err := Read(r)
	if err != nil {
		t.Fatal(err)
	}
	for i, expected := range []string{"STATIC|COMPRESSED|0x1010", "0x0"} {
		got := FlagNames(fmap.Areas[i].Flags)
		if got != expected {
			t.Errorf("expected:\n%s\ngot:\n%s", expected, got)
		}
	}
}

func TestNoSignature(t *testing.T) {
	fakeFlash := bytes.Repeat([]byte{0x53, 0x11, 0x34, 0x22}, 94387)
	r := bytes.NewReader(fakeFlash)
	_, _, err := Read(r)
	expected := "cannot find FMAP signature"
	got := err.Error()
	if expected != got {
		t.Errorf("expected: %s; got: %s", expected, got)
	}
}

func TestTwoSignatures(t *testing.T) {
	fakeFlash := bytes.Repeat(fakeFlash, 2)
	r := bytes.NewReader(fakeFlash)
	_, _, err := Read(r)
	expected := "found multiple fmap"
	got := err.Error()
	if expected != got {
		t.Errorf("expected: %s; got: %s", expected, got)
	}
}

func TestTruncatedFmap(t *testing.T) {
	r := bytes.NewReader(fakeFlash[:len(fakeFlash)-2])
	_, _, err := Read(r)
	expected := "unexpected EOF while parsing fmap"
	got := err.Error()
	if expected != got {
		t.Errorf("expected: %s; got: %s", expected, got)
	}
}

func TestIndexOfArea(t *testing.T) {
	r := bytes.NewReader(fakeFlash)
	fmap, _, err := Read(r)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		index int
	}{
		{AreaGBB, 0},
		{AreaFwMainA, 1},
		{"not an area name", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := fmap.IndexOfArea(tt.name)
			if index != tt.index {
				t.Errorf("expected index: %d, got index: %d", tt.index, index)
			}
		})
	}
}

func TestReadArea(t *testing.T) {
	fmap := FMap{
		Header: Header{
			NAreas: 3,
		},
		Areas: []Area{
			{
				Offset: 0x0,
				Size:   0x10,
			}, {
				Offset: 0x10,
				Size:   0x20,
			}, {
				Offset: 0x30,
				Size:   0x40,
			},
		},
	}
	fakeFlash := bytes.Repeat([]byte{0x53, 0x11, 0x34, 0x22}, 0x70)
	r := bytes.NewReader(fakeFlash)
	got, err := fmap.ReadArea(r, 1)
	if err != nil {
		t.Fatal(err)
	}
	expected := fakeFlash[0x10:0x30]
	if !bytes.Equal(expected, got) {
		t.Errorf("expected: %v; got: %v", expected, got)
	}
}

func TestReadAreaByName(t *testing.T) {
	fmap := FMap{
		Header: Header{
			NAreas: 3,
		},
		Areas: []Area{
			{
				Offset: 0x0,
				Size:   0x10,
			}, {
				Offset: 0x10,
				Size:   0x20,
			}, {
				Offset: 0x30,
				Size:   0x40,
			},
		},
	}
	copy(fmap.Areas[0].Name.Value[:], []byte(AreaGBB))
	copy(fmap.Areas[1].Name.Value[:], []byte(AreaFwMainA))
	copy(fmap.Areas[2].Name.Value[:], []byte(AreaVBlockA))
	fakeFlash := bytes.Repeat([]byte{0x53, 0x11, 0x34, 0x22}, 0x70)
	r := bytes.NewReader(fakeFlash)
	got, err := fmap.ReadAreaByName(r, AreaVBlockA)
	if err != nil {
		t.Fatal(err)
	}
	expected := fakeFlash[0x30:0x70]
	if !bytes.Equal(expected, got) {
		t.Errorf("expected: %v; got: %v", expected, got)
	}
}

type testBuffer struct {
	buf []byte
}

func (b *testBuffer) WriteAt(p []byte, off int64) (n int, err error) {
	if off+int64(len(p)) > int64(len(b.buf)) {
		return 0, fmt.Errorf("out of bounds: %d > %d",
			off+int64(len(p)), int64(len(b.buf)))
	}
	copy(b.buf[off:], p)
	return len(p), nil
}

func TestWriteAreaByName(t *testing.T) {
	fmap := FMap{
		Header: Header{
			NAreas: 3,
		},
		Areas: []Area{
			{
				Offset: 0x0,
				Size:   0x10,
			}, {
				Offset: 0x10,
				Size:   0x20,
			}, {
				Offset: 0x30,
				Size:   0x40,
			},
		},
	}
	copy(fmap.Areas[0].Name.Value[:], []byte(AreaGBB))
	copy(fmap.Areas[1].Name.Value[:], []byte(AreaFwMainA))
	copy(fmap.Areas[2].Name.Value[:], []byte(AreaVBlockA))
	fakeFlash := bytes.Repeat([]byte{0x53, 0x11, 0x34, 0x22}, 0x70)
	w := &testBuffer{fakeFlash}
	data := []byte("NEW-VBLOCK-BYTES")
	if err := fmap.WriteAreaByName(w, AreaVBlockA, data); err != nil {
		t.Fatal(err)
	}
	got := fakeFlash[fmap.Areas[2].Offset : fmap.Areas[2].Offset+uint32(len(data))]
	if !bytes.Equal(data, got) {
		t.Errorf("expected: %v; got: %v", data, got)
	}
}

func TestChecksum(t *testing.T) {
	fmap := FMap{
		Header: Header{
			NAreas: 3,
		},
		Areas: []Area{
			{
				Offset: 0x00,
				Size:   0x03,
				Flags:  FmapAreaStatic,
			}, {
				Offset: 0x03,
				Size:   0x20,
				Flags:  0x00,
			}, {
				Offset: 0x23,
				Size:   0x04,
				Flags:  FmapAreaStatic | FmapAreaCompressed,
			},
		},
	}
	fakeFlash := bytes.Repeat([]byte("abcd"), 0x70)
	r := bytes.NewReader(fakeFlash)
	checksum, err := fmap.Checksum(r, sha256.New())
	if err != nil {
		t.Fatal(err)
	}
	// $ echo -n abcdabc | sha256sum
	want := "8a50a4422d673f463f8e4141d8c4b68c4f001ba16f83ad77b8a31bde53ee7273"
	got := fmt.Sprintf("%x", checksum)
	if want != got {
		t.Errorf("want: %v; got: %v", want, got)
	}
}

// TestWriteThenFindAreaRoundTrip exercises Write followed by FindArea on the
// verified-boot area names biossign and loem actually look up, the path
// region_test.go's FindArea tests assume but never drive through a real
// on-disk round trip.
func TestWriteThenFindAreaRoundTrip(t *testing.T) {
	const imgSize = 0x3000
	buf := make([]byte, imgSize)
	fm := &FMap{
		Header: Header{
			Signature: [8]uint8{'_', '_', 'F', 'M', 'A', 'P', '_', '_'},
			VerMajor:  1,
			VerMinor:  0,
			Size:      imgSize,
			NAreas:    2,
		},
		Areas: []Area{
			areaNamed(AreaGBB, 0x0, 0x1000),
			areaNamed(AreaVBlockA, 0x1000, 0x1000),
		},
	}
	if err := Write(bytesextra.NewReadWriteSeeker(buf), fm, &Metadata{Start: 0x2000}); err != nil {
		t.Fatal(err)
	}

	got, _, err := Read(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	area, ok := got.FindArea(AreaVBlockA)
	if !ok || area.Offset != 0x1000 || area.Size != 0x1000 {
		t.Fatalf("expected %s at (0x1000, 0x1000), got %+v ok=%v", AreaVBlockA, area, ok)
	}
}

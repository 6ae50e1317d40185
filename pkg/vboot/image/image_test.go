// Copyright 2026 the vbootsign Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package image

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempImage(t *testing.T, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "image.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestOpenReadOnlyAndCloseSuccess(t *testing.T) {
	path := writeTempImage(t, []byte("hello world"))
	im, err := Open(path, ReadOnly)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), im.Buf())
	assert.Equal(t, 11, im.Len())
	require.NoError(t, im.CloseSuccess())
}

func TestReadWriteMutationFlushesOnSuccess(t *testing.T) {
	path := writeTempImage(t, []byte("AAAAAAAAAA"))
	im, err := Open(path, ReadWrite)
	require.NoError(t, err)
	copy(im.Buf(), "BBBBB")
	require.NoError(t, im.CloseSuccess())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("BBBBBAAAAA"), got)
}

func TestReadWriteMutationDiscardedOnError(t *testing.T) {
	path := writeTempImage(t, []byte("AAAAAAAAAA"))
	im, err := Open(path, ReadWrite)
	require.NoError(t, err)
	copy(im.Buf(), "BBBBB")
	require.NoError(t, im.CloseError())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("AAAAAAAAAA"), got)
}

func TestReadWriteSeekerReflectsBuf(t *testing.T) {
	path := writeTempImage(t, []byte("0123456789"))
	im, err := Open(path, ReadOnly)
	require.NoError(t, err)
	defer im.CloseSuccess()

	rws := im.ReadWriteSeeker()
	buf := make([]byte, 4)
	_, err = rws.Seek(2, io.SeekStart)
	require.NoError(t, err)
	n, err := rws.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(buf[:n]))
}

func TestCopyThenRenameIsAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	require.NoError(t, CopyThenRename(dst, []byte("new content")))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not survive a successful rename")
}

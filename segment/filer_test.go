// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/kiyraft/journal/types"
)

func newTestFiler(t *testing.T) *Filer {
	t.Helper()
	dir := t.TempDir()
	f := NewFiler(dir, "journal", 64, log.NewNopLogger())
	require.NoError(t, f.EnsureDir())
	return f
}

func TestFilerCreateAndOpenRoundTrip(t *testing.T) {
	f := newTestFiler(t)

	created, err := f.Create(0, 1, 4096)
	require.NoError(t, err)
	require.NoError(t, created.Close())

	opened, err := f.Open(0, true, 0, 4096)
	require.NoError(t, err)
	defer opened.Close()

	require.Equal(t, types.SegmentInfo{ID: 0, Index: 1, MaxSegmentSize: 4096}, opened.Info())
}

func TestFilerListLiveAndDeleted(t *testing.T) {
	f := newTestFiler(t)

	s0, err := f.Create(0, 1, 4096)
	require.NoError(t, err)
	s1, err := f.Create(1, 200, 4096)
	require.NoError(t, err)
	defer s1.Close()

	live, err := f.ListLive()
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{0, 1}, live)

	require.NoError(t, s0.Delete())

	live, err = f.ListLive()
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1}, live)

	deleted, err := f.ListDeleted()
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{0}, deleted)
}

func TestSegmentDeferredDeleteWaitsForReaders(t *testing.T) {
	f := newTestFiler(t)
	seg, err := f.Create(0, 1, 4096)
	require.NoError(t, err)

	_, err = seg.Writer().Append(types.NoASQN, []byte("payload"), 64, false)
	require.NoError(t, err)

	r, err := seg.CreateReader()
	require.NoError(t, err)

	require.NoError(t, seg.Delete())
	require.True(t, seg.IsDeleted())

	// The file was renamed but not unlinked yet: a reader is still attached.
	_, statErr := os.Stat(filepath.Join(f.dir, "journal-0.log.deleted"))
	require.NoError(t, statErr)

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), rec.Data)

	require.NoError(t, r.Close())

	_, statErr = os.Stat(filepath.Join(f.dir, "journal-0.log.deleted"))
	require.True(t, os.IsNotExist(statErr))
}

func TestSegmentDeleteWithNoReadersIsImmediate(t *testing.T) {
	f := newTestFiler(t)
	seg, err := f.Create(0, 1, 4096)
	require.NoError(t, err)

	require.NoError(t, seg.Delete())

	_, statErr := os.Stat(filepath.Join(f.dir, "journal-0.log.deleted"))
	require.True(t, os.IsNotExist(statErr))
}

func TestFilerOpenRebuildsInvalidDescriptorOnLastSegment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal-0.log")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	require.NoError(t, err)
	require.NoError(t, file.Truncate(512))
	require.NoError(t, file.Close())

	f := NewFiler(dir, "journal", 64, log.NewNopLogger())
	seg, err := f.Open(0, true, 41, 4096)
	require.NoError(t, err)
	defer seg.Close()

	require.Equal(t, uint64(42), seg.Info().Index)
	require.Equal(t, uint32(4096), seg.Info().MaxSegmentSize)
}

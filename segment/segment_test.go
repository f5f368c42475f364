// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiyraft/journal/types"
)

func TestReaderIteratesAndSeeks(t *testing.T) {
	f := newTestFiler(t)
	seg, err := f.Create(0, 10, 1<<20)
	require.NoError(t, err)
	defer seg.Close()

	for i := 0; i < 5; i++ {
		_, err := seg.Writer().Append(types.NoASQN, []byte{byte('a' + i)}, 64, false)
		require.NoError(t, err)
	}

	r, err := seg.CreateReader()
	require.NoError(t, err)
	defer r.Close()

	var got []uint64
	for r.HasNext() {
		rec, err := r.Next()
		require.NoError(t, err)
		got = append(got, rec.Index)
	}
	require.Equal(t, []uint64{10, 11, 12, 13, 14}, got)
	require.False(t, r.HasNext())
	_, err = r.Next()
	require.ErrorIs(t, err, types.ErrNotFound)

	landed := r.Seek(12)
	require.Equal(t, uint64(12), landed)
	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(12), rec.Index)
	require.Equal(t, []byte{'c'}, rec.Data)
}

func TestReaderAfterSegmentDeleted(t *testing.T) {
	f := newTestFiler(t)
	seg, err := f.Create(0, 1, 1<<20)
	require.NoError(t, err)

	_, err = seg.Writer().Append(types.NoASQN, []byte("x"), 64, false)
	require.NoError(t, err)

	r, err := seg.CreateReader()
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, seg.Delete())

	require.False(t, r.HasNext())
	_, err = r.Next()
	require.ErrorIs(t, err, types.ErrSegmentDeleted)
}

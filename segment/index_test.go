// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSparseIndexFirstEntryAlwaysRecorded(t *testing.T) {
	idx := newSparseIndex(64)
	idx.indexRecord(5, 100)
	idx.indexRecord(6, 200) // not a density boundary, skipped

	e, ok := idx.lookup(6)
	require.True(t, ok)
	require.Equal(t, uint64(5), e.index)
	require.Equal(t, uint32(100), e.position)
}

func TestSparseIndexLookupFloor(t *testing.T) {
	idx := newSparseIndex(10)
	idx.indexRecord(0, 0)
	idx.indexRecord(10, 1000)
	idx.indexRecord(20, 2000)

	cases := []struct {
		target  uint64
		want    uint64
		wantPos uint32
	}{
		{5, 0, 0},
		{10, 10, 1000},
		{15, 10, 1000},
		{25, 20, 2000},
	}
	for _, tc := range cases {
		e, ok := idx.lookup(tc.target)
		require.True(t, ok)
		require.Equal(t, tc.want, e.index)
		require.Equal(t, tc.wantPos, e.position)
	}

	_, ok := (&sparseIndex{density: 10}).lookup(0)
	require.False(t, ok)
}

func TestSparseIndexDeleteAfter(t *testing.T) {
	idx := newSparseIndex(1)
	for i := uint64(0); i < 5; i++ {
		idx.indexRecord(i, uint32(i*10))
	}
	idx.deleteAfter(2)

	e, ok := idx.lookup(100)
	require.True(t, ok)
	require.Equal(t, uint64(2), e.index)
}

func TestSparseIndexDeleteUntil(t *testing.T) {
	idx := newSparseIndex(1)
	for i := uint64(0); i < 5; i++ {
		idx.indexRecord(i, uint32(i*10))
	}
	idx.deleteUntil(3)

	_, ok := idx.lookup(2)
	require.False(t, ok)
	e, ok := idx.lookup(3)
	require.True(t, ok)
	require.Equal(t, uint64(3), e.index)
}

func TestSparseIndexClear(t *testing.T) {
	idx := newSparseIndex(1)
	idx.indexRecord(1, 10)
	idx.clear()
	_, ok := idx.lookup(1)
	require.False(t, ok)
}

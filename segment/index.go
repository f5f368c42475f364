// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import "sort"

// indexEntry is one entry of the sparse in-memory journal index: the byte
// position within a segment of the record with the given index.
type indexEntry struct {
	index    uint64
	position uint32
}

// sparseIndex is the sparse, in-memory position map of spec §4.3. It
// records one entry every `density` records (plus always the first record
// of a segment) so that seeks don't require scanning a whole segment from
// the start. It is not thread-safe; callers serialise access the same way
// they serialise the writer.
type sparseIndex struct {
	density uint64
	entries []indexEntry
}

func newSparseIndex(density uint64) *sparseIndex {
	if density == 0 {
		density = 1
	}
	return &sparseIndex{density: density}
}

// indexRecord records (index, position) if index is a density boundary or
// this is the first entry recorded so far.
func (j *sparseIndex) indexRecord(index uint64, position uint32) {
	if len(j.entries) > 0 && index%j.density != 0 {
		return
	}
	// Entries are always appended in increasing index order by construction
	// (single writer, monotone index), so no re-sort is needed on the append
	// path itself.
	j.entries = append(j.entries, indexEntry{index: index, position: position})
}

// lookup returns the entry with the greatest index <= target, or false if
// every recorded entry has a greater index (including when the index is
// empty).
func (j *sparseIndex) lookup(target uint64) (indexEntry, bool) {
	// sort.Search finds the first entry with index > target; the entry just
	// before it is the floor we want.
	i := sort.Search(len(j.entries), func(i int) bool {
		return j.entries[i].index > target
	})
	if i == 0 {
		return indexEntry{}, false
	}
	return j.entries[i-1], true
}

// deleteAfter removes every entry with index > index (truncation).
func (j *sparseIndex) deleteAfter(index uint64) {
	i := sort.Search(len(j.entries), func(i int) bool {
		return j.entries[i].index > index
	})
	j.entries = j.entries[:i]
}

// deleteUntil removes every entry with index < index (compaction).
func (j *sparseIndex) deleteUntil(index uint64) {
	i := sort.Search(len(j.entries), func(i int) bool {
		return j.entries[i].index >= index
	})
	j.entries = j.entries[i:]
}

// clear empties the index (reset).
func (j *sparseIndex) clear() {
	j.entries = j.entries[:0]
}

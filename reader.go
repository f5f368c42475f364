// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package journal

import (
	"sync"

	"github.com/kiyraft/journal/segment"
	"github.com/kiyraft/journal/types"
)

// JournalReader is a cursor over the whole journal: it holds one
// segment.Reader at a time and transparently advances to the next segment
// once the current one is exhausted. It implements the cursor state machine
// of spec §4.8 (Fresh -> Positioned -> Exhausted, with truncate/compact/reset
// of the segment underneath an outstanding position driving it to
// Invalidated). A JournalReader is not safe for concurrent use by itself,
// though it may run alongside the journal's writer and other readers.
type JournalReader struct {
	j *Journal

	mu          sync.Mutex
	segReader   *segment.Reader
	curSegIndex uint64
	closed      bool
	invalid     bool
}

// advanceIfNeeded moves segReader onto the next live segment once the
// current one is exhausted, and detects when the segment underneath the
// reader's position has been deleted out from under it.
func (jr *JournalReader) advanceIfNeeded() error {
	for {
		if jr.segReader.SegmentDeleted() {
			return types.ErrIllegalState
		}
		if jr.segReader.HasNext() {
			return nil
		}

		s := jr.j.loadState()
		var next *segment.Segment
		for _, seg := range s.ordered() {
			if seg.Info().Index > jr.curSegIndex {
				next = seg
				break
			}
		}
		if next == nil {
			return nil
		}

		_ = jr.segReader.Close()
		nr, err := next.CreateReader()
		if err != nil {
			return err
		}
		jr.segReader = nr
		jr.curSegIndex = next.Info().Index
	}
}

// HasNext reports whether Next would return a record. It returns false both
// at a clean end of the journal and when the reader's position has been
// invalidated; callers that need to distinguish the two call Next and
// inspect the error.
func (jr *JournalReader) HasNext() bool {
	jr.mu.Lock()
	defer jr.mu.Unlock()
	if jr.closed || jr.invalid {
		return false
	}
	if err := jr.advanceIfNeeded(); err != nil {
		jr.invalid = true
		return false
	}
	return jr.segReader.HasNext()
}

// Next decodes and returns the record at the cursor, advancing past it.
func (jr *JournalReader) Next() (types.Record, error) {
	jr.mu.Lock()
	defer jr.mu.Unlock()
	if jr.closed {
		return types.Record{}, types.ErrClosed
	}
	if jr.invalid {
		return types.Record{}, types.ErrIllegalState
	}
	if err := jr.advanceIfNeeded(); err != nil {
		jr.invalid = true
		return types.Record{}, err
	}

	rec, err := jr.segReader.Next()
	if err != nil {
		if err == types.ErrSegmentDeleted {
			jr.invalid = true
			return types.Record{}, types.ErrIllegalState
		}
		if err == types.ErrCorrupt {
			jr.j.metrics.corruptRecords.Inc()
		}
		return types.Record{}, err
	}

	jr.j.metrics.entriesRead.Inc()
	jr.j.metrics.entryBytesRead.Add(float64(len(rec.Data)))
	return rec, nil
}

// Seek repositions the reader at index, returning the index it actually
// landed on: index itself, or, when index lies past the last record, the
// index just after that record. Records between sparse-index entries are
// reached by a linear scan.
func (jr *JournalReader) Seek(index uint64) (uint64, error) {
	jr.mu.Lock()
	defer jr.mu.Unlock()
	if jr.closed {
		return 0, types.ErrClosed
	}

	s := jr.j.loadState()
	seg, ok := s.segmentFor(index)
	if !ok {
		return 0, types.ErrNotFound
	}

	if seg.Info().Index != jr.curSegIndex {
		_ = jr.segReader.Close()
		nr, err := seg.CreateReader()
		if err != nil {
			return 0, err
		}
		jr.segReader = nr
		jr.curSegIndex = seg.Info().Index
	}

	landed := jr.segReader.Seek(index)
	jr.invalid = false
	return landed, nil
}

// Close releases the reader's hold on its current segment, potentially
// unblocking a deferred delete.
func (jr *JournalReader) Close() error {
	jr.mu.Lock()
	defer jr.mu.Unlock()
	if jr.closed {
		return nil
	}
	jr.closed = true
	jr.j.metrics.openReaders.Dec()
	return jr.segReader.Close()
}

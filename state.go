// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package journal

import (
	"github.com/benbjohnson/immutable"

	"github.com/kiyraft/journal/segment"
)

// state is an immutable snapshot of which segments currently make up the
// journal and in what order. It is held behind an atomic.Value so readers
// never block the writer: a reader loads the current snapshot each time it
// looks for a segment and walks it (segments.Iterator()), while the writer
// installs a new snapshot under
// writeMu on every mutation. Persistent-structure sharing (via
// benbjohnson/immutable.SortedMap) means installing a new snapshot after a
// single append is cheap even with many segments.
//
// Unlike the teacher's WAL, this state does not itself reference-count or
// finalize segments: byte-level lifetime (when it's safe to unmap and
// unlink a deleted segment's file) is tracked per-segment by
// segment.Segment's own reader registry (spec §4.6), so a reader that is
// mid-iteration over a segment keeps that segment's bytes alive even after
// the journal's segment table has moved on without it.
type state struct {
	// segments maps a segment's first index (descriptor.Index) to the
	// segment holding it, ordered ascending.
	segments *immutable.SortedMap[uint64, *segment.Segment]

	// tail is the active (writable) segment; always the one with the
	// greatest key in segments.
	tail *segment.Segment

	// nextSegmentID is the id the next created segment will receive. It is
	// monotone for the lifetime of the Journal value and is never rewound
	// by Reset (see SPEC_FULL.md §5.1): this is what keeps a second
	// deferred .log.deleted file from ever colliding on id with a live one.
	nextSegmentID uint64
}

func (s *state) clone() *state {
	return &state{
		segments:      s.segments,
		tail:          s.tail,
		nextSegmentID: s.nextSegmentID,
	}
}

// ordered returns every segment in ascending index order.
func (s *state) ordered() []*segment.Segment {
	out := make([]*segment.Segment, 0, s.segments.Len())
	it := s.segments.Iterator()
	for !it.Done() {
		_, seg, ok := it.Next()
		if !ok {
			continue
		}
		out = append(out, seg)
	}
	return out
}

func (s *state) firstIndex() uint64 {
	segs := s.ordered()
	if len(segs) == 0 {
		return 0
	}
	return segs[0].Info().Index
}

func (s *state) lastIndex() uint64 {
	if s.tail == nil {
		return 0
	}
	if idx, ok := s.tail.LastIndex(); ok {
		return idx
	}
	if s.tail.Info().Index == 0 {
		return 0
	}
	return s.tail.Info().Index - 1
}

func (s *state) isEmpty() bool {
	return s.tail == nil || s.lastIndex() < s.firstIndex()
}

// segmentFor returns the segment whose range contains index: the segment
// with the greatest descriptor.Index <= index, found by a linear scan over
// the ordered segments.
func (s *state) segmentFor(index uint64) (*segment.Segment, bool) {
	segs := s.ordered()
	var found *segment.Segment
	for _, seg := range segs {
		if seg.Info().Index > index {
			break
		}
		found = seg
	}
	if found == nil {
		return nil, false
	}
	return found, true
}

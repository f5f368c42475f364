// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import "github.com/kiyraft/journal/types"

// Reader is a cursor over one segment. Multiple readers may coexist with
// the segment's writer (spec §5); a Reader itself is not safe for
// concurrent use.
type Reader struct {
	seg *Segment
	pos int
	cur uint64
}

func (r *Reader) buf() []byte {
	r.seg.mu.Lock()
	defer r.seg.mu.Unlock()
	return r.seg.buf
}

// HasNext peeks the next frame without advancing. It returns false at a
// clean end of segment (invalid frame-type byte or insufficient space) and
// also false if the segment has been deleted since the reader last made
// progress (callers should then call Next to observe the error).
func (r *Reader) HasNext() bool {
	if r.seg.IsDeleted() {
		return false
	}
	buf := r.buf()
	if buf == nil {
		return false
	}
	_, outcome := readRecord(buf, r.pos, nil)
	return outcome == readOK
}

// Next decodes the record at the cursor and advances past it. It returns
// types.ErrSegmentDeleted if the owning segment was deleted since the
// reader's last call, types.ErrNotFound at a clean end of segment, and
// types.ErrCorrupt if the frame fails validation (which should not happen
// on a segment that survived recovery, but is checked defensively since
// readers may race a concurrent truncate -- see the lazy-invalidation note
// in DESIGN.md).
func (r *Reader) Next() (types.Record, error) {
	if r.seg.IsDeleted() {
		return types.Record{}, types.ErrSegmentDeleted
	}
	buf := r.buf()
	if buf == nil {
		return types.Record{}, types.ErrSegmentDeleted
	}

	expected := r.cur
	rec, outcome := readRecord(buf, r.pos, &expected)
	switch outcome {
	case readOK:
		r.pos += encodedLen(len(rec.Data))
		r.cur++
		return rec, nil
	case readEndOfSegment:
		return types.Record{}, types.ErrNotFound
	default:
		return types.Record{}, types.ErrCorrupt
	}
}

// Seek positions the reader at the given index using the segment's sparse
// index to jump near, then linear-scanning. If index exceeds the segment's
// range the reader is positioned at the end (HasNext will be false). It
// returns the index the reader actually landed on.
func (r *Reader) Seek(index uint64) uint64 {
	if pos, ok := r.seg.writer.Position(index); ok {
		r.pos = int(pos)
		buf := r.buf()
		if buf != nil {
			if fh := peekHeader(buf, r.pos); fh != nil {
				r.cur = fh.index
			}
		}
	} else {
		r.pos = descriptorLen
		r.cur = r.seg.info.Index
	}

	for r.cur < index {
		buf := r.buf()
		if buf == nil {
			break
		}
		fh := peekHeader(buf, r.pos)
		if fh == nil {
			break
		}
		r.pos += frameHeaderLen + int(fh.length)
		r.cur++
	}
	return r.cur
}

// Reset repositions the reader to just past the descriptor.
func (r *Reader) Reset() {
	r.pos = descriptorLen
	r.cur = r.seg.info.Index
}

// SegmentDeleted reports whether the segment backing this reader has been
// marked for deletion. A journal-level reader consults this to distinguish
// "this segment is gone, stop" from an ordinary end-of-segment.
func (r *Reader) SegmentDeleted() bool {
	return r.seg.IsDeleted()
}

// Close notifies the owning segment that this reader is done, which may
// trigger a deferred delete.
func (r *Reader) Close() error {
	r.seg.onReaderClosed(r)
	return nil
}

// peekHeader decodes the frame header at pos, returning nil if there is no
// valid frame there.
func peekHeader(buf []byte, pos int) *frameHeader {
	if pos < 0 || pos+frameHeaderLen > len(buf) {
		return nil
	}
	fh := readFrameHeader(buf[pos:])
	if fh.frameType != recordFrameType {
		return nil
	}
	return &fh
}

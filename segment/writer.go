// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"fmt"
	"hash/crc32"

	"github.com/kiyraft/journal/types"
)

// Writer owns the mapped buffer of one segment and the rightmost append
// cursor. There is at most one Writer per segment and at most one segment
// with an active Writer per journal (the tail); all mutation is expected to
// be serialised by the caller (spec §5).
type Writer struct {
	buf       []byte
	baseIndex uint64 // descriptor.Index: first index this segment may hold
	pos       int    // cursor: byte offset of the next frame to write
	next      uint64 // index the next appended record will receive
	hasRecord bool   // whether any record has ever been written (next-1 valid)
	idx       *sparseIndex
}

// newWriter constructs a Writer for a brand-new, empty segment.
func newWriter(buf []byte, baseIndex uint64, density uint64) *Writer {
	return &Writer{
		buf:       buf,
		baseIndex: baseIndex,
		pos:       descriptorLen,
		next:      baseIndex,
		idx:       newSparseIndex(density),
	}
}

// recoverWriter scans buf forward from the descriptor, validating every
// frame, and returns a Writer positioned at the end of the valid prefix.
//
// Validation stops at the first invalid frame-type byte (clean EOF) or at
// the first frame that fails checksum or index-contiguity validation. In
// the latter case, if the failing frame's index is <= lastWrittenIndex the
// failure is fatal (types.ErrCorruptedLog); otherwise it is a torn tail and
// is silently discarded, with the terminating byte stamped invalid so the
// segment reads as ending exactly at the last good frame.
func recoverWriter(buf []byte, desc descriptor, density uint64, lastWrittenIndex uint64) (*Writer, error) {
	pos := descriptorLen
	expected := desc.Index
	idx := newSparseIndex(density)

	for {
		if pos+frameHeaderLen > len(buf) {
			break
		}
		fh := readFrameHeader(buf[pos:])
		if fh.frameType != recordFrameType {
			break
		}

		corrupt := false
		var end int
		if fh.length > MaxEntrySize {
			corrupt = true
		} else {
			end = pos + frameHeaderLen + int(fh.length)
			if end > len(buf) {
				corrupt = true
			} else if crc32.ChecksumIEEE(buf[pos+frameHeaderLen:end]) != fh.checksum {
				corrupt = true
			} else if fh.index != expected {
				corrupt = true
			}
		}

		if corrupt {
			if fh.index <= lastWrittenIndex {
				return nil, fmt.Errorf("%w: segment index %d, record index %d", types.ErrCorruptedLog, desc.ID, fh.index)
			}
			// Torn tail: discard, terminate the segment at pos.
			buf[pos] = invalidFrameType
			break
		}

		idx.indexRecord(fh.index, uint32(pos))
		pos = end
		expected++
	}

	w := &Writer{
		buf:       buf,
		baseIndex: desc.Index,
		pos:       pos,
		next:      expected,
		hasRecord: expected > desc.Index,
		idx:       idx,
	}
	return w, nil
}

// Append encodes (asqn, payload) as the next record, returning the
// assigned Record. It returns types.ErrSegmentFull if the frame does not
// fit in the remaining space; callers must roll over and retry.
func (w *Writer) Append(asqn int64, payload []byte, density uint64, flush bool) (types.Record, error) {
	index := w.next
	n, err := writeRecord(w.buf, w.pos, index, asqn, payload)
	if err != nil {
		return types.Record{}, err
	}

	w.idx.indexRecord(index, uint32(w.pos))
	start := w.pos
	w.pos += n
	w.next++
	w.hasRecord = true

	if flush {
		if err := msync(w.buf, start, w.pos); err != nil {
			return types.Record{}, fmt.Errorf("%w: %s", types.ErrIOFailure, err)
		}
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	return types.Record{
		Index:    index,
		ASQN:     asqn,
		Checksum: crc32.ChecksumIEEE(payload),
		Data:     data,
	}, nil
}

// AppendRecord appends a caller-supplied record (the replication path). It
// fails with types.ErrInvalidIndex if record.Index != w.NextIndex(), and
// with types.ErrInvalidChecksum if the supplied checksum does not match
// CRC32(payload).
func (w *Writer) AppendRecord(rec types.Record, flush bool) error {
	if rec.Index != w.next {
		return types.ErrInvalidIndex
	}
	if crc32.ChecksumIEEE(rec.Data) != rec.Checksum {
		return types.ErrInvalidChecksum
	}
	n, err := writeRecord(w.buf, w.pos, rec.Index, rec.ASQN, rec.Data)
	if err != nil {
		return err
	}
	w.idx.indexRecord(rec.Index, uint32(w.pos))
	start := w.pos
	w.pos += n
	w.next++
	w.hasRecord = true
	if flush {
		if err := msync(w.buf, start, w.pos); err != nil {
			return fmt.Errorf("%w: %s", types.ErrIOFailure, err)
		}
	}
	return nil
}

// Remaining returns the number of bytes left in the mapped buffer.
func (w *Writer) Remaining() int {
	return len(w.buf) - w.pos
}

// Truncate positions the cursor just past the frame whose index == index
// (or at the start of the segment if index < baseIndex), stamps the next
// frame-type byte invalid, and discards index entries above it.
func (w *Writer) Truncate(index uint64) {
	if index < w.baseIndex {
		w.pos = descriptorLen
		w.next = w.baseIndex
		w.hasRecord = false
		w.idx.clear()
		if w.pos < len(w.buf) {
			w.buf[w.pos] = invalidFrameType
		}
		return
	}

	entry, ok := w.idx.lookup(index)
	scanPos := descriptorLen
	scanIdx := w.baseIndex
	if ok && entry.index <= index {
		scanPos = int(entry.position)
		scanIdx = entry.index
	}
	for scanIdx <= index {
		if scanPos+frameHeaderLen > len(w.buf) {
			break
		}
		fh := readFrameHeader(w.buf[scanPos:])
		if fh.frameType != recordFrameType {
			break
		}
		scanPos += frameHeaderLen + int(fh.length)
		scanIdx++
	}

	w.pos = scanPos
	w.next = index + 1
	w.hasRecord = true
	w.idx.deleteAfter(index)
	if w.pos < len(w.buf) {
		w.buf[w.pos] = invalidFrameType
	}
}

// Reset sets the cursor back to just past the descriptor and clears the
// segment index, as if the segment were brand new with the given base
// index. Journal.Reset does not call it; it creates a new segment instead.
func (w *Writer) Reset(toIndex uint64) {
	w.baseIndex = toIndex
	w.pos = descriptorLen
	w.next = toIndex
	w.hasRecord = false
	w.idx.clear()
	if w.pos < len(w.buf) {
		w.buf[w.pos] = invalidFrameType
	}
}

// LastIndex returns the index of the last written record, and whether any
// record has been written at all.
func (w *Writer) LastIndex() (uint64, bool) {
	if !w.hasRecord {
		return 0, false
	}
	return w.next - 1, true
}

// NextIndex returns the index the next Append will assign.
func (w *Writer) NextIndex() uint64 { return w.next }

// Position returns the byte offset of an already-indexed record floor for
// the given target index, for use by Reader.Seek.
func (w *Writer) Position(target uint64) (uint32, bool) {
	e, ok := w.idx.lookup(target)
	if !ok {
		return 0, false
	}
	return e.position, true
}

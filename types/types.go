// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package types holds the value types and sentinel errors shared between the
// journal and segment packages so that neither has to import the other.
package types

// Record is the logical unit of the journal: a payload associated with a
// monotonically increasing index and an opaque, caller-supplied application
// sequence number.
type Record struct {
	// Index is this record's position in the journal. Indexes are strictly
	// monotone and contiguous starting at the journal's first index.
	Index uint64

	// ASQN is the application sequence number supplied by the caller, or -1
	// if none was supplied. The journal does not interpret or enforce
	// monotonicity of this field; it is opaque storage for the caller.
	ASQN int64

	// Checksum is the CRC32 (IEEE polynomial) of Data, as stored on disk.
	Checksum uint32

	// Data is the opaque record payload.
	Data []byte
}

// NoASQN is the sentinel ASQN value meaning "none supplied".
const NoASQN int64 = -1

// SegmentInfo identifies a segment without reference to any open file or
// buffer: just enough to name it on disk and locate it in the ordered
// sequence of segments that make up a journal.
type SegmentInfo struct {
	// ID is monotonically increasing across the lifetime of a journal. It is
	// part of the segment's file name and is never reused.
	ID uint64

	// Index is the index of the first record this segment may hold (or the
	// next index to be written, if the segment is empty).
	Index uint64

	// MaxSegmentSize is the capacity in bytes of the segment's mapped
	// region, including the descriptor.
	MaxSegmentSize uint32
}

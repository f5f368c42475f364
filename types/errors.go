// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package types

import "errors"

// Sentinel errors surfaced across the journal/segment boundary. See spec §7
// for the full error-kind catalogue; these are the ones collaborators need
// to test against with errors.Is.
var (
	// ErrNotFound is returned when a requested index does not exist in the
	// journal (neither in a live segment nor in the sparse index).
	ErrNotFound = errors.New("journal: index not found")

	// ErrCorrupt is returned by the record codec when a frame's metadata or
	// payload checksum does not validate, or its decoded index does not
	// match what the caller expected.
	ErrCorrupt = errors.New("journal: corrupt record frame")

	// ErrSealed names an attempt to write to a segment that has been marked
	// for deletion. No function in this module returns it.
	ErrSealed = errors.New("journal: segment is sealed")

	// ErrClosed is returned by any journal or reader method called after
	// Close.
	ErrClosed = errors.New("journal: closed")

	// ErrInvalidIndex is returned by Append(Record) when the supplied
	// index is not exactly one greater than the journal's last index.
	ErrInvalidIndex = errors.New("journal: record index is not contiguous with the log")

	// ErrInvalidChecksum is returned by Append(Record) when the supplied
	// checksum does not match CRC32(payload).
	ErrInvalidChecksum = errors.New("journal: record checksum does not match payload")

	// ErrCorruptedLog is a fatal error: the journal refuses to open because
	// a descriptor or frame at or below the configured lastWrittenIndex is
	// invalid.
	ErrCorruptedLog = errors.New("journal: corruption detected at or below the acknowledged index")

	// ErrSegmentFull is an internal, non-fatal signal that the active
	// segment has no room for another record; it triggers rollover. Journal's
	// Append and AppendRecord return it only when the record does not fit
	// even in the freshly rolled-over, empty segment.
	ErrSegmentFull = errors.New("journal: segment is full")

	// ErrSegmentDeleted is returned by a reader whose owning segment was
	// deleted (by truncate, compact or reset) since the reader last made
	// progress.
	ErrSegmentDeleted = errors.New("journal: segment was deleted")

	// ErrIllegalState is returned by a reader used after the journal it
	// reads from has been reset, or whose cursor has been invalidated by a
	// truncation.
	ErrIllegalState = errors.New("journal: reader is in an invalid state")

	// ErrIOFailure wraps an unexpected I/O error (rename, unmap, fsync) as
	// a journal-level failure.
	ErrIOFailure = errors.New("journal: i/o failure")

	// ErrOutOfDisk is returned by Append when free space on the journal's
	// filesystem is already below the configured freeDiskSpace floor. The
	// size of the record being appended is not taken into account.
	ErrOutOfDisk = errors.New("journal: insufficient free disk space")
)

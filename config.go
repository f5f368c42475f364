// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package journal

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultSegmentSize is used when WithSegmentSize is not supplied.
	DefaultSegmentSize = 64 * 1024 * 1024

	// DefaultName is the segment file-name prefix used when WithName is not
	// supplied.
	DefaultName = "journal"

	// DefaultJournalIndexDensity is used when WithJournalIndexDensity is not
	// supplied: one sparse-index entry every 64 records.
	DefaultJournalIndexDensity = 64
)

// options collects every configurable knob spec §6 names.
type options struct {
	name                string
	segmentSize         uint32
	journalIndexDensity uint64
	lastWrittenIndex    uint64
	flushExplicitly     bool
	freeDiskSpace       uint64

	logger log.Logger
	reg    prometheus.Registerer
}

func defaultOptions() options {
	return options{
		name:                DefaultName,
		segmentSize:         DefaultSegmentSize,
		journalIndexDensity: DefaultJournalIndexDensity,
		logger:              log.NewNopLogger(),
		reg:                 prometheus.NewRegistry(),
	}
}

// Option configures Open.
type Option func(*options)

// WithName sets the segment file-name prefix. Default "journal".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithSegmentSize sets the capacity, in bytes including the descriptor, of
// each segment file. Default 64MiB.
func WithSegmentSize(size uint32) Option {
	return func(o *options) { o.segmentSize = size }
}

// WithJournalIndexDensity sets how many records separate consecutive
// entries in each segment's sparse index. Default 64.
func WithJournalIndexDensity(density uint64) Option {
	return func(o *options) { o.journalIndexDensity = density }
}

// WithLastWrittenIndex sets the acknowledged-to-replication upper bound:
// corruption discovered at or below this index during recovery is fatal
// (types.ErrCorruptedLog) rather than treated as a torn tail.
func WithLastWrittenIndex(index uint64) Option {
	return func(o *options) { o.lastWrittenIndex = index }
}

// WithFlushExplicitly causes every Append to fsync (msync) the touched page
// range before returning. Default false (rely on the OS and on recovery's
// torn-tail tolerance).
func WithFlushExplicitly(flush bool) Option {
	return func(o *options) { o.flushExplicitly = flush }
}

// WithFreeDiskSpace sets the minimum number of bytes that must remain free
// on the journal's filesystem; Append fails with types.ErrOutOfDisk once free
// space is below it. The check runs before each append and does not count
// the bytes that append is about to write.
func WithFreeDiskSpace(bytes uint64) Option {
	return func(o *options) { o.freeDiskSpace = bytes }
}

// WithLogger sets the go-kit logger used for recoverable anomalies and
// lifecycle events. Default: discard everything.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegisterer sets the Prometheus registerer metrics are registered
// against. Default: a private registry (so opening multiple journals in one
// process, e.g. in tests, never collides).
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		if reg != nil {
			o.reg = reg
		}
	}
}

// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type journalMetrics struct {
	bytesWritten          prometheus.Counter
	entriesWritten        prometheus.Counter
	appends               prometheus.Counter
	entryBytesRead        prometheus.Counter
	entriesRead           prometheus.Counter
	segmentRotations      prometheus.Counter
	segmentsCreated       prometheus.Counter
	segmentsDeleted       prometheus.Counter
	compactions           prometheus.Counter
	resets                prometheus.Counter
	corruptRecords        prometheus.Counter
	openReaders           prometheus.Gauge
	entriesTruncated      *prometheus.CounterVec
	truncations           *prometheus.CounterVec
	lastSegmentAgeSeconds prometheus.Gauge
}

func newJournalMetrics(reg prometheus.Registerer) *journalMetrics {
	return &journalMetrics{
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "entry_bytes_written",
			Help: "entry_bytes_written counts the bytes of log entry after encoding." +
				" Actual bytes written to disk might be slightly higher as it" +
				" includes frame headers.",
		}),
		entriesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "entries_written",
			Help: "entries_written counts the number of entries written.",
		}),
		appends: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "appends",
			Help: "appends counts the number of calls to Append.",
		}),
		entryBytesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "entry_bytes_read",
			Help: "entry_bytes_read counts the bytes of log entry read from" +
				" segments before decoding.",
		}),
		entriesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "entries_read",
			Help: "entries_read counts the number of calls to Reader.Next.",
		}),
		segmentRotations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "segment_rotations",
			Help: "segment_rotations counts how many times we move to a new segment file.",
		}),
		segmentsCreated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "segments_created",
			Help: "segments_created counts every segment file created, including the first.",
		}),
		segmentsDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "segments_deleted",
			Help: "segments_deleted counts every segment file removed by truncation, compaction or reset.",
		}),
		compactions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "compactions",
			Help: "compactions counts calls to DeleteUntil.",
		}),
		resets: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "resets",
			Help: "resets counts calls to Reset.",
		}),
		corruptRecords: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "corrupt_records_detected",
			Help: "corrupt_records_detected counts frames that failed checksum or index validation during reads through a JournalReader.",
		}),
		openReaders: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "open_reader_count",
			Help: "open_reader_count is the number of JournalReaders currently open.",
		}),
		entriesTruncated: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "entries_truncated",
				Help: "entries_truncated counts how many log entries have been truncated" +
					" from the front or back.",
			},
			[]string{"type"},
		),
		truncations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "truncations",
				Help: "truncations is the number of truncate calls categorized by whether" +
					" the call was successful or not.",
			},
			[]string{"type", "success"},
		),
		lastSegmentAgeSeconds: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "last_segment_age_seconds",
			Help: "last_segment_age_seconds is a gauge that is set each time we" +
				" rotate a segment and describes the number of seconds between when" +
				" that segment file was first created and when it was sealed.",
		}),
	}
}

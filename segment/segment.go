// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/kiyraft/journal/types"
)

// Segment binds a segment's descriptor, memory-mapped buffer, writer and
// open readers into one ownership unit (spec §4.6). Deletion is two-phase:
// delete() renames the file and, if readers remain, defers unmapping and
// unlinking until the last one closes.
type Segment struct {
	mu sync.Mutex

	info   types.SegmentInfo
	path   string
	file   *os.File
	buf    []byte
	writer *Writer

	readers map[*Reader]struct{}

	open              bool
	markedForDeletion bool
	deletedPath       string

	logger log.Logger
}

// Info returns the segment's identity.
func (s *Segment) Info() types.SegmentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Writer returns the segment's writer. It is only safe to append through it
// for the journal's current tail segment.
func (s *Segment) Writer() *Writer {
	return s.writer
}

// LastIndex reports the last index held by this segment.
func (s *Segment) LastIndex() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.LastIndex()
}

// IsDeleted reports whether this segment has been marked for deletion
// (by truncate, compact or reset). Readers consult this lazily, per spec §9.
func (s *Segment) IsDeleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markedForDeletion
}

// CreateReader registers and returns a new Reader positioned at the start
// of the segment. It is forbidden after Close.
func (s *Segment) CreateReader() (*Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, types.ErrClosed
	}
	r := &Reader{seg: s, pos: descriptorLen, cur: s.info.Index}
	s.readers[r] = struct{}{}
	return r, nil
}

// onReaderClosed removes r from the live set and, if the segment is marked
// for deletion and no readers remain, finishes the deferred delete.
func (s *Segment) onReaderClosed(r *Reader) {
	s.mu.Lock()
	delete(s.readers, r)
	finish := s.markedForDeletion && len(s.readers) == 0
	s.mu.Unlock()

	if finish {
		s.finishDelete()
	}
}

// Delete marks the segment for deletion: it renames the backing file from
// .log to .log.deleted atomically. If no readers are attached the bytes are
// removed immediately; otherwise removal is deferred to the last reader's
// Close.
func (s *Segment) Delete() error {
	s.mu.Lock()
	if s.markedForDeletion {
		s.mu.Unlock()
		return nil
	}
	s.markedForDeletion = true
	deletedPath := s.path + deletedSuffix
	nReaders := len(s.readers)
	s.mu.Unlock()

	if err := os.Rename(s.path, deletedPath); err != nil {
		return fmt.Errorf("%w: rename %s: %s", types.ErrIOFailure, s.path, err)
	}
	if err := syncParentDir(s.path); err != nil {
		level.Error(s.logger).Log("msg", "failed to fsync directory after segment rename", "err", err)
	}

	s.mu.Lock()
	s.deletedPath = deletedPath
	s.mu.Unlock()

	if nReaders == 0 {
		return s.finishDelete()
	}
	return nil
}

// finishDelete unmaps the buffer and unlinks the renamed file. It is called
// once, either immediately by Delete or later by onReaderClosed.
func (s *Segment) finishDelete() error {
	s.mu.Lock()
	buf := s.buf
	path := s.deletedPath
	f := s.file
	s.buf = nil
	s.mu.Unlock()

	var errs []error
	if buf != nil {
		if err := munmap(buf); err != nil {
			errs = append(errs, err)
		}
	}
	if f != nil {
		_ = f.Close()
	}
	if path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", types.ErrIOFailure, errs)
	}
	return nil
}

// Close invalidates every reader still attached to this segment (their next
// call observes types.ErrSegmentDeleted, since the buffer they read from is
// gone) and unmaps the buffer. It does not delete the file.
func (s *Segment) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	buf := s.buf
	f := s.file
	s.buf = nil
	s.readers = make(map[*Reader]struct{})
	s.mu.Unlock()

	var err error
	if buf != nil {
		err = munmap(buf)
	}
	if f != nil {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrIOFailure, err)
	}
	return nil
}

// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-kit/log"

	"github.com/kiyraft/journal/types"
)

const (
	logSuffix     = ".log"
	deletedSuffix = ".deleted"
)

// Filer creates, opens, lists and deletes the segment files of one journal
// directory. The journal uses it directly; there is no interface in front
// of it.
type Filer struct {
	dir     string
	name    string
	density uint64
	logger  log.Logger
}

// NewFiler returns a Filer rooted at dir, naming segments "<name>-<id>.log".
func NewFiler(dir, name string, density uint64, logger log.Logger) *Filer {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Filer{dir: dir, name: name, density: density, logger: logger}
}

func (f *Filer) fileName(id uint64) string {
	return fmt.Sprintf("%s-%d%s", f.name, id, logSuffix)
}

func (f *Filer) path(id uint64) string {
	return filepath.Join(f.dir, f.fileName(id))
}

// IsSegmentFile reports whether name is a live (non-deleted) segment file
// belonging to this filer's journal.
func (f *Filer) IsSegmentFile(name string) (id uint64, ok bool) {
	prefix := f.name + "-"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, logSuffix) {
		return 0, false
	}
	if strings.HasSuffix(name, logSuffix+deletedSuffix) {
		return 0, false
	}
	idStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), logSuffix)
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsDeletedSegmentFile reports whether name is a segment file marked for
// deletion belonging to this filer's journal.
func (f *Filer) IsDeletedSegmentFile(name string) (id uint64, ok bool) {
	prefix := f.name + "-"
	suffix := logSuffix + deletedSuffix
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	idStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// EnsureDir creates the journal directory if it does not already exist.
func (f *Filer) EnsureDir() error {
	return os.MkdirAll(f.dir, 0o755)
}

// ListLive returns the ids of every live (.log) segment file, sorted
// ascending.
func (f *Filer) ListLive() ([]uint64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := f.IsSegmentFile(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ListDeleted returns the ids of every .log.deleted file.
func (f *Filer) ListDeleted() ([]uint64, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := f.IsDeletedSegmentFile(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// RemoveDeleted unconditionally unlinks the .log.deleted file for id, used
// during recovery to sweep up stale deferred deletes left by a prior
// process that never had readers attach.
func (f *Filer) RemoveDeleted(id uint64) error {
	p := f.path(id) + deletedSuffix
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Create creates a brand-new segment file with the given id, index and
// capacity, writes its descriptor, and maps it.
func (f *Filer) Create(id, index uint64, maxSegmentSize uint32) (*Segment, error) {
	path := f.path(id)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}

	buf, err := mmapFile(file, int(maxSegmentSize))
	if err != nil {
		file.Close()
		return nil, err
	}

	desc := newDescriptor(id, index, maxSegmentSize)
	desc.encode(buf[:descriptorLen])

	if err := syncParentDir(path); err != nil {
		f.logger.Log("msg", "failed to fsync directory after segment create", "err", err)
	}

	info := types.SegmentInfo{ID: id, Index: index, MaxSegmentSize: maxSegmentSize}
	return &Segment{
		info:    info,
		path:    path,
		file:    file,
		buf:     buf,
		writer:  newWriter(buf, index, f.density),
		readers: make(map[*Reader]struct{}),
		open:    true,
		logger:  f.logger,
	}, nil
}

// Open opens an existing segment file by id, validates and, if necessary,
// rebuilds its descriptor, runs the writer recovery scan, and maps it.
// lastWrittenIndex is the acknowledged-to-replication bound from spec §4.4:
// corruption at or below it is fatal.
func (f *Filer) Open(id uint64, isLast bool, lastWrittenIndex uint64, configuredMaxSegmentSize uint32) (*Segment, error) {
	path := f.path(id)
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	size := fi.Size()
	if size < descriptorLen {
		if err := file.Truncate(descriptorLen); err != nil {
			file.Close()
			return nil, err
		}
		size = descriptorLen
	}

	buf, err := mmapFile(file, int(size))
	if err != nil {
		file.Close()
		return nil, err
	}

	desc, derr := readDescriptor(buf)
	if derr != nil {
		// Partially-written descriptor: only acceptable on the last segment
		// if it also contains no frames.
		if !isLast || !isAllZero(buf[descriptorLen:minInt(len(buf), descriptorLen+frameHeaderLen)]) {
			munmap(buf)
			file.Close()
			return nil, fmt.Errorf("%w: segment %d has an invalid descriptor", types.ErrCorruptedLog, id)
		}

		wantSize := configuredMaxSegmentSize
		if int(wantSize) < len(buf) {
			wantSize = uint32(len(buf))
		}
		if int(wantSize) != len(buf) {
			if err := munmap(buf); err != nil {
				file.Close()
				return nil, err
			}
			buf, err = mmapFile(file, int(wantSize))
			if err != nil {
				file.Close()
				return nil, err
			}
		}

		desc = newDescriptor(id, lastWrittenIndex+1, wantSize)
		desc.encode(buf[:descriptorLen])
	}

	writer, werr := recoverWriter(buf, desc, f.density, lastWrittenIndex)
	if werr != nil {
		munmap(buf)
		file.Close()
		return nil, werr
	}

	info := types.SegmentInfo{ID: desc.ID, Index: desc.Index, MaxSegmentSize: desc.MaxSegmentSize}
	return &Segment{
		info:    info,
		path:    path,
		file:    file,
		buf:     buf,
		writer:  writer,
		readers: make(map[*Reader]struct{}),
		open:    true,
		logger:  f.logger,
	}, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// syncParentDir fsyncs the directory containing path so that a rename or
// create is durable even if the process crashes immediately after.
func syncParentDir(path string) error {
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}

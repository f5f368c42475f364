// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package journal

import (
	"fmt"
	"time"

	"github.com/benbjohnson/immutable"
	"github.com/go-kit/log/level"

	"github.com/kiyraft/journal/segment"
)

// recover implements the directory-scan half of spec §4.7's open algorithm:
// it sweeps stale deferred deletes, opens every live segment (validating or
// rebuilding its descriptor and recovering its writer per segment.Filer.Open)
// and, if the directory held no segments at all, creates the first one at
// index 1.
func (j *Journal) recover() (*state, error) {
	deletedIDs, err := j.filer.ListDeleted()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIOFailure, err)
	}
	// Cold open: no reader could possibly still be attached to a deferred
	// delete from a prior process, so every .log.deleted file left over is
	// swept immediately (spec §4.6).
	for _, id := range deletedIDs {
		if err := j.filer.RemoveDeleted(id); err != nil {
			level.Warn(j.logger).Log("msg", "failed to sweep stale deleted segment", "id", id, "err", err)
		}
	}

	liveIDs, err := j.filer.ListLive()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIOFailure, err)
	}

	m := &immutable.SortedMap[uint64, *segment.Segment]{}
	var segs []*segment.Segment
	var nextSegmentID uint64

	for i, id := range liveIDs {
		isLast := i == len(liveIDs)-1
		seg, err := j.filer.Open(id, isLast, j.opts.lastWrittenIndex, j.opts.segmentSize)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
		m = m.Set(seg.Info().Index, seg)
		// The true creation time of a segment recovered from a prior process
		// is lost; seeding it at open time means lastSegmentAgeSeconds only
		// reflects rotations that happen in this process's lifetime.
		j.segCreatedAt[id] = time.Now()
		if id+1 > nextSegmentID {
			nextSegmentID = id + 1
		}
	}

	if len(segs) == 0 {
		seg, err := j.filer.Create(0, 1, j.opts.segmentSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrIOFailure, err)
		}
		segs = append(segs, seg)
		m = m.Set(seg.Info().Index, seg)
		j.segCreatedAt[0] = time.Now()
		nextSegmentID = 1
		j.metrics.segmentsCreated.Inc()
	}

	return &state{
		segments:      m,
		tail:          segs[len(segs)-1],
		nextSegmentID: nextSegmentID,
	}, nil
}

// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package journal

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// writeTornFrame writes a syntactically valid frame header for index at
// offset pos whose checksum does not match its payload, simulating a crash
// that wrote the header but not all of the payload bytes.
func writeTornFrame(t *testing.T, path string, pos int64, index uint64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	frame := make([]byte, 25+4)
	frame[0] = 0x01 // recordFrameType
	binary.LittleEndian.PutUint32(frame[1:5], 0xDEADBEEF)
	binary.LittleEndian.PutUint32(frame[5:9], 4)
	binary.LittleEndian.PutUint64(frame[9:17], index)
	binary.LittleEndian.PutUint64(frame[17:25], 0)
	copy(frame[25:], []byte{1, 2, 3, 4})

	_, err = f.WriteAt(frame, pos)
	require.NoError(t, err)
}

func openTestJournal(t *testing.T, opts ...Option) (*Journal, string) {
	t.Helper()
	dir := t.TempDir()
	allOpts := append([]Option{WithRegisterer(prometheus.NewRegistry())}, opts...)
	j, err := Open(dir, allOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, dir
}

// TestAppendAndReadThreeRecords covers spec's first testable scenario: what
// goes in by index comes back out in order with matching payload and ASQN.
func TestAppendAndReadThreeRecords(t *testing.T) {
	j, _ := openTestJournal(t)

	for i := 0; i < 3; i++ {
		rec, err := j.Append(int64(i), []byte{byte('a' + i)})
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), rec.Index)
	}
	require.Equal(t, uint64(1), j.GetFirstIndex())
	require.Equal(t, uint64(3), j.GetLastIndex())

	r, err := j.OpenReader()
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < 3; i++ {
		require.True(t, r.HasNext())
		rec, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), rec.Index)
		require.Equal(t, int64(i), rec.ASQN)
		require.Equal(t, []byte{byte('a' + i)}, rec.Data)
	}
	require.False(t, r.HasNext())
}

// TestRolloverBySize covers spec's second testable scenario: a segment size
// small enough that a handful of appends force at least one rollover, and
// the record stream stays contiguous across the new segment boundary.
func TestRolloverBySize(t *testing.T) {
	j, _ := openTestJournal(t, WithSegmentSize(256))

	const n = 50
	for i := 0; i < n; i++ {
		rec, err := j.Append(NoASQN, []byte("abcdefgh"))
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), rec.Index)
	}

	require.Greater(t, j.Stats().SegmentCount, 1)

	r, err := j.OpenReader()
	require.NoError(t, err)
	defer r.Close()
	count := 0
	for r.HasNext() {
		rec, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, uint64(count+1), rec.Index)
		count++
	}
	require.Equal(t, n, count)
}

// TestFlushExplicitlyMsyncsEveryAppend exercises the WithFlushExplicitly
// path (spec §4.7's flush policy): every append's touched page range must
// be msync'd successfully even though the touched offsets are rarely
// page-aligned.
func TestFlushExplicitlyMsyncsEveryAppend(t *testing.T) {
	j, _ := openTestJournal(t, WithSegmentSize(256), WithFlushExplicitly(true))

	const n = 30
	for i := 0; i < n; i++ {
		rec, err := j.Append(NoASQN, []byte("abcdefgh"))
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), rec.Index)
	}

	r, err := j.OpenReader()
	require.NoError(t, err)
	defer r.Close()
	count := 0
	for r.HasNext() {
		_, err := r.Next()
		require.NoError(t, err)
		count++
	}
	require.Equal(t, n, count)
}

// TestTruncateThenAppendSameIndex covers spec's third scenario: DeleteAfter
// followed by an Append that reuses the truncated index must succeed and
// the reader must observe the new value, not the discarded one.
func TestTruncateThenAppendSameIndex(t *testing.T) {
	j, _ := openTestJournal(t)

	for i := 0; i < 5; i++ {
		_, err := j.Append(NoASQN, []byte{byte('a' + i)})
		require.NoError(t, err)
	}

	require.NoError(t, j.DeleteAfter(2))
	require.Equal(t, uint64(2), j.GetLastIndex())

	rec, err := j.Append(NoASQN, []byte("replacement"))
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.Index)

	r, err := j.OpenReader()
	require.NoError(t, err)
	defer r.Close()

	// Scenario 3 requires indexes 1 and 2 to still be readable from the
	// start, not just the replacement at 3.
	first, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Index)
	require.Equal(t, []byte{'a'}, first.Data)

	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(2), second.Index)
	require.Equal(t, []byte{'b'}, second.Data)

	_, err = r.Seek(3)
	require.NoError(t, err)
	got, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("replacement"), got.Data)
}

// TestCompactPreservesLastSegment covers spec's fourth scenario: DeleteUntil
// never removes the active tail segment even when its whole range is at or
// below the compaction point.
func TestCompactPreservesLastSegment(t *testing.T) {
	j, _ := openTestJournal(t, WithSegmentSize(256))

	const n = 60
	for i := 0; i < n; i++ {
		_, err := j.Append(NoASQN, []byte("abcdefgh"))
		require.NoError(t, err)
	}
	before := j.Stats().SegmentCount
	require.Greater(t, before, 1)

	require.NoError(t, j.DeleteUntil(uint64(n)))

	after := j.Stats().SegmentCount
	require.GreaterOrEqual(t, after, 1)
	require.Equal(t, uint64(n), j.GetLastIndex())
	require.LessOrEqual(t, j.GetFirstIndex(), uint64(n))
}

// TestDeferredDeletionObservableOnDisk covers spec's fifth scenario: a
// segment removed by DeleteUntil is renamed to .log.deleted while a reader
// still holds it open, and only unlinked once that reader closes.
func TestDeferredDeletionObservableOnDisk(t *testing.T) {
	j, dir := openTestJournal(t, WithSegmentSize(256), WithName("journal"))

	const n = 40
	for i := 0; i < n; i++ {
		_, err := j.Append(NoASQN, []byte("abcdefgh"))
		require.NoError(t, err)
	}
	require.Greater(t, j.Stats().SegmentCount, 1)

	r, err := j.OpenReader()
	require.NoError(t, err)
	_, err = r.Next() // hold the first segment open
	require.NoError(t, err)

	require.NoError(t, j.DeleteUntil(j.GetLastIndex()-1))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var sawDeleted bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".deleted" {
			sawDeleted = true
		}
	}
	require.True(t, sawDeleted, "expected a .log.deleted file while a reader is still attached")

	require.NoError(t, r.Close())
}

// TestResetInvalidatesReaders covers the Reset half of spec's design notes:
// outstanding readers must observe ILLEGAL_STATE, not silently keep reading.
func TestResetInvalidatesReaders(t *testing.T) {
	j, _ := openTestJournal(t)

	_, err := j.Append(NoASQN, []byte("a"))
	require.NoError(t, err)

	r, err := j.OpenReader()
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, j.Reset(100))

	require.False(t, r.HasNext())
	_, err = r.Next()
	require.ErrorIs(t, err, ErrIllegalState)

	rec, err := j.Append(NoASQN, []byte("b"))
	require.NoError(t, err)
	require.Equal(t, uint64(100), rec.Index)
}

// TestOpenRecoversTornTail covers spec's sixth scenario: corruption above
// the acknowledged index is discarded as a torn tail on reopen, while
// corruption at or below it is fatal.
func TestOpenRecoversTornTail(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := j.Append(NoASQN, []byte("ok"))
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	// Corrupt the frame for what would have been the 4th record: a
	// syntactically valid header immediately after the 3rd record's frame,
	// whose checksum does not match the payload actually on disk -- as if
	// the header was flushed but the payload bytes behind it were not.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	segPath := filepath.Join(dir, entries[0].Name())
	const descriptorLen = 32
	const perRecord = 25 + 2 // frameHeaderLen + len("ok")
	writeTornFrame(t, segPath, descriptorLen+3*perRecord, 4)

	reopened, err := Open(dir, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, uint64(3), reopened.GetLastIndex())

	rec, err := reopened.Append(NoASQN, []byte("continues"))
	require.NoError(t, err)
	require.Equal(t, uint64(4), rec.Index)
}

func TestOpenFatalOnCorruptionBelowLastWrittenIndex(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := j.Append(NoASQN, []byte("ok"))
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	segPath := filepath.Join(dir, entries[0].Name())
	const descriptorLen = 32
	const perRecord = 25 + 2 // frameHeaderLen + len("ok")
	writeTornFrame(t, segPath, descriptorLen+3*perRecord, 4)

	_, err = Open(dir, WithRegisterer(prometheus.NewRegistry()), WithLastWrittenIndex(4))
	require.ErrorIs(t, err, ErrCorruptedLog)
}

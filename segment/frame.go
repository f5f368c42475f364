// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/kiyraft/journal/types"
)

// Frame layout (little-endian throughout):
//
//	[frame-type:1][checksum:u32][length:u32][index:u64][asqn:i64][payload:length bytes]
//
// frame-type is recordFrameType for a valid record; any other byte
// (invalidFrameType, or leftover zero bytes from pre-allocation) terminates
// the segment. checksum is CRC32(payload); length is len(payload).
const (
	recordFrameType   byte = 0x01
	invalidFrameType  byte = 0x00
	frameTypeLen           = 1
	frameMetadataLen       = 4 + 4 // checksum + length
	frameBodyHeaderLen     = 8 + 8 // index + asqn
	frameHeaderLen         = frameTypeLen + frameMetadataLen + frameBodyHeaderLen
)

// MaxEntrySize bounds the payload length the codec will ever trust from a
// length field before allocating a buffer for it, guarding against treating
// a bit-flipped length as legitimate.
const MaxEntrySize = 64 * 1024 * 1024

// frameHeader is the decoded, fixed-size prefix of a record frame.
type frameHeader struct {
	frameType byte
	checksum  uint32
	length    uint32
	index     uint64
	asqn      int64
}

// encodedLen returns the total on-disk size of a frame with the given
// payload length.
func encodedLen(payloadLen int) int {
	return frameHeaderLen + payloadLen
}

// writeRecord encodes index/asqn/payload as a frame at buf[pos:] and returns
// the number of bytes written. It returns types.ErrSegmentFull if buf does
// not have room.
func writeRecord(buf []byte, pos int, index uint64, asqn int64, payload []byte) (int, error) {
	n := encodedLen(len(payload))
	if pos+n > len(buf) {
		return 0, types.ErrSegmentFull
	}

	frame := buf[pos : pos+n]
	frame[0] = recordFrameType
	// Metadata is back-patched once the checksum is known; zero it first so
	// a torn write never appears to validate.
	binary.LittleEndian.PutUint32(frame[1:5], 0)
	binary.LittleEndian.PutUint32(frame[5:9], uint32(len(payload)))
	binary.LittleEndian.PutUint64(frame[9:17], index)
	binary.LittleEndian.PutUint64(frame[17:25], uint64(asqn))
	copy(frame[frameHeaderLen:], payload)

	checksum := crc32.ChecksumIEEE(payload)
	binary.LittleEndian.PutUint32(frame[1:5], checksum)

	return n, nil
}

// readFrameHeader decodes the fixed-size header at the start of buf. The
// caller must ensure len(buf) >= frameHeaderLen.
func readFrameHeader(buf []byte) frameHeader {
	return frameHeader{
		frameType: buf[0],
		checksum:  binary.LittleEndian.Uint32(buf[1:5]),
		length:    binary.LittleEndian.Uint32(buf[5:9]),
		index:     binary.LittleEndian.Uint64(buf[9:17]),
		asqn:      int64(binary.LittleEndian.Uint64(buf[17:25])),
	}
}

// readOutcome classifies the result of readRecord.
type readOutcome int

const (
	readOK readOutcome = iota
	readEndOfSegment
	readCorrupt
)

// readRecord decodes the frame at buf[pos:]. expectedIndex, if non-nil, is
// compared against the decoded index; a mismatch is reported as corrupt. It
// never returns an error: callers switch on the returned outcome because
// "end of segment" is an expected, frequent result, not a failure.
func readRecord(buf []byte, pos int, expectedIndex *uint64) (types.Record, readOutcome) {
	if pos < 0 || pos+frameHeaderLen > len(buf) {
		return types.Record{}, readEndOfSegment
	}
	fh := readFrameHeader(buf[pos:])
	if fh.frameType != recordFrameType {
		return types.Record{}, readEndOfSegment
	}
	if fh.length > MaxEntrySize {
		return types.Record{}, readCorrupt
	}
	end := pos + frameHeaderLen + int(fh.length)
	if end > len(buf) {
		return types.Record{}, readCorrupt
	}
	payload := buf[pos+frameHeaderLen : end]
	if crc32.ChecksumIEEE(payload) != fh.checksum {
		return types.Record{}, readCorrupt
	}
	if expectedIndex != nil && fh.index != *expectedIndex {
		return types.Record{}, readCorrupt
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	return types.Record{
		Index:    fh.index,
		ASQN:     fh.asqn,
		Checksum: fh.checksum,
		Data:     data,
	}, readOK
}

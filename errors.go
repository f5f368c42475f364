// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package journal

import "github.com/kiyraft/journal/types"

// NoASQN is the sentinel ASQN value meaning "none supplied".
const NoASQN = types.NoASQN

// Error kinds surfaced to callers, spec §7. Re-exported from types so
// callers never need to import the types package directly.
var (
	ErrNotFound        = types.ErrNotFound
	ErrCorrupt         = types.ErrCorrupt
	ErrClosed          = types.ErrClosed
	ErrInvalidIndex    = types.ErrInvalidIndex
	ErrInvalidChecksum = types.ErrInvalidChecksum
	ErrCorruptedLog    = types.ErrCorruptedLog
	ErrSegmentDeleted  = types.ErrSegmentDeleted
	ErrIllegalState    = types.ErrIllegalState
	ErrIOFailure       = types.ErrIOFailure
	ErrOutOfDisk       = types.ErrOutOfDisk
)

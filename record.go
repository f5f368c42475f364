// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package journal

import "github.com/kiyraft/journal/types"

// Record is the logical unit of the journal. It is an alias of types.Record
// so callers never need to import the types package directly.
type Record = types.Record

// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package journal

import "fmt"

func freeBytes(dir string) (uint64, error) {
	return 0, fmt.Errorf("journal: free disk space checks are not supported on this platform")
}

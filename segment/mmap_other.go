// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package segment

import (
	"fmt"
	"os"
	"runtime"
)

func mmapFile(f *os.File, size int) ([]byte, error) {
	return nil, fmt.Errorf("segment: memory-mapped segments are not supported on %s", runtime.GOOS)
}

func munmap(buf []byte) error {
	return fmt.Errorf("segment: memory-mapped segments are not supported on %s", runtime.GOOS)
}

func msync(buf []byte, start, end int) error {
	return fmt.Errorf("segment: memory-mapped segments are not supported on %s", runtime.GOOS)
}

// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package segment

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the first size bytes of f read-write and shared, growing the
// file to size first if it is shorter.
func mmapFile(f *os.File, size int) ([]byte, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, err
		}
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func munmap(buf []byte) error {
	return unix.Munmap(buf)
}

// msync flushes the given page range back to disk. start and end are byte
// offsets into buf; msync(2) requires addr to be page-aligned, so start is
// rounded down and end rounded up to the enclosing pages before the slice
// is taken.
func msync(buf []byte, start, end int) error {
	if start >= end {
		return nil
	}
	if end > len(buf) {
		end = len(buf)
	}
	pageSize := os.Getpagesize()
	start -= start % pageSize
	if r := end % pageSize; r != 0 {
		end += pageSize - r
	}
	if end > len(buf) {
		end = len(buf)
	}
	return unix.Msync(buf[start:end], unix.MS_SYNC)
}

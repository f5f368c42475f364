// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package journal

import "golang.org/x/sys/unix"

// freeBytes reports the number of bytes free on the filesystem containing
// dir, used to enforce the freeDiskSpace option (SPEC_FULL.md §4).
func freeBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

//go:build linux || darwin || freebsd

package sysmetrics

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// statfsFunc is overridden in tests.
var statfsFunc = unix.Statfs

// readDiskUsage takes used, free and total from a single statfs call so that
// Used + Free == Total holds exactly.
func readDiskUsage(_ context.Context, path string) (DiskUsage, error) {
	var st unix.Statfs_t
	if err := statfsFunc(path, &st); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	return usageFromStatfs(path, &st)
}

func usageFromStatfs(path string, st *unix.Statfs_t) (DiskUsage, error) {
	if st.Blocks == 0 {
		return DiskUsage{}, fmt.Errorf("statfs %s: filesystem reports zero blocks", path)
	}

	bsize := fragmentSize(st)
	bavail := uint64(0)
	if st.Bavail > 0 {
		bavail = uint64(st.Bavail)
	}

	used := (uint64(st.Blocks) - uint64(st.Bfree)) * bsize
	free := bavail * bsize
	total := used + free

	usage := DiskUsage{Path: path, Total: total, Used: used, Free: free}
	if total > 0 {
		usage.Percent = clampPercent(float64(used) / float64(total) * 100.0)
	}
	return usage, nil
}

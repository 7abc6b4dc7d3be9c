//go:build !linux && !darwin && !freebsd

package sysmetrics

import (
	"context"

	"github.com/shirou/gopsutil/v4/disk"
)

// readDiskUsage falls back to gopsutil where statfs is unavailable. Total
// is recomputed from Used and Free to keep the sum exact.
func readDiskUsage(ctx context.Context, path string) (DiskUsage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{}, err
	}
	total := u.Used + u.Free
	usage := DiskUsage{Path: path, Total: total, Used: u.Used, Free: u.Free}
	if total > 0 {
		usage.Percent = clampPercent(float64(u.Used) / float64(total) * 100.0)
	}
	return usage, nil
}

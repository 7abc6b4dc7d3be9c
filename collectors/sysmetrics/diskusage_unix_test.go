//go:build linux || darwin || freebsd

package sysmetrics

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestReadDiskUsage(t *testing.T) {
	orig := statfsFunc
	defer func() { statfsFunc = orig }()

	statfsFunc = func(path string, buf *unix.Statfs_t) error {
		buf.Bsize = 4096
		buf.Blocks = 1000000
		buf.Bfree = 400000
		buf.Bavail = 350000
		return nil
	}

	usage, err := readDiskUsage(context.Background(), "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// used = (1000000 - 400000) * 4096, free = 350000 * 4096
	wantUsed := uint64(600000 * 4096)
	wantFree := uint64(350000 * 4096)
	if usage.Used != wantUsed {
		t.Errorf("Used = %d, want %d", usage.Used, wantUsed)
	}
	if usage.Free != wantFree {
		t.Errorf("Free = %d, want %d", usage.Free, wantFree)
	}
	if usage.Used+usage.Free != usage.Total {
		t.Errorf("Used+Free = %d, want Total %d", usage.Used+usage.Free, usage.Total)
	}
	// 600000 / 950000 = 63.16%
	if usage.Percent < 63 || usage.Percent > 63.2 {
		t.Errorf("Percent = %f, want ~63.16", usage.Percent)
	}
}

func TestReadDiskUsageErrors(t *testing.T) {
	orig := statfsFunc
	defer func() { statfsFunc = orig }()

	t.Run("statfs fails", func(t *testing.T) {
		statfsFunc = func(string, *unix.Statfs_t) error { return unix.ENOENT }
		_, err := readDiskUsage(context.Background(), "/missing")
		if !errors.Is(err, unix.ENOENT) {
			t.Errorf("err = %v, want ENOENT", err)
		}
	})

	t.Run("zero blocks", func(t *testing.T) {
		statfsFunc = func(_ string, buf *unix.Statfs_t) error {
			buf.Bsize = 4096
			return nil
		}
		if _, err := readDiskUsage(context.Background(), "/proc"); err == nil {
			t.Error("expected error for a zero-block filesystem")
		}
	})
}

func TestReadDiskUsageRealRoot(t *testing.T) {
	usage, err := readDiskUsage(context.Background(), "/")
	if err != nil {
		t.Skipf("statfs / unavailable: %v", err)
	}
	if usage.Used+usage.Free != usage.Total {
		t.Errorf("Used+Free = %d, want Total %d", usage.Used+usage.Free, usage.Total)
	}
	if usage.Percent < 0 || usage.Percent > 100 {
		t.Errorf("Percent = %f, want within [0, 100]", usage.Percent)
	}
}

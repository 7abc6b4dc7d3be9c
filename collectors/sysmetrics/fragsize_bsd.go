//go:build darwin || freebsd

package sysmetrics

import "golang.org/x/sys/unix"

// fragmentSize is the unit of f_blocks, f_bfree and f_bavail, which on BSD
// systems is f_bsize.
func fragmentSize(st *unix.Statfs_t) uint64 {
	return uint64(st.Bsize)
}

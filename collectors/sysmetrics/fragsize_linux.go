//go:build linux

package sysmetrics

import "golang.org/x/sys/unix"

// fragmentSize is the unit of f_blocks, f_bfree and f_bavail. Linux reports
// it as f_frsize, which can differ from f_bsize (NFS, for one).
func fragmentSize(st *unix.Statfs_t) uint64 {
	if st.Frsize > 0 {
		return uint64(st.Frsize)
	}
	return uint64(st.Bsize)
}

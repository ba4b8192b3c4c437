package util

import (
	"fmt"
	"syscall"
)

// DiskUsage describes the capacity of the filesystem holding a path
type DiskUsage struct {
	Total uint64
	Free  uint64
	Used  uint64
}

// GetDiskUsage returns capacity figures for the filesystem containing path.
// Free is the space available to unprivileged users.
func GetDiskUsage(path string) (*DiskUsage, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem %s: %w", path, err)
	}

	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	free := st.Bavail * bsize
	used := total - st.Bfree*bsize

	return &DiskUsage{Total: total, Free: free, Used: used}, nil
}

//go:build darwin

package util

import (
	"fmt"
	"syscall"
)

func platformMount(path string) (*Mount, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem %s: %w", path, err)
	}
	fsType := cString(st.Fstypename[:])
	return &Mount{Path: cString(st.Mntonname[:]), FSType: fsType, Network: IsNetworkFSType(fsType)}, nil
}

func cString(arr []int8) string {
	b := make([]byte, 0, len(arr))
	for _, c := range arr {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}

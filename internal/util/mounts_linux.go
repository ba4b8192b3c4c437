//go:build linux

package util

import (
	"fmt"
	"os"
	"syscall"
)

// superblock magics of network filesystems, used when /proc/mounts is unreadable
var networkMagics = map[uint32]string{
	0x6969:     "nfs",
	0xff534d42: "cifs",
	0xfe534d42: "smb2",
	0x517b:     "smb",
	0x564c:     "ncpfs",
}

func platformMount(path string) (*Mount, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return nil, fmt.Errorf("failed to stat filesystem %s: %w", path, err)
	}

	if f, err := os.Open("/proc/mounts"); err == nil {
		defer f.Close()
		if mounts, err := parseMounts(f); err == nil {
			if m, ok := longestMount(path, mounts); ok {
				return m, nil
			}
		}
	}

	if proto, ok := networkMagics[uint32(st.Type)]; ok {
		return &Mount{Path: path, FSType: proto, Network: true}, nil
	}
	return &Mount{Path: path, FSType: fmt.Sprintf("0x%x", uint32(st.Type))}, nil
}

//go:build !linux && !darwin

package util

import (
	"fmt"
	"os"
)

// platformMount cannot tell mounts apart here; every path counts as local
func platformMount(path string) (*Mount, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return &Mount{Path: path, FSType: "unknown"}, nil
}

package util

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Mount is the filesystem mount holding a path
type Mount struct {
	Path    string
	FSType  string
	Network bool
}

func (m *Mount) String() string {
	if m.Network {
		return fmt.Sprintf("%s mount at %s", m.FSType, m.Path)
	}
	return fmt.Sprintf("local %s at %s", m.FSType, m.Path)
}

// networkFSTypes are filesystem type names (or prefixes) of network mounts
var networkFSTypes = []string{
	"nfs", "cifs", "smb", "smbfs", "smb3", "ncpfs", "afpfs", "webdav",
	"fuse.sshfs", "fuse.rclone", "osxfuse", "macfuse",
}

// IsNetworkFSType reports whether a filesystem type name denotes a network mount
func IsNetworkFSType(fsType string) bool {
	fsType = strings.ToLower(fsType)
	for _, n := range networkFSTypes {
		if fsType == n || strings.HasPrefix(fsType, n) {
			return true
		}
	}
	return false
}

// MountFor returns the mount holding path. The path must exist.
func MountFor(path string) (*Mount, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return platformMount(abs)
}

// IsNetworkPath reports whether path lives on a network mount. Errors count
// as local.
func IsNetworkPath(path string) bool {
	m, err := MountFor(path)
	return err == nil && m.Network
}

// parseMounts reads fstab-formatted lines (device, mount point, type, ...)
// into a mount point to type map. Octal escapes in mount points are decoded.
func parseMounts(r io.Reader) (map[string]string, error) {
	mounts := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[unescapeMount(fields[1])] = fields[2]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mounts, nil
}

// longestMount picks the deepest mount point containing path
func longestMount(path string, mounts map[string]string) (*Mount, bool) {
	best := ""
	found := false
	for mp := range mounts {
		if !withinMount(path, mp) {
			continue
		}
		if !found || len(mp) > len(best) {
			best, found = mp, true
		}
	}
	if !found {
		return nil, false
	}
	fsType := mounts[best]
	return &Mount{Path: best, FSType: fsType, Network: IsNetworkFSType(fsType)}, true
}

func withinMount(path, mountPoint string) bool {
	if mountPoint == "/" || path == mountPoint {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(mountPoint, "/")+"/")
}

// unescapeMount decodes the \040 style escapes /proc/mounts uses for spaces
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

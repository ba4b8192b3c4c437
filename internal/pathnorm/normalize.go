// Package pathnorm converts adapter-native paths into the canonical keys used
// to reconcile inventories gathered from different locations.
package pathnorm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// IgnoredSegments are path segments produced by the OS for alternate data
// streams; anything below them is never part of a diff.
var IgnoredSegments = []string{".streams"}

// ntfsStreamMarker is the NTFS stream suffix (file.mkv:$DATA)
const ntfsStreamMarker = ":$DATA"

// Normalize returns the canonical form of path relative to root: NFC,
// slash-delimited, without leading or trailing slashes, with the root prefix
// removed. A path equal to root yields "". When root cannot be located in the
// path, the cleaned path is returned unchanged.
func Normalize(path, root string) string {
	cleanPath := clean(path)
	if root == "" {
		return cleanPath
	}

	cleanRoot := clean(root)
	if cleanRoot == "" {
		return cleanPath
	}

	if cleanPath == cleanRoot {
		return ""
	}
	if strings.HasPrefix(cleanPath, cleanRoot+"/") {
		return strings.Trim(cleanPath[len(cleanRoot)+1:], "/")
	}

	// Root as an embedded segment, e.g. share/<root>/Movie/file.mkv
	if rest, ok := cutAfterSegment(cleanPath, cleanRoot); ok {
		return strings.Trim(rest, "/")
	}

	return cleanPath
}

// IsIgnored reports whether a path is an OS metadata artifact that must be
// excluded from comparisons.
func IsIgnored(path string) bool {
	if strings.Contains(path, ntfsStreamMarker) {
		return true
	}
	for _, segment := range strings.Split(path, "/") {
		for _, ignored := range IgnoredSegments {
			if segment == ignored {
				return true
			}
		}
	}
	return false
}

func clean(p string) string {
	return norm.NFC.String(strings.Trim(p, "/"))
}

// cutAfterSegment finds root as a whole "/"-delimited segment sequence inside
// path and returns what follows it. Root may itself contain slashes.
func cutAfterSegment(path, root string) (string, bool) {
	needle := "/" + root
	offset := 0
	for {
		idx := strings.Index(path[offset:], needle)
		if idx < 0 {
			return "", false
		}
		end := offset + idx + len(needle)
		if end == len(path) {
			return "", true
		}
		if path[end] == '/' {
			return path[end+1:], true
		}
		offset += idx + 1
	}
}

package util

import (
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// FormatBytes renders a byte count for humans (IEC units)
func FormatBytes(n uint64) string {
	return humanize.IBytes(n)
}

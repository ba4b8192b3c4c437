package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/franz/stagehop/internal/store"
)

// Local walks a filesystem. Paths never escape the base the filesystem is
// rooted at.
type Local struct {
	fs afero.Fs
}

// NewLocal creates a source rooted at basePath on the OS filesystem
func NewLocal(basePath string) (*Local, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local scan source needs a base path")
	}
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("base path unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base path %s is not a directory", basePath)
	}
	return NewLocalFs(afero.NewBasePathFs(afero.NewOsFs(), basePath)), nil
}

// NewLocalFs creates a source over an arbitrary afero filesystem
func NewLocalFs(fs afero.Fs) *Local {
	return &Local{fs: fs}
}

// List implements ScanSource. RelPath is relative to the base and includes
// the root; RootLabel is the cleaned root.
func (l *Local) List(ctx context.Context, roots []string, yield func(store.FileRecord) error, logf func(string, ...any)) error {
	if len(roots) == 0 {
		roots = []string{""}
	}

	for _, root := range roots {
		root = cleanRoot(root)
		dir := "/" + root

		info, err := l.fs.Stat(dir)
		if err != nil {
			logf("Warning: root path does not exist: %s", dir)
			continue
		}
		if !info.IsDir() {
			logf("Warning: root path is not a directory: %s", dir)
			continue
		}

		logf("Scanning: %s", dir)
		err = afero.Walk(l.fs, dir, func(path string, info os.FileInfo, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				logf("Error accessing %s: %v", path, err)
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() || !info.Mode().IsRegular() {
				return nil
			}

			return yield(store.FileRecord{
				RelPath:   strings.TrimPrefix(filepath.ToSlash(path), "/"),
				Size:      uint64(info.Size()),
				Mtime:     float64(info.ModTime().UnixNano()) / 1e9,
				RootLabel: root,
			})
		})
		if err != nil {
			return fmt.Errorf("walk %s: %w", dir, err)
		}
	}

	return nil
}

// Package source lists the files of a dataset from wherever it is stored.
package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

// ScanSource enumerates the files below a set of roots. Records are passed to
// yield one at a time; an error from yield stops the listing. Unreadable
// entries and directories are reported through logf and skipped.
type ScanSource interface {
	List(ctx context.Context, roots []string, yield func(store.FileRecord) error, logf func(string, ...any)) error
}

// Closer is implemented by sources holding a connection
type Closer interface {
	Close() error
}

// Adapter names accepted in Dataset.ScanAdapter
const (
	AdapterLocal = "local"
	AdapterSFTP  = "sftp"
	AdapterS3    = "s3"
)

// Factory builds the ScanSource of a dataset
type Factory func(ctx context.Context, d *store.Dataset) (ScanSource, error)

// New is the default Factory, selecting the adapter named by the dataset
func New(ctx context.Context, d *store.Dataset) (ScanSource, error) {
	switch d.ScanAdapter {
	case "", AdapterLocal:
		return NewLocal(d.BasePath)
	case AdapterSFTP:
		return NewSFTP(ctx, sftpConfigFrom(d))
	case AdapterS3:
		return NewS3(ctx, s3ConfigFrom(d))
	default:
		return nil, fmt.Errorf("unknown scan adapter %q: %w", d.ScanAdapter, util.ErrInvalidConfig)
	}
}

func cleanRoot(root string) string {
	return strings.Trim(strings.ReplaceAll(root, "\\", "/"), "/")
}

func configInt(cfg store.JSONMap, key string, def int) int {
	if v, ok := cfg[key]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func configBool(cfg store.JSONMap, key string) bool {
	b, _ := strconv.ParseBool(cfg[key])
	return b
}

func configString(cfg store.JSONMap, key, def string) string {
	if v := cfg[key]; v != "" {
		return v
	}
	return def
}

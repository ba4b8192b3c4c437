// Package transfer moves a batch of files from one base directory to another.
package transfer

import (
	"context"
	"fmt"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

// FileFunc is called once per file as its transfer settles. index counts
// reported files starting at 1.
type FileFunc func(index int, path string, size uint64, success bool, err error)

// Result summarizes one Copy call
type Result struct {
	Success     bool
	FilesCopied int
	Error       string
}

// Transfer copies files, addressed by RelPath, from sourceBase to targetBase.
// The returned error is reserved for failures to start the transfer at all;
// per-file failures are reported through onFile and Result.
type Transfer interface {
	Copy(ctx context.Context, files []store.FileRecord, sourceBase, targetBase string, dryRun bool, onFile FileFunc) (*Result, error)
}

// Adapter names accepted in Dataset.TransferAdapter
const (
	AdapterLocal  = "local"
	AdapterSSH    = "ssh"
	AdapterNative = "native"
)

// Options configure transfers built by a Factory
type Options struct {
	RsyncBinary string
	Concurrency int
	RetryConfig *util.RetryConfig // overrides the retries picked by mount tuning
	Network     *bool             // forces network tuning on or off, nil detects
	Logf        func(string, ...any)
}

// Factory builds the Transfer for a dataset. sourceIsRemote tells an ssh
// adapter which end of the copy lives on the dataset's host.
type Factory func(d *store.Dataset, sourceIsRemote bool) (Transfer, error)

// NewFactory returns a Factory building transfers with opts
func NewFactory(opts Options) Factory {
	return func(d *store.Dataset, sourceIsRemote bool) (Transfer, error) {
		switch d.TransferAdapter {
		case "", AdapterLocal:
			return &Rsync{Binary: opts.RsyncBinary, Logf: opts.Logf}, nil
		case AdapterSSH:
			remote, err := remoteFrom(d)
			if err != nil {
				return nil, err
			}
			return &Rsync{
				Binary:         opts.RsyncBinary,
				Remote:         remote,
				SourceIsRemote: sourceIsRemote,
				Logf:           opts.Logf,
			}, nil
		case AdapterNative:
			tuning := util.TuneForPaths(opts.Concurrency, opts.Network, d.BasePath)
			retry := opts.RetryConfig
			if retry == nil {
				retry = tuning.Retry
			}
			if retry == nil {
				retry = util.DefaultRetryConfig()
			}
			return NewNative(&NativeConfig{
				Concurrency: tuning.Concurrency,
				BufferSize:  tuning.BufferSize,
				RetryConfig: retry,
			}), nil
		default:
			return nil, fmt.Errorf("unknown transfer adapter %q: %w", d.TransferAdapter, util.ErrInvalidConfig)
		}
	}
}

package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

// Native copies files in-process with a bounded worker pool
type Native struct {
	concurrency int
	bufferSize  int
	retryConfig *util.RetryConfig
}

// NativeConfig holds native copier configuration
type NativeConfig struct {
	Concurrency int
	BufferSize  int               // Buffer size for file copying (0 = use default)
	RetryConfig *util.RetryConfig // nil = single attempt
}

// NewNative creates a new native copier
func NewNative(cfg *NativeConfig) *Native {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 128 * 1024
	}
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = &util.RetryConfig{MaxAttempts: 1}
	}

	return &Native{
		concurrency: cfg.Concurrency,
		bufferSize:  cfg.BufferSize,
		retryConfig: cfg.RetryConfig,
	}
}

// Copy implements Transfer. Files already present at the target with the
// same size and mtime are left alone and reported as copied.
func (n *Native) Copy(ctx context.Context, files []store.FileRecord, sourceBase, targetBase string, dryRun bool, onFile FileFunc) (*Result, error) {
	if len(files) == 0 {
		return &Result{Success: true}, nil
	}

	var (
		mu       sync.Mutex
		index    int
		copied   atomic.Int64
		failed   atomic.Int64
		written  atomic.Int64
		firstErr error
	)

	report := func(f store.FileRecord, err error) {
		mu.Lock()
		defer mu.Unlock()
		index++
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if onFile != nil {
			onFile(index, f.RelPath, f.Size, err == nil, err)
		}
	}

	p := pool.New().WithMaxGoroutines(n.concurrency)
	for _, f := range files {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				failed.Add(1)
				report(f, err)
				return
			}

			src := filepath.Join(sourceBase, filepath.FromSlash(f.RelPath))
			dst := filepath.Join(targetBase, filepath.FromSlash(f.RelPath))

			if dryRun {
				util.DebugLog("DRY-RUN: Would copy %s -> %s", src, dst)
				copied.Add(1)
				report(f, nil)
				return
			}

			bytes, err := n.copyFile(ctx, src, dst)
			if err != nil {
				failed.Add(1)
				report(f, fmt.Errorf("%s: %w", f.RelPath, err))
				return
			}
			copied.Add(1)
			written.Add(bytes)
			report(f, nil)
		})
	}
	p.Wait()

	result := &Result{
		Success:     failed.Load() == 0,
		FilesCopied: int(copied.Load()),
	}
	if firstErr != nil {
		result.Error = fmt.Sprintf("%d of %d files failed, first: %v", failed.Load(), len(files), firstErr)
	}

	util.DebugLog("Native copy complete: %d copied, %d failed, %s written",
		result.FilesCopied, failed.Load(), humanize.IBytes(uint64(written.Load())))
	return result, nil
}

// copyFile copies a file atomically using a .part temporary file and keeps
// the source mtime. Returns the bytes written, 0 when the target was current.
func (n *Native) copyFile(ctx context.Context, srcPath, destPath string) (int64, error) {
	srcInfo, err := util.RetryableStat(ctx, srcPath, n.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("failed to stat source: %w", err)
	}

	if destInfo, err := os.Stat(destPath); err == nil &&
		destInfo.Size() == srcInfo.Size() && destInfo.ModTime().Equal(srcInfo.ModTime()) {
		util.DebugLog("Up to date: %s", destPath)
		return 0, nil
	}

	if err := util.RetryableMkdirAll(ctx, filepath.Dir(destPath), 0755, n.retryConfig); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	src, err := util.RetryableOpen(ctx, srcPath, n.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	tempPath := destPath + ".part"
	dest, err := util.RetryableCreate(ctx, tempPath, n.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	bytesWritten, err := copyWithContext(ctx, dest, src, n.bufferSize)
	if closeErr := dest.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		util.RetryableRemove(ctx, tempPath, n.retryConfig)
		return 0, fmt.Errorf("failed to copy: %w", err)
	}

	if bytesWritten != srcInfo.Size() {
		util.RetryableRemove(ctx, tempPath, n.retryConfig)
		return 0, fmt.Errorf("size mismatch: wrote %d of %d bytes", bytesWritten, srcInfo.Size())
	}

	if err := util.RetryableRename(ctx, tempPath, destPath, n.retryConfig); err != nil {
		util.RetryableRemove(ctx, tempPath, n.retryConfig)
		return 0, fmt.Errorf("failed to rename: %w", err)
	}

	mtime := srcInfo.ModTime()
	if err := os.Chtimes(destPath, time.Now(), mtime); err != nil {
		util.WarnLog("Failed to preserve mtime on %s: %v", destPath, err)
	}

	util.DebugLog("Copied: %s -> %s (%s)", srcPath, destPath, humanize.IBytes(uint64(bytesWritten)))
	return bytesWritten, nil
}

// copyWithContext copies data with context cancellation support
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, bufferSize int) (int64, error) {
	if bufferSize <= 0 {
		bufferSize = 128 * 1024
	}

	buf := make([]byte, bufferSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if ew == nil {
					ew = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			break
		}
	}
	return written, nil
}

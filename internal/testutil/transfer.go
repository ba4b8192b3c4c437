package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/transfer"
)

// TransferCall records one invocation of a FakeTransfer.
type TransferCall struct {
	Files      []store.FileRecord
	SourceBase string
	TargetBase string
	DryRun     bool
}

// FakeTransfer reports every file as copied except those listed in Fail.
type FakeTransfer struct {
	mu    sync.Mutex
	Fail  map[string]bool
	Err   error
	Calls []TransferCall
}

// Copy implements transfer.Transfer.
func (f *FakeTransfer) Copy(_ context.Context, files []store.FileRecord, sourceBase, targetBase string, dryRun bool, onFile transfer.FileFunc) (*transfer.Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, TransferCall{Files: files, SourceBase: sourceBase, TargetBase: targetBase, DryRun: dryRun})
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	result := &transfer.Result{Success: true}
	failed := 0
	for i, file := range files {
		if f.Fail[file.RelPath] {
			failed++
			result.Success = false
			if onFile != nil {
				onFile(i+1, file.RelPath, file.Size, false, fmt.Errorf("copy %s: permission denied", file.RelPath))
			}
			continue
		}
		result.FilesCopied++
		if onFile != nil {
			onFile(i+1, file.RelPath, file.Size, true, nil)
		}
	}
	if failed > 0 {
		result.Error = fmt.Sprintf("%d files failed", failed)
	}
	return result, nil
}

// Factory returns a transfer.Factory always handing out f.
func (f *FakeTransfer) Factory() transfer.Factory {
	return func(*store.Dataset, bool) (transfer.Transfer, error) {
		return f, nil
	}
}

// LastCall returns the most recent call, or nil.
func (f *FakeTransfer) LastCall() *TransferCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Calls) == 0 {
		return nil
	}
	c := f.Calls[len(f.Calls)-1]
	return &c
}

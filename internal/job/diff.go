package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/franz/stagehop/internal/diff"
	"github.com/franz/stagehop/internal/store"
)

// DiffCommitBatch is the number of comparison items written per transaction
const DiffCommitBatch = 1000

// StartDiff runs the diff job in the background
func (o *Orchestrator) StartDiff(jobID int64) bool {
	return o.Start(jobID, store.KindDiff, func(ctx context.Context, run *Run) error {
		return o.runDiff(ctx, run)
	})
}

func (o *Orchestrator) runDiff(ctx context.Context, run *Run) error {
	d, err := o.store.GetDiff(ctx, run.JobID)
	if err != nil {
		return lookupErr(err, ErrDiffNotFound, "diff", run.JobID)
	}

	source, err := o.loadInventory(ctx, d.SourceScanID)
	if err != nil {
		return err
	}
	target, err := o.loadInventory(ctx, d.TargetScanID)
	if err != nil {
		return err
	}
	run.Log("Comparing scan %d (%d files) with scan %d (%d files)",
		d.SourceScanID, len(source.Records), d.TargetScanID, len(target.Records))

	items, stats := diff.Compare(*source, *target, diff.Options{
		Progress: func(done, total int) {
			run.Progress(int64(done), int64(total), "", "comparing")
		},
	})
	if stats.SourceShadowed > 0 || stats.TargetShadowed > 0 {
		run.Warn("Duplicate normalized paths ignored: %d in source, %d in target",
			stats.SourceShadowed, stats.TargetShadowed)
	}
	if stats.SourceIgnored > 0 || stats.TargetIgnored > 0 {
		run.Log("Ignored paths: %d in source, %d in target", stats.SourceIgnored, stats.TargetIgnored)
	}

	if err := run.Tx(ctx, func(tx *sqlx.Tx) error {
		return store.DeleteComparisonItems(ctx, tx, d.JobID)
	}); err != nil {
		return fmt.Errorf("failed to clear previous comparison: %w", err)
	}

	for start := 0; start < len(items); start += DiffCommitBatch {
		end := min(start+DiffCommitBatch, len(items))
		chunk := items[start:end]
		if err := run.Tx(ctx, func(tx *sqlx.Tx) error {
			return store.InsertComparisonItems(ctx, tx, d.JobID, chunk)
		}); err != nil {
			return fmt.Errorf("failed to store comparison items: %w", err)
		}
		run.Progress(int64(end), int64(len(items)), chunk[len(chunk)-1].Path, "saving")
	}

	summary := diff.Summarize(items)
	if err := run.Tx(ctx, func(tx *sqlx.Tx) error {
		return store.SetJobTotals(ctx, tx, d.JobID, int64(summary.Total), summary.Categories[store.CategoryMissing].Bytes)
	}); err != nil {
		return fmt.Errorf("failed to record diff totals: %w", err)
	}

	run.Log("Diff complete: %d paths, %d missing, %d conflict, %d extra, %d same",
		summary.Total,
		summary.Categories[store.CategoryMissing].Count,
		summary.Categories[store.CategoryConflict].Count,
		summary.Categories[store.CategoryExtra].Count,
		summary.Categories[store.CategorySame].Count)
	return nil
}

// loadInventory reads a completed scan's records
func (o *Orchestrator) loadInventory(ctx context.Context, scanID int64) (*store.Inventory, error) {
	j, err := o.store.GetJob(ctx, scanID)
	if err != nil {
		return nil, lookupErr(err, ErrScanNotFound, "scan", scanID)
	}
	if j.Kind != store.KindScan {
		return nil, fmt.Errorf("%w: job %d is a %s job", ErrScanNotFound, scanID, j.Kind)
	}
	if j.Status != store.StatusCompleted {
		return nil, fmt.Errorf("%w: scan %d is %s", ErrInventoryUnreadable, scanID, j.Status)
	}

	inv, err := o.store.LoadInventory(ctx, scanID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: scan %d", ErrScanNotFound, scanID)
		}
		return nil, fmt.Errorf("%w: scan %d: %v", ErrInventoryUnreadable, scanID, err)
	}
	return inv, nil
}

package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"

	"github.com/franz/stagehop/internal/diff"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/transfer"
	"github.com/franz/stagehop/internal/util"
)

// StagingDirName is the staging subdirectory owned by a leg-1 copy job
func StagingDirName(jobID int64) string {
	return fmt.Sprintf("job-%d", jobID)
}

// StartCopy runs one copy leg in the background
func (o *Orchestrator) StartCopy(jobID int64) bool {
	return o.Start(jobID, store.KindCopy, func(ctx context.Context, run *Run) error {
		return o.runCopy(ctx, run)
	})
}

// copyContext is everything a copy leg resolves before moving files
type copyContext struct {
	copy      *store.Copy
	batch     *store.Batch
	primary   *store.Dataset
	secondary *store.Dataset
	inventory *store.Inventory
}

func (o *Orchestrator) loadCopyContext(ctx context.Context, jobID int64) (*copyContext, error) {
	c, err := o.store.GetCopy(ctx, jobID)
	if err != nil {
		return nil, lookupErr(err, ErrCopyNotFound, "copy job", jobID)
	}
	cc, err := o.loadBatchContext(ctx, c.BatchID)
	if err != nil {
		return nil, err
	}
	cc.copy = c
	return cc, nil
}

// loadBatchContext resolves a batch to its datasets and source inventory
func (o *Orchestrator) loadBatchContext(ctx context.Context, batchID int64) (*copyContext, error) {
	b, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, lookupErr(err, ErrBatchNotFound, "batch", batchID)
	}
	d, err := o.store.GetDiff(ctx, b.DiffID)
	if err != nil {
		return nil, lookupErr(err, ErrDiffNotFound, "diff", b.DiffID)
	}

	srcScan, err := o.store.GetScan(ctx, d.SourceScanID)
	if err != nil {
		return nil, lookupErr(err, ErrScanNotFound, "scan", d.SourceScanID)
	}
	dstScan, err := o.store.GetScan(ctx, d.TargetScanID)
	if err != nil {
		return nil, lookupErr(err, ErrScanNotFound, "scan", d.TargetScanID)
	}
	primary, err := o.store.GetDataset(ctx, srcScan.DatasetID)
	if err != nil {
		return nil, lookupErr(err, ErrDatasetNotFound, "dataset", srcScan.DatasetID)
	}
	secondary, err := o.store.GetDataset(ctx, dstScan.DatasetID)
	if err != nil {
		return nil, lookupErr(err, ErrDatasetNotFound, "dataset", dstScan.DatasetID)
	}

	inv, err := o.loadInventory(ctx, srcScan.JobID)
	if err != nil {
		return nil, err
	}

	return &copyContext{batch: b, primary: primary, secondary: secondary, inventory: inv}, nil
}

func (o *Orchestrator) runCopy(ctx context.Context, run *Run) error {
	cc, err := o.loadCopyContext(ctx, run.JobID)
	if err != nil {
		return err
	}

	items, err := o.store.ListEnabledPlanItems(ctx, cc.batch.JobID)
	if err != nil {
		return fmt.Errorf("failed to load plan items: %w", err)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: batch %d", ErrNoEnabledItems, cc.batch.JobID)
	}

	files, outcomes := resolveItems(run.JobID, run.Warn, cc.inventory, items)
	if len(files) == 0 {
		if err := o.saveOutcomes(ctx, run, outcomes); err != nil {
			return err
		}
		return fmt.Errorf("%w: %d enabled items in batch %d", ErrSourceFileUnresolvable, len(items), cc.batch.JobID)
	}

	srcBase, dstBase, xfer, err := o.resolveLeg(ctx, run, cc)
	if err != nil {
		return err
	}

	var plannedBytes uint64
	for _, f := range files {
		plannedBytes += f.Size
	}
	mode := ""
	if cc.copy.DryRun {
		mode = " (dry run)"
	}
	run.Log("Copying %d files (%s) from %s to %s%s",
		len(files), humanize.IBytes(plannedBytes), srcBase, dstBase, mode)

	var (
		mu       sync.Mutex
		reported = make(map[string]bool, len(files))
		total    = int64(len(files))
	)
	onFile := func(index int, path string, size uint64, success bool, ferr error) {
		oc := store.FileOutcome{JobID: run.JobID, Path: path, Size: size, Status: store.OutcomeCopied}
		if success {
			oc.CopiedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
		} else {
			oc.Status = store.OutcomeFailed
			if ferr != nil {
				oc.Error = ferr.Error()
			}
		}
		mu.Lock()
		reported[path] = true
		outcomes = append(outcomes, oc)
		mu.Unlock()
		run.Progress(int64(index), total, path, string(oc.Status))
	}

	result, err := xfer.Copy(ctx, files, srcBase, dstBase, cc.copy.DryRun, onFile)
	if err != nil {
		if saveErr := o.saveOutcomes(ctx, run, outcomes); saveErr != nil {
			run.Warn("Failed to save outcomes: %v", saveErr)
		}
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	mu.Lock()
	for _, f := range files {
		if !reported[f.RelPath] {
			outcomes = append(outcomes, store.FileOutcome{
				JobID:  run.JobID,
				Path:   f.RelPath,
				Size:   f.Size,
				Status: store.OutcomeFailed,
				Error:  "not reported by transfer",
			})
		}
	}
	mu.Unlock()

	if err := o.saveOutcomes(ctx, run, outcomes); err != nil {
		return err
	}

	var copied, failed int64
	var copiedBytes uint64
	for _, oc := range outcomes {
		switch oc.Status {
		case store.OutcomeCopied:
			copied++
			copiedBytes += oc.Size
		case store.OutcomeFailed:
			failed++
		}
	}
	if err := run.Tx(ctx, func(tx *sqlx.Tx) error {
		return store.SetJobTotals(ctx, tx, run.JobID, copied, copiedBytes)
	}); err != nil {
		return fmt.Errorf("failed to record copy totals: %w", err)
	}

	run.Log("Transfer finished: %d copied (%s), %d failed", copied, humanize.IBytes(copiedBytes), failed)

	switch {
	case copied == 0 && (failed > 0 || !result.Success):
		return fmt.Errorf("%w: %s", ErrTransferFailed, result.Error)
	case failed > 0 || !result.Success:
		return fmt.Errorf("%w: %d of %d files failed: %s", ErrPartialFailure, failed, len(files), result.Error)
	}
	return nil
}

// resolveItems maps enabled plan items back to source records. Items without
// a source record become skipped outcomes.
func resolveItems(jobID int64, warn func(string, ...any), inv *store.Inventory, items []store.TransferPlanItem) ([]store.FileRecord, []store.FileOutcome) {
	byKey := make(map[string]store.FileRecord, len(inv.Records))
	for _, r := range inv.Records {
		key := diff.Key(r, inv.Root)
		if _, ok := byKey[key]; !ok {
			byKey[key] = r
		}
	}

	var files []store.FileRecord
	var skipped []store.FileOutcome
	for _, it := range items {
		r, ok := byKey[it.Path]
		if !ok {
			warn("Source file not found for %s, skipping", it.Path)
			skipped = append(skipped, store.FileOutcome{
				JobID:  jobID,
				Path:   it.Path,
				Size:   it.Size,
				Status: store.OutcomeSkipped,
				Error:  "source file not found in inventory",
			})
			continue
		}
		files = append(files, r)
	}
	return files, skipped
}

// resolveLeg picks source and target bases and the transfer for a leg
func (o *Orchestrator) resolveLeg(ctx context.Context, run *Run, cc *copyContext) (string, string, transfer.Transfer, error) {
	if o.stagingDir == "" {
		return "", "", nil, fmt.Errorf("no staging directory configured: %w", util.ErrInvalidConfig)
	}

	var (
		srcBase, dstBase, stagingDir string
		dataset                      *store.Dataset
		sourceIsRemote               bool
	)

	switch cc.copy.Leg {
	case store.LegPrimaryToStaging:
		stagingDir = filepath.Join(o.stagingDir, StagingDirName(run.JobID))
		if err := os.MkdirAll(stagingDir, 0755); err != nil {
			return "", "", nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
		srcBase, dstBase = cc.primary.BasePath, stagingDir
		dataset, sourceIsRemote = cc.primary, true

	case store.LegStagingToSecondary:
		leg1, err := o.store.FindRunLeg(ctx, cc.copy.RunID, store.LegPrimaryToStaging)
		switch {
		case err == nil && leg1.StagingDir != "":
			stagingDir = leg1.StagingDir
		case err == nil:
			stagingDir = filepath.Join(o.stagingDir, StagingDirName(leg1.JobID))
		case errors.Is(err, store.ErrNotFound):
			stagingDir = filepath.Join(o.stagingDir, StagingDirName(run.JobID))
			run.Warn("No %s leg in run %s, reading staging from %s", store.LegPrimaryToStaging, cc.copy.RunID, stagingDir)
		default:
			return "", "", nil, fmt.Errorf("failed to find staging leg: %w", err)
		}
		srcBase, dstBase = stagingDir, cc.secondary.BasePath
		dataset, sourceIsRemote = cc.secondary, false

	default:
		return "", "", nil, fmt.Errorf("unknown copy leg %q: %w", cc.copy.Leg, util.ErrInvalidConfig)
	}

	if err := run.Tx(ctx, func(tx *sqlx.Tx) error {
		return store.SetCopyStagingDir(ctx, tx, run.JobID, stagingDir)
	}); err != nil {
		return "", "", nil, fmt.Errorf("failed to record staging directory: %w", err)
	}

	xfer, err := o.transfers(dataset, sourceIsRemote)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to create transfer for %s: %w", dataset.Name, err)
	}
	return srcBase, dstBase, xfer, nil
}

// saveOutcomes replaces the outcomes of a copy job
func (o *Orchestrator) saveOutcomes(ctx context.Context, run *Run, outcomes []store.FileOutcome) error {
	err := run.Tx(ctx, func(tx *sqlx.Tx) error {
		if err := store.DeleteOutcomes(ctx, tx, run.JobID); err != nil {
			return err
		}
		return store.InsertOutcomes(ctx, tx, outcomes)
	})
	if err != nil {
		return fmt.Errorf("failed to store outcomes: %w", err)
	}
	return nil
}

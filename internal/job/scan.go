package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"

	"github.com/franz/stagehop/internal/pathnorm"
	"github.com/franz/stagehop/internal/source"
	"github.com/franz/stagehop/internal/store"
)

// ScanCommitBatch is the number of records written per transaction
const ScanCommitBatch = 1000

// StartScan runs the scan job in the background
func (o *Orchestrator) StartScan(jobID int64) bool {
	return o.Start(jobID, store.KindScan, func(ctx context.Context, run *Run) error {
		return o.runScan(ctx, run)
	})
}

func (o *Orchestrator) runScan(ctx context.Context, run *Run) error {
	sc, err := o.store.GetScan(ctx, run.JobID)
	if err != nil {
		return lookupErr(err, ErrScanNotFound, "scan", run.JobID)
	}
	ds, err := o.store.GetDataset(ctx, sc.DatasetID)
	if err != nil {
		return lookupErr(err, ErrDatasetNotFound, "dataset", sc.DatasetID)
	}

	src, err := o.sources(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to create scan source for %s: %w", ds.Name, err)
	}
	if c, ok := src.(source.Closer); ok {
		defer c.Close()
	}

	roots := []string(ds.Roots)
	if sc.Root != "" {
		roots = []string{sc.Root}
	}
	excludes := pathnorm.NewMatcher(pathnorm.MergePatterns(pathnorm.DefaultExcludePatterns, splitPatterns(ds.ScanConfig["exclude_patterns"])))

	if err := run.Tx(ctx, func(tx *sqlx.Tx) error {
		return store.DeleteFileRecords(ctx, tx, sc.JobID)
	}); err != nil {
		return fmt.Errorf("failed to clear previous records: %w", err)
	}

	run.Log("Scanning dataset %s (%s) roots %v", ds.Name, ds.Location, roots)

	var (
		batch    = make([]store.FileRecord, 0, ScanCommitBatch)
		count    int64
		size     uint64
		excluded int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := run.Tx(ctx, func(tx *sqlx.Tx) error {
			return store.InsertFileRecords(ctx, tx, sc.JobID, batch)
		})
		if err != nil {
			return fmt.Errorf("failed to store records: %w", err)
		}
		run.Progress(count, 0, batch[len(batch)-1].RelPath, "scanning")
		batch = batch[:0]
		return nil
	}

	err = src.List(ctx, roots, func(r store.FileRecord) error {
		if excludes.Match(r.RelPath) {
			excluded++
			return nil
		}
		batch = append(batch, r)
		count++
		size += r.Size
		if len(batch) >= ScanCommitBatch {
			return flush()
		}
		return nil
	}, run.Log)
	if err != nil {
		return fmt.Errorf("scan of %s failed after %d files: %w", ds.Name, count, err)
	}
	if err := flush(); err != nil {
		return err
	}

	stored, err := o.store.CountFileRecords(ctx, sc.JobID)
	if err != nil {
		return fmt.Errorf("failed to count stored records: %w", err)
	}
	if stored != count {
		run.Warn("Stored record count %d differs from scanned count %d", stored, count)
	}
	storedSize, err := o.store.SumFileRecordSizes(ctx, sc.JobID)
	if err != nil {
		return fmt.Errorf("failed to sum stored records: %w", err)
	}

	if err := run.Tx(ctx, func(tx *sqlx.Tx) error {
		return store.SetJobTotals(ctx, tx, sc.JobID, stored, storedSize)
	}); err != nil {
		return fmt.Errorf("failed to record scan totals: %w", err)
	}

	run.Progress(stored, stored, "", "scan complete")
	run.Log("Scan complete: %d files, %s, %d excluded", stored, humanize.IBytes(storedSize), excluded)
	return nil
}

func splitPatterns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// lookupErr maps a missing row onto a stage error and passes anything else through
func lookupErr(err, sentinel error, what string, id any) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %v", sentinel, what, id)
	}
	return fmt.Errorf("failed to load %s %v: %w", what, id, err)
}

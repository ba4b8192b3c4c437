package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CreateDiffJob creates a pending diff job comparing two scans
func (s *Store) CreateDiffJob(ctx context.Context, sourceScanID, targetScanID int64) (int64, error) {
	var jobID int64
	err := s.RetryTx(ctx, func(tx *sqlx.Tx) error {
		id, err := insertJob(ctx, tx, KindDiff, JSONMap{
			"source_scan_id": fmt.Sprint(sourceScanID),
			"target_scan_id": fmt.Sprint(targetScanID),
		})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO diffs (job_id, source_scan_id, target_scan_id) VALUES (?, ?, ?)
		`, id, sourceScanID, targetScanID); err != nil {
			return fmt.Errorf("failed to insert diff: %w", err)
		}
		jobID = id
		return nil
	})
	return jobID, err
}

// GetDiff gets the diff linked to a diff job
func (s *Store) GetDiff(ctx context.Context, jobID int64) (*Diff, error) {
	var d Diff
	err := s.db.GetContext(ctx, &d,
		`SELECT job_id, source_scan_id, target_scan_id FROM diffs WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, notFound(err, "diff", jobID)
	}
	return &d, nil
}

// InsertComparisonItems inserts a batch of comparison items for a diff
func InsertComparisonItems(ctx context.Context, tx *sqlx.Tx, diffID int64, items []ComparisonItem) error {
	if len(items) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO comparison_items
		(diff_id, path, source_size, target_size, source_mtime, target_mtime, category)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, diffID, it.Path, it.SourceSize, it.TargetSize,
			it.SourceMtime, it.TargetMtime, it.Category); err != nil {
			return fmt.Errorf("failed to insert comparison item %s: %w", it.Path, err)
		}
	}
	return nil
}

// DeleteComparisonItems removes every item of a diff, used when a diff is re-run
func DeleteComparisonItems(ctx context.Context, tx *sqlx.Tx, diffID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM comparison_items WHERE diff_id = ?`, diffID)
	return err
}

// ListComparisonItems returns the items of a diff ordered by path
func (s *Store) ListComparisonItems(ctx context.Context, diffID int64) ([]ComparisonItem, error) {
	var items []ComparisonItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, diff_id, path, source_size, target_size, source_mtime, target_mtime, category
		FROM comparison_items
		WHERE diff_id = ?
		ORDER BY path
	`, diffID)
	return items, err
}

package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CreateBatchJob creates a pending batch-plan job over a diff
func (s *Store) CreateBatchJob(ctx context.Context, b *Batch) (int64, error) {
	var jobID int64
	err := s.RetryTx(ctx, func(tx *sqlx.Tx) error {
		id, err := insertJob(ctx, tx, KindBatchPlan, JSONMap{"diff_id": fmt.Sprint(b.DiffID)})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO batches (job_id, diff_id, include_conflicts, include_extra, exclude_patterns)
			VALUES (?, ?, ?, ?, ?)
		`, id, b.DiffID, b.IncludeConflicts, b.IncludeExtra, b.ExcludePatterns); err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
		jobID = id
		return nil
	})
	if err == nil {
		b.JobID = jobID
	}
	return jobID, err
}

// GetBatch gets the batch linked to a batch-plan job
func (s *Store) GetBatch(ctx context.Context, jobID int64) (*Batch, error) {
	var b Batch
	err := s.db.GetContext(ctx, &b, `
		SELECT job_id, diff_id, include_conflicts, include_extra, exclude_patterns
		FROM batches WHERE job_id = ?
	`, jobID)
	if err != nil {
		return nil, notFound(err, "batch", jobID)
	}
	return &b, nil
}

// InsertPlanItems inserts the transfer plan of a batch
func InsertPlanItems(ctx context.Context, tx *sqlx.Tx, batchID int64, items []TransferPlanItem) error {
	if len(items) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO plan_items (batch_id, path, size, category, enabled)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, batchID, it.Path, it.Size, it.Category, it.Enabled); err != nil {
			return fmt.Errorf("failed to insert plan item %s: %w", it.Path, err)
		}
	}
	return nil
}

// DeletePlanItems removes the plan of a batch, used when a batch is re-planned
func DeletePlanItems(ctx context.Context, tx *sqlx.Tx, batchID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM plan_items WHERE batch_id = ?`, batchID)
	return err
}

const planItemColumns = `id, batch_id, path, size, category, enabled`

// ListPlanItems returns the plan of a batch in planned order
func (s *Store) ListPlanItems(ctx context.Context, batchID int64) ([]TransferPlanItem, error) {
	var items []TransferPlanItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT `+planItemColumns+` FROM plan_items WHERE batch_id = ? ORDER BY id`, batchID)
	return items, err
}

// ListEnabledPlanItems returns only the enabled items of a batch in planned order
func (s *Store) ListEnabledPlanItems(ctx context.Context, batchID int64) ([]TransferPlanItem, error) {
	var items []TransferPlanItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT `+planItemColumns+` FROM plan_items WHERE batch_id = ? AND enabled = 1 ORDER BY id`, batchID)
	return items, err
}

// SetPlanItemEnabled toggles a single plan item
func (s *Store) SetPlanItemEnabled(ctx context.Context, batchID, itemID int64, enabled bool) error {
	return s.RetryTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE plan_items SET enabled = ? WHERE batch_id = ? AND id = ?`, enabled, batchID, itemID)
		if err != nil {
			return err
		}
		return requireRow(res, "plan item", itemID)
	})
}

// SetAllPlanItemsEnabled toggles every item of a batch and returns how many changed
func (s *Store) SetAllPlanItemsEnabled(ctx context.Context, batchID int64, enabled bool) (int64, error) {
	var changed int64
	err := s.RetryTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE plan_items SET enabled = ? WHERE batch_id = ? AND enabled != ?`, enabled, batchID, enabled)
		if err != nil {
			return err
		}
		changed, err = res.RowsAffected()
		return err
	})
	return changed, err
}

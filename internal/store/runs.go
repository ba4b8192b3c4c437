package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateRun starts a new pipeline run for a batch
func (s *Store) CreateRun(ctx context.Context, batchID int64) (*PipelineRun, error) {
	run := &PipelineRun{
		ID:        uuid.NewString(),
		BatchID:   batchID,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, batch_id, created_at) VALUES (?, ?, ?)`, run.ID, run.BatchID, run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// GetRun gets a pipeline run by id
func (s *Store) GetRun(ctx context.Context, id string) (*PipelineRun, error) {
	var run PipelineRun
	err := s.db.GetContext(ctx, &run, `SELECT id, batch_id, created_at FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "run", id)
	}
	return &run, nil
}

// LatestRun returns the most recent run of a batch
func (s *Store) LatestRun(ctx context.Context, batchID int64) (*PipelineRun, error) {
	var run PipelineRun
	err := s.db.GetContext(ctx, &run, `
		SELECT id, batch_id, created_at FROM runs
		WHERE batch_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, batchID)
	if err != nil {
		return nil, notFound(err, "run for batch", batchID)
	}
	return &run, nil
}

// CreateCopyJob creates a pending copy job for one leg of a run
func (s *Store) CreateCopyJob(ctx context.Context, runID string, batchID int64, leg string, dryRun bool) (int64, error) {
	var jobID int64
	err := s.RetryTx(ctx, func(tx *sqlx.Tx) error {
		id, err := insertJob(ctx, tx, KindCopy, JSONMap{
			"batch_id": fmt.Sprint(batchID),
			"run_id":   runID,
			"leg":      leg,
		})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO copies (job_id, batch_id, run_id, leg, dry_run)
			VALUES (?, ?, ?, ?, ?)
		`, id, batchID, runID, leg, dryRun); err != nil {
			return fmt.Errorf("failed to insert copy: %w", err)
		}
		jobID = id
		return nil
	})
	return jobID, err
}

const copyColumns = `job_id, batch_id, run_id, leg, dry_run, staging_dir`

// GetCopy gets the copy linked to a copy job
func (s *Store) GetCopy(ctx context.Context, jobID int64) (*Copy, error) {
	var c Copy
	err := s.db.GetContext(ctx, &c, `SELECT `+copyColumns+` FROM copies WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, notFound(err, "copy", jobID)
	}
	return &c, nil
}

// FindRunLeg returns the latest copy of the given leg within a run
func (s *Store) FindRunLeg(ctx context.Context, runID, leg string) (*Copy, error) {
	var c Copy
	err := s.db.GetContext(ctx, &c, `
		SELECT `+copyColumns+` FROM copies
		WHERE run_id = ? AND leg = ?
		ORDER BY job_id DESC
		LIMIT 1
	`, runID, leg)
	if err != nil {
		return nil, notFound(err, "leg "+leg+" of run", runID)
	}
	return &c, nil
}

// SetCopyStagingDir records the staging subdirectory a copy used
func SetCopyStagingDir(ctx context.Context, tx *sqlx.Tx, jobID int64, dir string) error {
	_, err := tx.ExecContext(ctx, `UPDATE copies SET staging_dir = ? WHERE job_id = ?`, dir, jobID)
	return err
}

// InsertOutcomes records per-file copy results
func InsertOutcomes(ctx context.Context, tx *sqlx.Tx, outcomes []FileOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO file_outcomes (job_id, path, size, status, error, copied_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, o.JobID, o.Path, o.Size, o.Status, o.Error, o.CopiedAt); err != nil {
			return fmt.Errorf("failed to insert outcome %s: %w", o.Path, err)
		}
	}
	return nil
}

// DeleteOutcomes removes the outcomes of a copy job, used when a copy is re-run
func DeleteOutcomes(ctx context.Context, tx *sqlx.Tx, jobID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM file_outcomes WHERE job_id = ?`, jobID)
	return err
}

// ListOutcomes returns the outcomes of a copy job in recorded order
func (s *Store) ListOutcomes(ctx context.Context, jobID int64) ([]FileOutcome, error) {
	var outcomes []FileOutcome
	err := s.db.SelectContext(ctx, &outcomes, `
		SELECT id, job_id, path, size, status, error, copied_at
		FROM file_outcomes
		WHERE job_id = ?
		ORDER BY id
	`, jobID)
	return outcomes, err
}

// CountOutcomes returns the number of outcomes of a job per status
func (s *Store) CountOutcomes(ctx context.Context, jobID int64) (map[OutcomeStatus]int, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT status, COUNT(*) FROM file_outcomes WHERE job_id = ? GROUP BY status
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[OutcomeStatus]int)
	for rows.Next() {
		var status OutcomeStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

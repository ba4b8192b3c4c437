package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const jobColumns = `id, kind, status, started_at, finished_at, error_message, log, metadata,
	total_files, total_size`

func insertJob(ctx context.Context, tx *sqlx.Tx, kind JobKind, metadata JSONMap) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (kind, status, started_at, metadata)
		VALUES (?, ?, ?, ?)
	`, kind, StatusPending, time.Now().UTC(), metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s job: %w", kind, err)
	}
	return res.LastInsertId()
}

// GetJob gets a job record by id
func (s *Store) GetJob(ctx context.Context, id int64) (*JobRecord, error) {
	var j JobRecord
	err := s.db.GetContext(ctx, &j, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "job", id)
	}
	return &j, nil
}

// ListJobs returns the most recent jobs first. A limit of 0 returns all.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var jobs []JobRecord
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	return jobs, err
}

// ListJobsByStatus returns all jobs in the given status, oldest first
func (s *Store) ListJobsByStatus(ctx context.Context, status JobStatus) ([]JobRecord, error) {
	var jobs []JobRecord
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY id`, status)
	return jobs, err
}

// MarkJobRunning moves a job to running and clears any previous outcome
func MarkJobRunning(ctx context.Context, tx *sqlx.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, started_at = ?, finished_at = NULL, error_message = ''
		WHERE id = ?
	`, StatusRunning, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark job %d running: %w", id, err)
	}
	return requireRow(res, "job", id)
}

// FinishJob records the terminal status of a job together with its log
func FinishJob(ctx context.Context, tx *sqlx.Tx, id int64, status JobStatus, errMsg, log string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, finished_at = ?, error_message = ?, log = ?
		WHERE id = ?
	`, status, time.Now().UTC(), errMsg, log, id)
	if err != nil {
		return fmt.Errorf("failed to finish job %d: %w", id, err)
	}
	return requireRow(res, "job", id)
}

// SetJobTotals records the file count and byte total of a job
func SetJobTotals(ctx context.Context, tx *sqlx.Tx, id int64, files int64, size uint64) error {
	_, err := tx.ExecContext(ctx, `UPDATE jobs SET total_files = ?, total_size = ? WHERE id = ?`, files, size, id)
	return err
}

// ResetJobPending puts a running job back into pending. Jobs in any other
// status are left untouched and false is returned.
func (s *Store) ResetJobPending(ctx context.Context, id int64) (bool, error) {
	var reset bool
	err := s.RetryTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, finished_at = NULL
			WHERE id = ? AND status = ?
		`, StatusPending, id, StatusRunning)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		reset = n > 0
		return err
	})
	return reset, err
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffecter, what string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return nil
}

package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CreateScanJob creates a pending scan job for a dataset root
func (s *Store) CreateScanJob(ctx context.Context, datasetID int64, root string) (int64, error) {
	var jobID int64
	err := s.RetryTx(ctx, func(tx *sqlx.Tx) error {
		id, err := insertJob(ctx, tx, KindScan, JSONMap{"dataset_id": fmt.Sprint(datasetID)})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scans (job_id, dataset_id, root) VALUES (?, ?, ?)`, id, datasetID, root); err != nil {
			return fmt.Errorf("failed to insert scan: %w", err)
		}
		jobID = id
		return nil
	})
	return jobID, err
}

// GetScan gets the scan linked to a scan job
func (s *Store) GetScan(ctx context.Context, jobID int64) (*Scan, error) {
	var sc Scan
	err := s.db.GetContext(ctx, &sc, `SELECT job_id, dataset_id, root FROM scans WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, notFound(err, "scan", jobID)
	}
	return &sc, nil
}

// InsertFileRecords inserts a batch of records for a scan
func InsertFileRecords(ctx context.Context, tx *sqlx.Tx, scanID int64, records []FileRecord) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO file_records (scan_id, rel_path, size, mtime, root_label)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, scanID, r.RelPath, r.Size, r.Mtime, r.RootLabel); err != nil {
			return fmt.Errorf("failed to insert file record %s: %w", r.RelPath, err)
		}
	}
	return nil
}

// DeleteFileRecords removes every record of a scan, used when a scan is re-run
func DeleteFileRecords(ctx context.Context, tx *sqlx.Tx, scanID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM file_records WHERE scan_id = ?`, scanID)
	return err
}

// LoadInventory reads every record of a scan in capture order
func (s *Store) LoadInventory(ctx context.Context, scanID int64) (*Inventory, error) {
	sc, err := s.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}

	var records []FileRecord
	err = s.db.SelectContext(ctx, &records, `
		SELECT id, scan_id, rel_path, size, mtime, root_label
		FROM file_records
		WHERE scan_id = ?
		ORDER BY id
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to read file records of scan %d: %w", scanID, err)
	}

	return &Inventory{ScanID: scanID, Root: sc.Root, Records: records}, nil
}

// CountFileRecords returns the number of stored records of a scan
func (s *Store) CountFileRecords(ctx context.Context, scanID int64) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM file_records WHERE scan_id = ?`, scanID)
	return count, err
}

// SumFileRecordSizes returns the total bytes of the stored records of a scan
func (s *Store) SumFileRecordSizes(ctx context.Context, scanID int64) (uint64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(size), 0) FROM file_records WHERE scan_id = ?`, scanID)
	return uint64(total), err
}

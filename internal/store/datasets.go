package store

import (
	"context"
	"fmt"
	"time"
)

const datasetColumns = `id, name, location, roots, base_path, scan_adapter, scan_config,
	transfer_adapter, transfer_config, created_at`

// CreateDataset inserts a new dataset and returns its id
func (s *Store) CreateDataset(ctx context.Context, d *Dataset) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets
		(name, location, roots, base_path, scan_adapter, scan_config, transfer_adapter, transfer_config, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.Name, d.Location, d.Roots, d.BasePath, d.ScanAdapter, d.ScanConfig,
		d.TransferAdapter, d.TransferConfig, d.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert dataset %q: %w", d.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

// SaveDataset inserts a dataset or replaces the definition of the one with
// the same name, keeping its id.
func (s *Store) SaveDataset(ctx context.Context, d *Dataset) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets
		(name, location, roots, base_path, scan_adapter, scan_config, transfer_adapter, transfer_config, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			location = excluded.location,
			roots = excluded.roots,
			base_path = excluded.base_path,
			scan_adapter = excluded.scan_adapter,
			scan_config = excluded.scan_config,
			transfer_adapter = excluded.transfer_adapter,
			transfer_config = excluded.transfer_config
	`, d.Name, d.Location, d.Roots, d.BasePath, d.ScanAdapter, d.ScanConfig,
		d.TransferAdapter, d.TransferConfig, d.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to save dataset %q: %w", d.Name, err)
	}

	saved, err := s.GetDatasetByName(ctx, d.Name)
	if err != nil {
		return 0, err
	}
	d.ID = saved.ID
	return saved.ID, nil
}

// GetDataset gets a dataset by id
func (s *Store) GetDataset(ctx context.Context, id int64) (*Dataset, error) {
	var d Dataset
	err := s.db.GetContext(ctx, &d, `SELECT `+datasetColumns+` FROM datasets WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "dataset", id)
	}
	return &d, nil
}

// GetDatasetByName gets a dataset by its unique name
func (s *Store) GetDatasetByName(ctx context.Context, name string) (*Dataset, error) {
	var d Dataset
	err := s.db.GetContext(ctx, &d, `SELECT `+datasetColumns+` FROM datasets WHERE name = ?`, name)
	if err != nil {
		return nil, notFound(err, "dataset", name)
	}
	return &d, nil
}

// ListDatasets returns all datasets ordered by name
func (s *Store) ListDatasets(ctx context.Context) ([]Dataset, error) {
	var datasets []Dataset
	err := s.db.SelectContext(ctx, &datasets, `SELECT `+datasetColumns+` FROM datasets ORDER BY name`)
	return datasets, err
}

// DeleteDataset removes a dataset. Datasets referenced by scans cannot be removed.
func (s *Store) DeleteDataset(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}
	return nil
}

package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/franz/stagehop/internal/store"
)

// NewStore opens a migrated store in a temporary directory, closed on cleanup.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// CreateDataset inserts a dataset and returns it with its id set.
func CreateDataset(t *testing.T, s *store.Store, d *store.Dataset) *store.Dataset {
	t.Helper()
	if d.Location == "" {
		d.Location = store.LocationPrimary
	}
	if _, err := s.CreateDataset(context.Background(), d); err != nil {
		t.Fatalf("CreateDataset(%s): %v", d.Name, err)
	}
	return d
}

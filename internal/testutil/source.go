package testutil

import (
	"context"
	"sync"

	"github.com/franz/stagehop/internal/source"
	"github.com/franz/stagehop/internal/store"
)

// FakeSource yields a fixed set of records per dataset name. Safe for
// concurrent use.
type FakeSource struct {
	mu      sync.Mutex
	records map[string][]store.FileRecord
	errs    map[string]error
	Lists   int
}

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		records: make(map[string][]store.FileRecord),
		errs:    make(map[string]error),
	}
}

// Set replaces the records listed for a dataset.
func (f *FakeSource) Set(dataset string, records ...store.FileRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[dataset] = records
}

// FailAfter makes listing a dataset fail with err once its records are yielded.
func (f *FakeSource) FailAfter(dataset string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[dataset] = err
}

// Factory returns a source.Factory serving the fake's records.
func (f *FakeSource) Factory() source.Factory {
	return func(_ context.Context, d *store.Dataset) (source.ScanSource, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		return &fakeList{owner: f, records: f.records[d.Name], err: f.errs[d.Name]}, nil
	}
}

type fakeList struct {
	owner   *FakeSource
	records []store.FileRecord
	err     error
}

func (l *fakeList) List(ctx context.Context, _ []string, yield func(store.FileRecord) error, _ func(string, ...any)) error {
	l.owner.mu.Lock()
	l.owner.Lists++
	l.owner.mu.Unlock()

	for _, r := range l.records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(r); err != nil {
			return err
		}
	}
	return l.err
}

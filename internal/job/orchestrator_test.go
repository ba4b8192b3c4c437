package job

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/franz/stagehop/internal/report"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/testutil"
)

type harness struct {
	store     *store.Store
	sink      *testutil.RecordingSink
	source    *testutil.FakeSource
	transfer  *testutil.FakeTransfer
	staging   string
	orch      *Orchestrator
	primary   *store.Dataset
	secondary *store.Dataset
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    testutil.NewStore(t),
		sink:     &testutil.RecordingSink{},
		source:   testutil.NewFakeSource(),
		transfer: &testutil.FakeTransfer{},
		staging:  t.TempDir(),
	}
	h.orch = New(&Config{
		Store:      h.store,
		Sink:       h.sink,
		Sources:    h.source.Factory(),
		Transfers:  h.transfer.Factory(),
		StagingDir: h.staging,
	})
	h.primary = testutil.CreateDataset(t, h.store, &store.Dataset{
		Name: "nas1", Location: store.LocationPrimary, Roots: store.StringList{"Filmy"}, BasePath: "/mnt/nas1",
	})
	h.secondary = testutil.CreateDataset(t, h.store, &store.Dataset{
		Name: "nas2", Location: store.LocationSecondary, Roots: store.StringList{"Media/Filmy"}, BasePath: "/mnt/nas2",
	})
	return h
}

func (h *harness) job(t *testing.T, id int64) *store.JobRecord {
	t.Helper()
	j, err := h.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob(%d): %v", id, err)
	}
	return j
}

func (h *harness) newJob(t *testing.T) int64 {
	t.Helper()
	id, err := h.store.CreateScanJob(context.Background(), h.primary.ID, "")
	if err != nil {
		t.Fatalf("CreateScanJob: %v", err)
	}
	return id
}

func TestStartTwiceExecutesOnce(t *testing.T) {
	h := newHarness(t)
	id := h.newJob(t)

	release := make(chan struct{})
	var runs atomic.Int32
	work := func(ctx context.Context, run *Run) error {
		runs.Add(1)
		<-release
		return nil
	}

	if !h.orch.Start(id, store.KindScan, work) {
		t.Fatal("first Start should launch the job")
	}
	if h.orch.Start(id, store.KindScan, work) {
		t.Error("second Start should be ignored while the job is live")
	}
	if !h.orch.IsLive(id) {
		t.Error("job should be live")
	}

	close(release)
	h.orch.Wait(id)

	if runs.Load() != 1 {
		t.Errorf("expected work to run once, ran %d times", runs.Load())
	}
	if h.orch.IsLive(id) {
		t.Error("job should no longer be live")
	}
	if j := h.job(t, id); j.Status != store.StatusCompleted || !j.FinishedAt.Valid {
		t.Errorf("unexpected job state: %+v", j)
	}

	types := h.sink.Types(id)
	if len(types) != 2 || types[0] != report.EventStarted || types[1] != report.EventFinished {
		t.Errorf("unexpected events: %v", types)
	}
}

func TestEnvelopeRecordsFailure(t *testing.T) {
	h := newHarness(t)
	id := h.newJob(t)

	h.orch.Start(id, store.KindScan, func(ctx context.Context, run *Run) error {
		run.Log("working on %s", "it")
		return errors.New("disk on fire")
	})
	h.orch.WaitAll()

	j := h.job(t, id)
	if j.Status != store.StatusFailed || j.ErrorMessage != "disk on fire" {
		t.Errorf("unexpected job state: %+v", j)
	}
	if !strings.Contains(j.Log, "working on it") || !strings.Contains(j.Log, "disk on fire") {
		t.Errorf("log not persisted: %q", j.Log)
	}

	events := h.sink.ForJob(id)
	last := events[len(events)-1]
	if last.Type != report.EventFinished || last.Status != store.StatusFailed || last.Error != "disk on fire" {
		t.Errorf("unexpected finished event: %+v", last)
	}
}

func TestEnvelopeCatchesPanic(t *testing.T) {
	h := newHarness(t)
	id := h.newJob(t)

	h.orch.Start(id, store.KindScan, func(ctx context.Context, run *Run) error {
		panic("boom")
	})
	h.orch.WaitAll()

	j := h.job(t, id)
	if j.Status != store.StatusFailed || !strings.Contains(j.ErrorMessage, "panicked") || !strings.Contains(j.ErrorMessage, "boom") {
		t.Errorf("panic not recorded: %+v", j)
	}
}

func TestEnvelopeTruncatesErrorTail(t *testing.T) {
	h := newHarness(t)
	id := h.newJob(t)

	long := strings.Repeat("early line\n", 1000) + "the real cause"
	h.orch.Start(id, store.KindScan, func(ctx context.Context, run *Run) error {
		return errors.New(long)
	})
	h.orch.WaitAll()

	j := h.job(t, id)
	if len(j.ErrorMessage) > MaxErrorLen {
		t.Errorf("error message not bounded: %d bytes", len(j.ErrorMessage))
	}
	if !strings.HasSuffix(j.ErrorMessage, "the real cause") {
		t.Errorf("tail of the error was not kept")
	}
}

func TestEnvelopeUnknownJob(t *testing.T) {
	h := newHarness(t)

	ran := false
	h.orch.Start(999, store.KindScan, func(ctx context.Context, run *Run) error {
		ran = true
		return nil
	})
	h.orch.WaitAll()

	if ran {
		t.Error("work should not run for a job without a record")
	}
	events := h.sink.ForJob(999)
	if len(events) != 2 || events[1].Status != store.StatusFailed {
		t.Errorf("expected a failed finished event, got %+v", events)
	}
}

func TestEnvelopeStartFailureRecorded(t *testing.T) {
	h := newHarness(t)
	id := h.newJob(t)

	_, err := h.store.DB().Exec(`
		CREATE TRIGGER refuse_running BEFORE UPDATE OF status ON jobs
		WHEN NEW.status = 'running'
		BEGIN SELECT RAISE(ABORT, 'disk I/O error'); END
	`)
	if err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}

	ran := false
	h.orch.Start(id, store.KindScan, func(ctx context.Context, run *Run) error {
		ran = true
		return nil
	})
	h.orch.WaitAll()

	if ran {
		t.Error("work should not run when the job cannot be marked running")
	}
	j := h.job(t, id)
	if j.Status != store.StatusFailed || !j.FinishedAt.Valid {
		t.Errorf("expected a failed, finished record, got %+v", j)
	}
	if !strings.Contains(j.ErrorMessage, "could not start job") || !strings.Contains(j.ErrorMessage, "disk I/O error") {
		t.Errorf("start failure not recorded: %q", j.ErrorMessage)
	}
	events := h.sink.ForJob(id)
	if last := events[len(events)-1]; last.Type != report.EventFinished || last.Status != store.StatusFailed {
		t.Errorf("unexpected finished event: %+v", last)
	}
}

func TestRunTxRetriesOnce(t *testing.T) {
	h := newHarness(t)
	id := h.newJob(t)

	var attempts int
	h.orch.Start(id, store.KindScan, func(ctx context.Context, run *Run) error {
		return run.Tx(ctx, func(tx *sqlx.Tx) error {
			attempts++
			if attempts == 1 {
				return errors.New("database is locked")
			}
			return nil
		})
	})
	h.orch.WaitAll()

	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	j := h.job(t, id)
	if j.Status != store.StatusCompleted || !strings.Contains(j.Log, "retrying") {
		t.Errorf("expected completed job with retry logged: %+v", j)
	}
}

func TestRecoverStuck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stuck := h.newJob(t)
	if err := h.store.RetryTx(ctx, func(tx *sqlx.Tx) error {
		return store.MarkJobRunning(ctx, tx, stuck)
	}); err != nil {
		t.Fatal(err)
	}

	live := h.newJob(t)
	release := make(chan struct{})
	started := make(chan struct{})
	h.orch.Start(live, store.KindScan, func(ctx context.Context, run *Run) error {
		close(started)
		<-release
		return nil
	})
	<-started

	reset, err := h.orch.RecoverStuck(ctx)
	if err != nil {
		t.Fatalf("RecoverStuck failed: %v", err)
	}
	if len(reset) != 1 || reset[0] != stuck {
		t.Errorf("expected only job %d to be reset, got %v", stuck, reset)
	}
	if j := h.job(t, stuck); j.Status != store.StatusPending {
		t.Errorf("stuck job should be pending, got %s", j.Status)
	}
	if j := h.job(t, live); j.Status != store.StatusRunning {
		t.Errorf("live job should stay running, got %s", j.Status)
	}

	close(release)
	h.orch.WaitAll()
}

func TestTruncateTail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abcdef", 6, "abcdef"},
		{"line boundary", "first line\nsecond line\nthird", 20, "[truncated]\nthird"},
		{"no newline", "abcdefghijklmnopqrstuvwxyz", 16, "[truncated]\nwxyz"},
		{"tiny max", "abcdef", 3, "def"},
		{"utf8 safe", "ééééééééééé", 15, "[truncated]\né"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateTail(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("TruncateTail(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if len(got) > tt.max {
				t.Errorf("result exceeds max: %d > %d", len(got), tt.max)
			}
		})
	}
}

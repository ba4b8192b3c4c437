// Package job runs pipeline stages as tracked background jobs.
package job

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/sourcegraph/conc/panics"

	"github.com/franz/stagehop/internal/report"
	"github.com/franz/stagehop/internal/source"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/transfer"
	"github.com/franz/stagehop/internal/util"
)

const (
	// MaxErrorLen bounds the error message stored on a job. The tail is kept.
	MaxErrorLen = 4096
	// MaxLogLen bounds the log stored on a job. The tail is kept.
	MaxLogLen = 64 * 1024
)

// WorkFunc is the body of a job
type WorkFunc func(ctx context.Context, run *Run) error

// Config holds orchestrator dependencies
type Config struct {
	Store      *store.Store
	Sink       report.EventSink
	Sources    source.Factory
	Transfers  transfer.Factory
	StagingDir string
}

// Orchestrator starts jobs on their own goroutines and guarantees that at
// most one execution per job id is live at a time.
type Orchestrator struct {
	store      *store.Store
	sink       report.EventSink
	sources    source.Factory
	transfers  transfer.Factory
	stagingDir string

	mu   sync.Mutex
	live map[int64]chan struct{}
	wg   sync.WaitGroup
}

type discardSink struct{}

func (discardSink) Emit(report.Event) {}

// New creates a new Orchestrator
func New(cfg *Config) *Orchestrator {
	if cfg.Sink == nil {
		cfg.Sink = discardSink{}
	}
	if cfg.Sources == nil {
		cfg.Sources = source.New
	}
	if cfg.Transfers == nil {
		cfg.Transfers = transfer.NewFactory(transfer.Options{})
	}

	return &Orchestrator{
		store:      cfg.Store,
		sink:       cfg.Sink,
		sources:    cfg.Sources,
		transfers:  cfg.Transfers,
		stagingDir: cfg.StagingDir,
		live:       make(map[int64]chan struct{}),
	}
}

// Start launches work for a job unless an execution is already live, in
// which case it returns false and does nothing.
func (o *Orchestrator) Start(jobID int64, kind store.JobKind, work WorkFunc) bool {
	o.mu.Lock()
	if _, ok := o.live[jobID]; ok {
		o.mu.Unlock()
		util.DebugLog("Job %d is already running, ignoring start", jobID)
		return false
	}
	done := make(chan struct{})
	o.live[jobID] = done
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.live, jobID)
			o.mu.Unlock()
			close(done)
		}()
		o.execute(context.Background(), jobID, kind, work)
	}()
	return true
}

// IsLive reports whether an execution of the job is in progress
func (o *Orchestrator) IsLive(jobID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.live[jobID]
	return ok
}

// Wait blocks until the live execution of a job, if any, finishes
func (o *Orchestrator) Wait(jobID int64) {
	o.mu.Lock()
	done, ok := o.live[jobID]
	o.mu.Unlock()
	if ok {
		<-done
	}
}

// WaitAll blocks until every started job has finished
func (o *Orchestrator) WaitAll() {
	o.wg.Wait()
}

// RecoverStuck resets running jobs that have no live execution back to
// pending. Returns the ids that were reset.
func (o *Orchestrator) RecoverStuck(ctx context.Context) ([]int64, error) {
	running, err := o.store.ListJobsByStatus(ctx, store.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to list running jobs: %w", err)
	}

	var reset []int64
	for _, j := range running {
		if o.IsLive(j.ID) {
			continue
		}
		ok, err := o.store.ResetJobPending(ctx, j.ID)
		if err != nil {
			return reset, fmt.Errorf("failed to reset job %d: %w", j.ID, err)
		}
		if ok {
			util.WarnLog("Recovered stuck %s job %d (running since %s)", j.Kind, j.ID, j.StartedAt.Format(time.RFC3339))
			reset = append(reset, j.ID)
		}
	}
	return reset, nil
}

// execute is the envelope around every job body
func (o *Orchestrator) execute(ctx context.Context, jobID int64, kind store.JobKind, work WorkFunc) {
	run := &Run{JobID: jobID, Kind: kind, o: o}
	o.sink.Emit(report.Started(jobID, kind))

	err := o.store.RetryTx(ctx, func(tx *sqlx.Tx) error {
		return store.MarkJobRunning(ctx, tx, jobID)
	})
	if err != nil {
		util.ErrorLog("Job %d could not be started: %v", jobID, err)
		startErr := fmt.Errorf("could not start job: %w", err)
		msg := TruncateTail(startErr.Error(), MaxErrorLen)
		if ferr := o.store.RetryTx(ctx, func(tx *sqlx.Tx) error {
			return store.FinishJob(ctx, tx, jobID, store.StatusFailed, msg, "")
		}); ferr != nil {
			util.ErrorLog("Failed to record start failure of job %d: %v", jobID, ferr)
		}
		o.sink.Emit(report.Finished(jobID, kind, startErr))
		return
	}

	var catcher panics.Catcher
	var workErr error
	catcher.Try(func() { workErr = work(ctx, run) })
	if r := catcher.Recovered(); r != nil {
		workErr = fmt.Errorf("job panicked: %w", r.AsError())
	}

	status, msg := store.StatusCompleted, ""
	if workErr != nil {
		status = store.StatusFailed
		msg = TruncateTail(workErr.Error(), MaxErrorLen)
		run.appendLog("ERROR", msg)
	}

	err = o.store.RetryTx(ctx, func(tx *sqlx.Tx) error {
		return store.FinishJob(ctx, tx, jobID, status, msg, TruncateTail(run.logText(), MaxLogLen))
	})
	if err != nil {
		util.ErrorLog("Failed to record result of job %d: %v", jobID, err)
	}

	o.sink.Emit(report.Finished(jobID, kind, workErr))
}

// Run is handed to a job body for reporting and persistence
type Run struct {
	JobID int64
	Kind  store.JobKind

	o   *Orchestrator
	mu  sync.Mutex
	log strings.Builder
}

// Progress emits a progress event
func (r *Run) Progress(count, total int64, path, msg string) {
	r.o.sink.Emit(report.Progress(r.JobID, r.Kind, count, total, path, msg))
}

// Log records an info line in the job log
func (r *Run) Log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.appendLog("INFO", msg)
	r.o.sink.Emit(report.Log(r.JobID, r.Kind, report.LevelInfo, msg))
}

// Warn records a warning line in the job log
func (r *Run) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.appendLog("WARN", msg)
	r.o.sink.Emit(report.Log(r.JobID, r.Kind, report.LevelWarning, msg))
}

// Tx runs fn in a transaction that is rolled back and retried once
func (r *Run) Tx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return r.o.store.RetryTxNotify(ctx, fn, func(err error) {
		r.Warn("Transaction failed, retrying: %v", err)
	})
}

func (r *Run) appendLog(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(&r.log, "%s [%s] %s\n", time.Now().Format("15:04:05"), level, msg)
	// keep memory bounded on chatty jobs
	if r.log.Len() > 2*MaxLogLen {
		tail := TruncateTail(r.log.String(), MaxLogLen)
		r.log.Reset()
		r.log.WriteString(tail)
	}
}

func (r *Run) logText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.String()
}

const truncatedMarker = "[truncated]\n"

// TruncateTail shortens s to at most max bytes by dropping its beginning.
// The cut moves forward to the next line start when one is available.
func TruncateTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= len(truncatedMarker) {
		return s[len(s)-max:]
	}

	tail := s[len(s)-(max-len(truncatedMarker)):]
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i < len(tail)-1 {
		tail = tail[i+1:]
	} else {
		for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
			tail = tail[1:]
		}
	}
	return truncatedMarker + tail
}

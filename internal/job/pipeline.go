package job

import (
	"context"
	"fmt"

	"github.com/franz/stagehop/internal/store"
)

// Legs in the order a pipeline run executes them
var Legs = []string{store.LegPrimaryToStaging, store.LegStagingToSecondary}

// LegResult is the outcome of one leg of a pipeline run
type LegResult struct {
	Leg   string
	JobID int64
	Job   *store.JobRecord
}

// CopyBatch creates a pipeline run for a batch and executes the given legs
// one after another, waiting for each. The run stops early when a leg copied
// nothing.
func (o *Orchestrator) CopyBatch(ctx context.Context, batchID int64, dryRun bool, legs []string) (*store.PipelineRun, []LegResult, error) {
	if _, err := o.store.GetBatch(ctx, batchID); err != nil {
		return nil, nil, lookupErr(err, ErrBatchNotFound, "batch", batchID)
	}
	if len(legs) == 0 {
		legs = Legs
	}

	run, err := o.store.CreateRun(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}

	var results []LegResult
	for _, leg := range legs {
		jobID, err := o.store.CreateCopyJob(ctx, run.ID, batchID, leg, dryRun)
		if err != nil {
			return run, results, fmt.Errorf("failed to create %s job: %w", leg, err)
		}
		o.StartCopy(jobID)
		o.Wait(jobID)

		j, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return run, results, err
		}
		results = append(results, LegResult{Leg: leg, JobID: jobID, Job: j})

		if j.Status == store.StatusFailed && j.TotalFiles == 0 {
			return run, results, fmt.Errorf("leg %s failed: %s", leg, j.ErrorMessage)
		}
	}
	return run, results, nil
}

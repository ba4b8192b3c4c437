package job

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"

	"github.com/franz/stagehop/internal/plan"
	"github.com/franz/stagehop/internal/store"
)

var planSteps = map[plan.Step]int64{
	plan.StepCategory: 1,
	plan.StepExclude:  2,
	plan.StepSort:     3,
}

// StartBatchPlan runs the batch planning job in the background
func (o *Orchestrator) StartBatchPlan(jobID int64) bool {
	return o.Start(jobID, store.KindBatchPlan, func(ctx context.Context, run *Run) error {
		return o.runBatchPlan(ctx, run)
	})
}

func (o *Orchestrator) runBatchPlan(ctx context.Context, run *Run) error {
	b, err := o.store.GetBatch(ctx, run.JobID)
	if err != nil {
		return lookupErr(err, ErrBatchNotFound, "batch", run.JobID)
	}
	if _, err := o.store.GetDiff(ctx, b.DiffID); err != nil {
		return lookupErr(err, ErrDiffNotFound, "diff", b.DiffID)
	}
	if dj, err := o.store.GetJob(ctx, b.DiffID); err != nil {
		return lookupErr(err, ErrDiffNotFound, "diff", b.DiffID)
	} else if dj.Status != store.StatusCompleted {
		return fmt.Errorf("%w: diff %d is %s", ErrDiffNotFound, b.DiffID, dj.Status)
	}

	items, err := o.store.ListComparisonItems(ctx, b.DiffID)
	if err != nil {
		return fmt.Errorf("failed to load comparison items: %w", err)
	}

	policy := plan.Policy{
		IncludeConflicts: b.IncludeConflicts,
		IncludeExtra:     b.IncludeExtra,
		ExcludePatterns:  b.ExcludePatterns,
	}
	run.Log("Planning batch from diff %d (%d items, conflicts=%t, extra=%t, %d exclude patterns)",
		b.DiffID, len(items), policy.IncludeConflicts, policy.IncludeExtra, len(policy.ExcludePatterns))

	planned := plan.Plan(items, policy, func(step plan.Step, remaining int) {
		run.Progress(planSteps[step], int64(len(planSteps)), "", fmt.Sprintf("%s: %d items", step, remaining))
	})

	summary := plan.Summarize(planned, 0)
	err = run.Tx(ctx, func(tx *sqlx.Tx) error {
		if err := store.DeletePlanItems(ctx, tx, b.JobID); err != nil {
			return err
		}
		if err := store.InsertPlanItems(ctx, tx, b.JobID, planned); err != nil {
			return err
		}
		return store.SetJobTotals(ctx, tx, b.JobID, int64(summary.Items), summary.EnabledBytes)
	})
	if err != nil {
		return fmt.Errorf("failed to store plan items: %w", err)
	}

	run.Log("Batch planned: %d items, %s", summary.Items, humanize.IBytes(summary.EnabledBytes))
	return nil
}

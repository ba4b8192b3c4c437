package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/stagehop/internal/job"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

var copyCmd = &cobra.Command{
	Use:   "copy <batch>",
	Short: "Move the enabled items of a batch through staging",
	Long: `Run a batch as a pipeline run with two legs:
  primary-staging     primary dataset -> <staging>/job-<id>
  staging-secondary   that staging directory -> secondary dataset

Each leg is its own copy job with a per-file outcome. The second leg finds
the staging directory of the first through the run. Use --leg to run a
single leg, and --dry-run to let the transfer report without writing.`,
	Args: cobra.ExactArgs(1),
	RunE: runCopy,
}

func init() {
	rootCmd.AddCommand(copyCmd)

	copyCmd.Flags().Bool("dry-run", false, "report what would be copied without writing")
	copyCmd.Flags().StringSlice("leg", nil, "run only these legs (primary-staging, staging-secondary)")
	copyCmd.Flags().Int("concurrency", 4, "parallel copies for the native transfer adapter")
	copyCmd.Flags().String("rsync", "rsync", "rsync binary")

	viper.BindPFlag("concurrency", copyCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("transfer.rsync", copyCmd.Flags().Lookup("rsync"))
}

func runCopy(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	batchID, err := parseID(args[0], "batch")
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	legs, _ := cmd.Flags().GetStringSlice("leg")
	for _, l := range legs {
		if l != store.LegPrimaryToStaging && l != store.LegStagingToSecondary {
			return fmt.Errorf("unknown leg %q", l)
		}
	}

	if viper.GetString("staging") == "" {
		return fmt.Errorf("staging directory is required (use --staging or set staging in config)")
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	mode := ""
	if dryRun {
		mode = " (DRY RUN)"
	}
	util.InfoLog("=== Copy batch %d%s ===", batchID, mode)
	util.InfoLog("Staging: %s", viper.GetString("staging"))

	start := time.Now()
	run, results, runErr := e.orch.CopyBatch(ctx, batchID, dryRun, legs)
	if run != nil {
		util.InfoLog("Run: %s", run.ID)
	}

	if len(results) > 0 {
		printLegs(cmd, e.db, results)
	}
	if runErr != nil {
		return runErr
	}

	failed := 0
	for _, r := range results {
		if r.Job.Status == store.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		util.WarnLog("%d of %d legs finished with failures", failed, len(results))
	} else {
		util.SuccessLog("Copy complete in %v", time.Since(start).Round(time.Millisecond))
	}
	if run != nil {
		util.InfoLog("Next step: hop report %s", run.ID)
	}
	return nil
}

func printLegs(cmd *cobra.Command, db *store.Store, results []job.LegResult) {
	ctx := context.Background()

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Leg", "Job", "Status", "Copied", "Failed", "Skipped", "Size", "Error"})
	for _, r := range results {
		counts, err := db.CountOutcomes(ctx, r.JobID)
		if err != nil {
			util.WarnLog("Failed to count outcomes of job %d: %v", r.JobID, err)
		}
		t.AppendRow(table.Row{
			r.Leg, r.JobID, r.Job.Status,
			counts[store.OutcomeCopied], counts[store.OutcomeFailed], counts[store.OutcomeSkipped],
			util.FormatBytes(r.Job.TotalSize),
			firstLine(r.Job.ErrorMessage, 60),
		})
	}
	t.Render()
}

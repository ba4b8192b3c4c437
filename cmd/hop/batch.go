package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/stagehop/internal/plan"
	"github.com/franz/stagehop/internal/report"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Plan and review transfer batches",
}

var batchPlanCmd = &cobra.Command{
	Use:   "plan <diff>",
	Short: "Select diff results into an ordered transfer plan",
	Long: `Select items of a completed diff into a transfer plan. Missing items are
always selected; conflicts and extras only when asked for. Paths matching an
exclude pattern (file name, glob or substring) are dropped, and the rest are
ordered smallest first so a small staging store carries as many files as
possible. Every planned item starts enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchPlan,
}

var batchSummaryCmd = &cobra.Command{
	Use:   "summary <batch>",
	Short: "Show the size of a batch against the free staging space",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchSummary,
}

var batchToggleCmd = &cobra.Command{
	Use:   "toggle <batch> [item]",
	Short: "Enable or disable plan items",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runBatchToggle,
}

var batchScriptCmd = &cobra.Command{
	Use:   "script <batch>",
	Short: "Write a bash script that copies a batch with rsync",
	Long: `Write a standalone bash script that copies the enabled items of a batch
with rsync, for copying by hand on a machine without hop. The script takes
the source and destination roots as arguments and lists failed files at the
end. --direction picks the leg shown in the usage example (primary-staging
or staging-secondary).`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchScript,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchPlanCmd, batchSummaryCmd, batchToggleCmd, batchScriptCmd,
		newRemoveCmd(store.KindBatchPlan, "batch", "copy jobs"))

	batchPlanCmd.Flags().Bool("conflicts", false, "include conflicting files")
	batchPlanCmd.Flags().Bool("extra", false, "include files only present in the target")
	batchPlanCmd.Flags().StringSlice("exclude", nil, "exclude pattern (repeatable)")

	batchSummaryCmd.Flags().Bool("items", false, "list every plan item")

	batchToggleCmd.Flags().Bool("enabled", true, "enable (true) or disable (false)")
	batchToggleCmd.Flags().Bool("all", false, "apply to every item of the batch")

	batchScriptCmd.Flags().String("direction", store.LegPrimaryToStaging, "copy leg: primary-staging or staging-secondary")
	batchScriptCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
}

func runBatchPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	diffID, err := parseID(args[0], "diff")
	if err != nil {
		return err
	}
	conflicts, _ := cmd.Flags().GetBool("conflicts")
	extra, _ := cmd.Flags().GetBool("extra")
	excludes, _ := cmd.Flags().GetStringSlice("exclude")

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	b := &store.Batch{
		DiffID:           diffID,
		IncludeConflicts: conflicts,
		IncludeExtra:     extra,
		ExcludePatterns:  excludes,
	}
	jobID, err := e.db.CreateBatchJob(ctx, b)
	if err != nil {
		return fmt.Errorf("failed to create batch job: %w", err)
	}

	util.InfoLog("=== Batch %d from diff %d ===", jobID, diffID)
	e.orch.StartBatchPlan(jobID)
	e.orch.Wait(jobID)

	j, err := e.db.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != store.StatusCompleted {
		return fmt.Errorf("batch %d failed: %s", jobID, j.ErrorMessage)
	}

	if err := printBatchSummary(cmd, e.db, jobID, false); err != nil {
		return err
	}
	util.InfoLog("Next step: hop copy %d --dry-run", jobID)
	return nil
}

func runBatchSummary(cmd *cobra.Command, args []string) error {
	batchID, err := parseID(args[0], "batch")
	if err != nil {
		return err
	}
	items, _ := cmd.Flags().GetBool("items")

	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	return printBatchSummary(cmd, db, batchID, items)
}

func printBatchSummary(cmd *cobra.Command, db *store.Store, batchID int64, listItems bool) error {
	ctx := context.Background()
	b, err := db.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	items, err := db.ListPlanItems(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to load plan items: %w", err)
	}

	var free uint64
	staging := viper.GetString("staging")
	if staging != "" {
		if du, err := util.GetDiskUsage(staging); err != nil {
			util.WarnLog("Cannot determine staging free space: %v", err)
		} else {
			free = du.Free
		}
	}
	s := plan.Summarize(items, free)

	if listItems {
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"ID", "Path", "Category", "Size", "Enabled"})
		for _, it := range items {
			t.AppendRow(table.Row{it.ID, it.Path, it.Category, util.FormatBytes(it.Size), it.Enabled})
		}
		t.Render()
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("Batch %d (diff %d)", batchID, b.DiffID))
	t.AppendRows([]table.Row{
		{"Items", s.Items},
		{"Enabled", s.Enabled},
		{"Enabled size", util.FormatBytes(s.EnabledBytes)},
	})
	if staging != "" {
		fits := "yes"
		if !s.Fits {
			fits = "no"
		}
		t.AppendRows([]table.Row{
			{"Staging free", util.FormatBytes(s.StagingFree)},
			{"Fits staging", fits},
		})
	}
	t.Render()

	if staging != "" && !s.Fits {
		util.WarnLog("Enabled items exceed the free staging space; disable some with 'hop batch toggle'")
	}
	return nil
}

func runBatchToggle(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	batchID, err := parseID(args[0], "batch")
	if err != nil {
		return err
	}
	enabled, _ := cmd.Flags().GetBool("enabled")
	all, _ := cmd.Flags().GetBool("all")

	if all == (len(args) == 2) {
		return fmt.Errorf("give either an item id or --all")
	}

	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if all {
		n, err := db.SetAllPlanItemsEnabled(ctx, batchID, enabled)
		if err != nil {
			return err
		}
		util.SuccessLog("Set enabled=%t on %d items of batch %d", enabled, n, batchID)
		return nil
	}

	itemID, err := parseID(args[1], "item")
	if err != nil {
		return err
	}
	if err := db.SetPlanItemEnabled(ctx, batchID, itemID, enabled); err != nil {
		return err
	}
	util.SuccessLog("Item %d of batch %d enabled=%t", itemID, batchID, enabled)
	return nil
}

func runBatchScript(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	batchID, err := parseID(args[0], "batch")
	if err != nil {
		return err
	}
	direction, _ := cmd.Flags().GetString("direction")
	out, _ := cmd.Flags().GetString("out")

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	s, err := e.orch.CopyScript(ctx, batchID, direction)
	if err != nil {
		return err
	}

	if out == "" {
		return report.WriteCopyScript(cmd.OutOrStdout(), *s)
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer f.Close()
	if err := report.WriteCopyScript(f, *s); err != nil {
		return err
	}
	util.SuccessLog("Wrote %s (%d files)", out, len(s.Files))
	return nil
}

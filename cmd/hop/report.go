package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/stagehop/internal/report"
	"github.com/franz/stagehop/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Write a Markdown report of a pipeline run",
	Long: `Generate a Markdown report of a pipeline run: the plan, every copy leg
with its per-file outcome counts, and the most common errors.

Give a run id, or --batch to report the latest run of a batch. The report is
saved to <artifacts>/reports/<timestamp>/run.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Int64("batch", 0, "report the latest run of this batch")
	reportCmd.Flags().String("out", "", "output directory (default: <artifacts>/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "event log to reference in the report")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	batchID, _ := cmd.Flags().GetInt64("batch")
	if (len(args) == 1) == (batchID != 0) {
		return fmt.Errorf("give either a run id or --batch")
	}

	db, path, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	runID := ""
	if len(args) == 1 {
		runID = args[0]
	} else {
		run, err := db.LatestRun(ctx, batchID)
		if err != nil {
			return err
		}
		runID = run.ID
	}

	util.InfoLog("=== Generating Run Report ===")
	r, err := report.GenerateRunReport(ctx, db, runID)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	r.DatabasePath = path
	r.EventLogPath, _ = cmd.Flags().GetString("event-log")

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(GetConfigString("artifacts", "artifacts"), "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "run.md")

	if err := report.WriteMarkdownReport(r, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report saved to: %s", outputPath)
	for _, leg := range r.Legs {
		util.InfoLog("  %s (job %d): %s, %d copied, %d failed, %d skipped, %s",
			leg.Leg, leg.JobID, leg.Status, leg.Copied, leg.Failed, leg.Skipped, util.FormatBytes(leg.BytesCopied))
	}
	return nil
}

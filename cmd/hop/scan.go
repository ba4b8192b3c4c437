package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/stagehop/internal/report"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dataset>",
	Short: "Snapshot the file metadata of a dataset",
	Long: `Scan the roots of a dataset and record every file with its size and
modification time. Records are committed in batches, so an interrupted scan
keeps what it already stored. Re-running a scan replaces its records.

Common OS housekeeping files (.DS_Store, Thumbs.db, @eaDir, ...) are excluded,
together with the comma-separated exclude_patterns of the dataset's
scan_config.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var scanExportCmd = &cobra.Command{
	Use:   "export <scan>",
	Short: "Export the records of a scan as CSV",
	Long: `Write the records of a completed scan as CSV, sorted by path, with the
columns path, size_bytes, size_gb and mtime (local time).`,
	Args: cobra.ExactArgs(1),
	RunE: runScanExport,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.AddCommand(scanExportCmd, newRemoveCmd(store.KindScan, "scan", "diffs"))

	scanCmd.Flags().String("root", "", "scan only this root instead of the dataset's roots")
	scanExportCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	root, _ := cmd.Flags().GetString("root")

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	d, err := e.db.GetDatasetByName(ctx, args[0])
	if err != nil {
		return err
	}

	jobID, err := e.db.CreateScanJob(ctx, d.ID, root)
	if err != nil {
		return fmt.Errorf("failed to create scan job: %w", err)
	}

	util.InfoLog("=== Scan %d: %s (%s) ===", jobID, d.Name, d.Location)
	start := time.Now()
	e.orch.StartScan(jobID)
	e.orch.Wait(jobID)

	j, err := e.db.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != store.StatusCompleted {
		return fmt.Errorf("scan %d failed: %s", jobID, j.ErrorMessage)
	}

	util.SuccessLog("Scan complete in %v", time.Since(start).Round(time.Millisecond))
	util.InfoLog("  Files: %d", j.TotalFiles)
	util.InfoLog("  Size:  %s", util.FormatBytes(j.TotalSize))
	util.InfoLog("")
	util.InfoLog("Next step: hop diff <source-scan> <target-scan>")
	return nil
}

func runScanExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	scanID, err := parseID(args[0], "scan")
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")

	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	j, err := db.GetJob(ctx, scanID)
	if err != nil {
		return err
	}
	if j.Kind != store.KindScan {
		return fmt.Errorf("job %d is a %s job, not a scan", scanID, j.Kind)
	}
	if j.Status != store.StatusCompleted {
		util.WarnLog("Scan %d is %s, the export may be incomplete", scanID, j.Status)
	}

	inv, err := db.LoadInventory(ctx, scanID)
	if err != nil {
		return fmt.Errorf("failed to load scan %d: %w", scanID, err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	if err := report.WriteScanCSV(w, inv.Records, time.Local); err != nil {
		return err
	}
	if out != "" {
		util.SuccessLog("Exported %d records to %s", len(inv.Records), out)
	}
	return nil
}

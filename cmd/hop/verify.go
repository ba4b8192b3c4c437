package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/franz/stagehop/internal/util"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <copy-job>",
	Short: "Check that copied files exist at the target with the right size",
	Long: `Stat every file a copy job recorded as copied at the job's target
(the staging directory for primary-staging, the secondary base path for
staging-secondary) and compare sizes. Nothing is written. The target must be
reachable as a local or mounted path.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	jobID, err := parseID(args[0], "copy job")
	if err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	r, err := e.orch.Verify(context.Background(), jobID, afero.NewOsFs())
	if err != nil {
		return err
	}

	util.InfoLog("=== Verify job %d (%s) ===", r.JobID, r.Leg)
	util.InfoLog("Target: %s", r.TargetBase)
	if r.DryRun {
		util.WarnLog("Job %d was a dry run; nothing is expected at the target", r.JobID)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Checked", r.Checked},
		{"OK", r.OK},
		{"Missing", r.Missing},
		{"Size mismatch", r.Mismatched},
	})
	t.Render()

	if len(r.Samples) > 0 {
		s := table.NewWriter()
		s.SetOutputMirror(cmd.OutOrStdout())
		s.SetStyle(table.StyleLight)
		s.AppendHeader(table.Row{"Path", "Expected", "Actual", "Problem"})
		for _, f := range r.Samples {
			s.AppendRow(table.Row{f.Path, util.FormatBytes(f.Expected), util.FormatBytes(f.Actual), f.Problem})
		}
		s.Render()
	}

	if !r.Clean() {
		return fmt.Errorf("verification failed: %d missing, %d mismatched", r.Missing, r.Mismatched)
	}
	util.SuccessLog("All %d files verified", r.Checked)
	return nil
}

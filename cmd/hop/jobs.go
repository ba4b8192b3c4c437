package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/franz/stagehop/internal/job"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List pipeline jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job>",
	Short: "Show a job with its log",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Reset jobs left running by a crashed process to pending",
	Long: `Reset every job recorded as running back to pending. Only use this when
no other hop process is running: jobs of other processes cannot be told
apart from crashed ones.`,
	Args: cobra.NoArgs,
	RunE: runJobsRecover,
}

var jobsRerunCmd = &cobra.Command{
	Use:   "rerun <job>",
	Short: "Run a job again, replacing its previous results",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRerun,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsShowCmd, jobsRecoverCmd, jobsRerunCmd)

	jobsCmd.Flags().IntP("limit", "n", 20, "number of jobs to show (0 = all)")
}

func runJobs(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := db.ListJobs(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(jobs) == 0 {
		util.InfoLog("No jobs yet. Start with 'hop scan <dataset>'.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Kind", "Status", "Started", "Files", "Size", "Error"})
	for _, j := range jobs {
		t.AppendRow(table.Row{
			j.ID, j.Kind, j.Status,
			j.StartedAt.Local().Format("2006-01-02 15:04"),
			j.TotalFiles, util.FormatBytes(j.TotalSize),
			firstLine(j.ErrorMessage, 60),
		})
	}
	t.Render()
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	jobID, err := parseID(args[0], "job")
	if err != nil {
		return err
	}

	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	j, err := db.GetJob(context.Background(), jobID)
	if err != nil {
		return err
	}

	finished := "-"
	if j.FinishedAt.Valid {
		finished = j.FinishedAt.Time.Local().Format("2006-01-02 15:04:05")
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"ID", j.ID},
		{"Kind", j.Kind},
		{"Status", j.Status},
		{"Started", j.StartedAt.Local().Format("2006-01-02 15:04:05")},
		{"Finished", finished},
		{"Files", j.TotalFiles},
		{"Size", util.FormatBytes(j.TotalSize)},
		{"Metadata", formatConfig(j.Metadata)},
	})
	if j.ErrorMessage != "" {
		t.AppendRow(table.Row{"Error", j.ErrorMessage})
	}
	t.Render()

	if j.Log != "" {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), j.Log)
	}
	return nil
}

func runJobsRecover(cmd *cobra.Command, args []string) error {
	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	orch := job.New(&job.Config{Store: db})
	reset, err := orch.RecoverStuck(context.Background())
	if err != nil {
		return err
	}
	if len(reset) == 0 {
		util.SuccessLog("No stuck jobs")
		return nil
	}
	util.SuccessLog("Reset %d jobs to pending: %v", len(reset), reset)
	util.InfoLog("Run them again with 'hop jobs rerun <job>'")
	return nil
}

func runJobsRerun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jobID, err := parseID(args[0], "job")
	if err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	j, err := e.db.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status == store.StatusRunning {
		return fmt.Errorf("job %d is marked running; if its process is gone, run 'hop jobs recover' first", jobID)
	}

	switch j.Kind {
	case store.KindScan:
		e.orch.StartScan(jobID)
	case store.KindDiff:
		e.orch.StartDiff(jobID)
	case store.KindBatchPlan:
		e.orch.StartBatchPlan(jobID)
	case store.KindCopy:
		e.orch.StartCopy(jobID)
	default:
		return fmt.Errorf("job %d has unknown kind %q", jobID, j.Kind)
	}
	e.orch.Wait(jobID)

	j, err = e.db.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != store.StatusCompleted {
		return fmt.Errorf("%s job %d failed: %s", j.Kind, jobID, j.ErrorMessage)
	}
	util.SuccessLog("%s job %d completed: %d files, %s", j.Kind, jobID, j.TotalFiles, util.FormatBytes(j.TotalSize))
	return nil
}

// firstLine returns the first line of s cut to max runes
func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}

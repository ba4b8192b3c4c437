package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

// RunReport summarizes a pipeline run across its copy legs
type RunReport struct {
	GeneratedAt time.Time
	RunID       string
	BatchID     int64

	PlanItems    int
	PlanEnabled  int
	PlannedBytes uint64

	Legs []LegSummary

	TopErrors    []ErrorSummary
	EventLogPath string
	DatabasePath string
}

// LegSummary is the outcome of one copy leg
type LegSummary struct {
	Leg         string
	JobID       int64
	Status      store.JobStatus
	DryRun      bool
	StagingDir  string
	Copied      int
	Failed      int
	Skipped     int
	BytesCopied uint64
	Duration    time.Duration
	Error       string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

var runLegs = []string{store.LegPrimaryToStaging, store.LegStagingToSecondary}

// GenerateRunReport creates a report for a run from the database
func GenerateRunReport(ctx context.Context, db *store.Store, runID string) (*RunReport, error) {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		GeneratedAt: time.Now(),
		RunID:       run.ID,
		BatchID:     run.BatchID,
		Legs:        make([]LegSummary, 0, len(runLegs)),
		TopErrors:   make([]ErrorSummary, 0),
	}

	items, err := db.ListPlanItems(ctx, run.BatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	report.PlanItems = len(items)
	for _, it := range items {
		if it.Enabled {
			report.PlanEnabled++
			report.PlannedBytes += it.Size
		}
	}

	var allOutcomes []store.FileOutcome
	for _, leg := range runLegs {
		c, err := db.FindRunLeg(ctx, run.ID, leg)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		job, err := db.GetJob(ctx, c.JobID)
		if err != nil {
			return nil, err
		}
		outcomes, err := db.ListOutcomes(ctx, c.JobID)
		if err != nil {
			return nil, fmt.Errorf("failed to load outcomes of job %d: %w", c.JobID, err)
		}
		allOutcomes = append(allOutcomes, outcomes...)

		summary := LegSummary{
			Leg:        leg,
			JobID:      c.JobID,
			Status:     job.Status,
			DryRun:     c.DryRun,
			StagingDir: c.StagingDir,
			Error:      job.ErrorMessage,
		}
		if job.FinishedAt.Valid {
			summary.Duration = job.FinishedAt.Time.Sub(job.StartedAt)
		}
		for _, o := range outcomes {
			switch o.Status {
			case store.OutcomeCopied:
				summary.Copied++
				summary.BytesCopied += o.Size
			case store.OutcomeFailed:
				summary.Failed++
			case store.OutcomeSkipped:
				summary.Skipped++
			}
		}
		report.Legs = append(report.Legs, summary)
	}

	report.TopErrors = gatherTopErrors(allOutcomes, 10)
	return report, nil
}

// gatherTopErrors returns the most common per-file errors
func gatherTopErrors(outcomes []store.FileOutcome, limit int) []ErrorSummary {
	errorCounts := make(map[string]int)
	for _, o := range outcomes {
		if o.Error != "" {
			errorCounts[o.Error]++
		}
	}

	errs := make([]ErrorSummary, 0, len(errorCounts))
	for msg, count := range errorCounts {
		errs = append(errs, ErrorSummary{Error: msg, Count: count})
	}

	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Count != errs[j].Count {
			return errs[i].Count > errs[j].Count
		}
		return errs[i].Error < errs[j].Error
	})

	if len(errs) > limit {
		errs = errs[:limit]
	}

	return errs
}

// WriteMarkdownReport writes the run report as Markdown
func WriteMarkdownReport(report *RunReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# stagehop - Run Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	md.WriteString(fmt.Sprintf("**Run:** `%s` (batch %d)\n\n", report.RunID, report.BatchID))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	md.WriteString("## Plan\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Items | %d |\n", report.PlanItems))
	md.WriteString(fmt.Sprintf("| Enabled | %d |\n", report.PlanEnabled))
	md.WriteString(fmt.Sprintf("| Planned Size | %s |\n", util.FormatBytes(report.PlannedBytes)))
	md.WriteString("\n")

	if len(report.Legs) == 0 {
		md.WriteString("*No copy legs have run yet.*\n\n")
	}

	for _, leg := range report.Legs {
		md.WriteString(fmt.Sprintf("## Leg %s (job %d)\n\n", leg.Leg, leg.JobID))
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Status | %s |\n", leg.Status))
		if leg.DryRun {
			md.WriteString("| Dry Run | yes |\n")
		}
		if leg.StagingDir != "" {
			md.WriteString(fmt.Sprintf("| Staging Dir | `%s` |\n", leg.StagingDir))
		}
		md.WriteString(fmt.Sprintf("| Copied | %d |\n", leg.Copied))
		if leg.Failed > 0 {
			md.WriteString(fmt.Sprintf("| Failed | %d |\n", leg.Failed))
		}
		if leg.Skipped > 0 {
			md.WriteString(fmt.Sprintf("| Skipped | %d |\n", leg.Skipped))
		}
		md.WriteString(fmt.Sprintf("| Bytes Copied | %s |\n", util.FormatBytes(leg.BytesCopied)))
		if leg.Duration > 0 {
			md.WriteString(fmt.Sprintf("| Duration | %s |\n", leg.Duration.Round(time.Second)))
		}
		if leg.Error != "" {
			md.WriteString(fmt.Sprintf("| Error | %s |\n", truncatePath(firstLine(leg.Error), 120)))
		}
		md.WriteString("\n")
	}

	if len(report.TopErrors) > 0 {
		md.WriteString("## Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, e := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", e.Count, e.Error))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by stagehop*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}

package report

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/franz/stagehop/internal/store"
)

func setupRun(t *testing.T) (*store.Store, *store.PipelineRun) {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	d := &store.Dataset{Name: "nas", Location: store.LocationPrimary}
	if _, err := db.CreateDataset(ctx, d); err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	scanID, _ := db.CreateScanJob(ctx, d.ID, "")
	diffID, _ := db.CreateDiffJob(ctx, scanID, scanID)
	batchID, _ := db.CreateBatchJob(ctx, &store.Batch{DiffID: diffID})

	err = db.RetryTx(ctx, func(tx *sqlx.Tx) error {
		return store.InsertPlanItems(ctx, tx, batchID, []store.TransferPlanItem{
			{Path: "a", Size: 100, Category: store.CategoryMissing, Enabled: true},
			{Path: "b", Size: 200, Category: store.CategoryMissing, Enabled: true},
			{Path: "c", Size: 300, Category: store.CategoryMissing, Enabled: false},
		})
	})
	if err != nil {
		t.Fatalf("InsertPlanItems: %v", err)
	}

	run, err := db.CreateRun(ctx, batchID)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	leg1, _ := db.CreateCopyJob(ctx, run.ID, batchID, store.LegPrimaryToStaging, false)
	now := sql.NullTime{Time: time.Now(), Valid: true}
	err = db.RetryTx(ctx, func(tx *sqlx.Tx) error {
		if err := store.MarkJobRunning(ctx, tx, leg1); err != nil {
			return err
		}
		if err := store.InsertOutcomes(ctx, tx, []store.FileOutcome{
			{JobID: leg1, Path: "a", Size: 100, Status: store.OutcomeCopied, CopiedAt: now},
			{JobID: leg1, Path: "b", Size: 200, Status: store.OutcomeFailed, Error: "permission denied"},
		}); err != nil {
			return err
		}
		return store.FinishJob(ctx, tx, leg1, store.StatusFailed, "partial failure", "")
	})
	if err != nil {
		t.Fatalf("setup leg 1: %v", err)
	}

	return db, run
}

func TestGenerateRunReport(t *testing.T) {
	db, run := setupRun(t)

	report, err := GenerateRunReport(context.Background(), db, run.ID)
	if err != nil {
		t.Fatalf("GenerateRunReport failed: %v", err)
	}

	if report.PlanItems != 3 || report.PlanEnabled != 2 || report.PlannedBytes != 300 {
		t.Errorf("unexpected plan stats: %+v", report)
	}
	if len(report.Legs) != 1 {
		t.Fatalf("expected only leg 1, got %d legs", len(report.Legs))
	}

	leg := report.Legs[0]
	if leg.Leg != store.LegPrimaryToStaging || leg.Copied != 1 || leg.Failed != 1 || leg.BytesCopied != 100 {
		t.Errorf("unexpected leg summary: %+v", leg)
	}
	if leg.Status != store.StatusFailed {
		t.Errorf("expected failed leg, got %s", leg.Status)
	}

	if len(report.TopErrors) != 1 || report.TopErrors[0].Error != "permission denied" {
		t.Errorf("unexpected top errors: %+v", report.TopErrors)
	}
}

func TestGenerateRunReportUnknownRun(t *testing.T) {
	db, _ := setupRun(t)
	if _, err := GenerateRunReport(context.Background(), db, "nope"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	db, run := setupRun(t)
	report, err := GenerateRunReport(context.Background(), db, run.ID)
	if err != nil {
		t.Fatalf("GenerateRunReport failed: %v", err)
	}
	report.EventLogPath = "events.jsonl"

	outputPath := filepath.Join(t.TempDir(), "nested", "report.md")
	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	md := string(content)

	for _, want := range []string{
		"# stagehop - Run Report",
		run.ID,
		"## Plan",
		"## Leg primary-staging",
		"| Failed | 1 |",
		"## Top Errors",
		"permission denied",
		"`events.jsonl`",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestTruncatePath(t *testing.T) {
	testCases := []struct {
		name   string
		path   string
		maxLen int
	}{
		{"Short path - no truncation", "/movies/film.mkv", 50},
		{"Long path - truncate middle", "/very/long/path/to/some/video/collection/series/season/episode.mkv", 30},
		{"Exactly at limit", "/movies/test.mkv", 16},
		{"Very long path", "/extremely/long/path/that/needs/significant/truncation/to/fit/within/limits/file.mkv", 40},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := truncatePath(tc.path, tc.maxLen)

			if len(result) > tc.maxLen {
				t.Errorf("Result length %d exceeds maxLen %d", len(result), tc.maxLen)
			}
			if len(tc.path) > tc.maxLen && !strings.Contains(result, "...") {
				t.Error("Expected truncated path to contain '...'")
			}
			if len(tc.path) <= tc.maxLen && result != tc.path {
				t.Errorf("Short path should not be truncated: expected '%s', got '%s'", tc.path, result)
			}
		})
	}
}

func TestWriteScanCSV(t *testing.T) {
	records := []store.FileRecord{
		{RelPath: "b/second.mkv", Size: 1 << 30, Mtime: 0},
		{RelPath: "a/first, with comma.mkv", Size: 512, Mtime: 86400},
	}

	var buf bytes.Buffer
	if err := WriteScanCSV(&buf, records, time.UTC); err != nil {
		t.Fatalf("WriteScanCSV failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "path,size_bytes,size_gb,mtime" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "a/first, with comma.mkv" || rows[1][1] != "512" || rows[1][3] != "1970-01-02 00:00:00" {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if rows[2][2] != "1.000000" || rows[2][3] != "" {
		t.Errorf("unexpected second row: %v", rows[2])
	}
	if records[0].RelPath != "b/second.mkv" {
		t.Error("input records were reordered")
	}
}

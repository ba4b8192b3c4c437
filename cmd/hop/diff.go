package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/franz/stagehop/internal/diff"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

var diffCmd = &cobra.Command{
	Use:   "diff <source-scan> <target-scan>",
	Short: "Compare two scans by normalized path",
	Long: `Compare the inventories of two completed scans. Paths are normalized
(NFC, slash-delimited, relative to each scan's root) and every path is
classified as:
  missing   only in the source
  extra     only in the target
  conflict  in both, with different size or mtime (beyond 2s)
  same      in both and equal`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

var diffSummaryCmd = &cobra.Command{
	Use:   "summary <diff>",
	Short: "Show per-category counts and sizes of a diff",
	Long: `Show per-category counts and sizes of a diff. With --items every compared
path is listed as well, optionally only those of the given categories.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiffSummary,
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.AddCommand(diffSummaryCmd, newRemoveCmd(store.KindDiff, "diff", "batches"))

	diffSummaryCmd.Flags().Bool("items", false, "list the compared paths")
	diffSummaryCmd.Flags().StringSlice("category", nil, "list only these categories (missing, conflict, extra, same)")
	diffSummaryCmd.Flags().Int("limit", 0, "list at most this many paths (0 for all)")
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	sourceID, err := parseID(args[0], "scan")
	if err != nil {
		return err
	}
	targetID, err := parseID(args[1], "scan")
	if err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	jobID, err := e.db.CreateDiffJob(ctx, sourceID, targetID)
	if err != nil {
		return fmt.Errorf("failed to create diff job: %w", err)
	}

	util.InfoLog("=== Diff %d: scan %d -> scan %d ===", jobID, sourceID, targetID)
	e.orch.StartDiff(jobID)
	e.orch.Wait(jobID)

	j, err := e.db.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != store.StatusCompleted {
		return fmt.Errorf("diff %d failed: %s", jobID, j.ErrorMessage)
	}

	if err := printDiffSummary(cmd, e.db, jobID); err != nil {
		return err
	}
	util.InfoLog("Next step: hop batch plan %d", jobID)
	return nil
}

func runDiffSummary(cmd *cobra.Command, args []string) error {
	diffID, err := parseID(args[0], "diff")
	if err != nil {
		return err
	}
	listItems, _ := cmd.Flags().GetBool("items")
	categories, _ := cmd.Flags().GetStringSlice("category")
	limit, _ := cmd.Flags().GetInt("limit")
	if len(categories) > 0 {
		listItems = true
	}

	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := printDiffSummary(cmd, db, diffID); err != nil {
		return err
	}
	if !listItems {
		return nil
	}

	items, err := db.ListComparisonItems(context.Background(), diffID)
	if err != nil {
		return fmt.Errorf("failed to load diff %d: %w", diffID, err)
	}
	filtered, err := filterItems(items, categories)
	if err != nil {
		return err
	}
	printDiffItems(cmd.OutOrStdout(), filtered, limit)
	return nil
}

// filterItems keeps the items of the given categories, all when none given
func filterItems(items []store.ComparisonItem, categories []string) ([]store.ComparisonItem, error) {
	if len(categories) == 0 {
		return items, nil
	}
	want := make(map[store.Category]bool, len(categories))
	for _, c := range categories {
		cat := store.Category(strings.ToLower(strings.TrimSpace(c)))
		if !slices.Contains(summaryOrder, cat) {
			return nil, fmt.Errorf("unknown category %q: %w", c, util.ErrInvalidConfig)
		}
		want[cat] = true
	}

	var out []store.ComparisonItem
	for _, it := range items {
		if want[it.Category] {
			out = append(out, it)
		}
	}
	return out, nil
}

func printDiffItems(w io.Writer, items []store.ComparisonItem, limit int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Path", "Category", "Source", "Target"})

	shown := items
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, it := range shown {
		t.AppendRow(table.Row{it.Path, it.Category, optionalSize(it.SourceSize), optionalSize(it.TargetSize)})
	}
	if len(shown) < len(items) {
		t.AppendFooter(table.Row{fmt.Sprintf("%d more not shown", len(items)-len(shown)), "", "", ""})
	}
	t.Render()
}

func optionalSize(size *uint64) string {
	if size == nil {
		return "-"
	}
	return util.FormatBytes(*size)
}

var summaryOrder = []store.Category{
	store.CategoryMissing,
	store.CategoryConflict,
	store.CategoryExtra,
	store.CategorySame,
}

func printDiffSummary(cmd *cobra.Command, db *store.Store, diffID int64) error {
	ctx := context.Background()
	if _, err := db.GetDiff(ctx, diffID); err != nil {
		return err
	}
	items, err := db.ListComparisonItems(ctx, diffID)
	if err != nil {
		return fmt.Errorf("failed to load diff %d: %w", diffID, err)
	}
	s := diff.Summarize(items)

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("Diff %d", diffID))
	t.AppendHeader(table.Row{"Category", "Files", "Size"})
	for _, c := range summaryOrder {
		ct := s.Categories[c]
		t.AppendRow(table.Row{c, ct.Count, util.FormatBytes(ct.Bytes)})
	}
	t.AppendFooter(table.Row{"Total", s.Total, ""})
	t.Render()
	return nil
}

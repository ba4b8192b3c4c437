package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/franz/stagehop/internal/source"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage the datasets scans and copies work on",
	Long: `A dataset is a storage location (primary, staging or secondary) with the
roots to scan, the base path files are copied from or to, and the adapters
used to list and transfer files.`,
}

var datasetAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or replace a dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetAdd,
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets",
	Args:  cobra.NoArgs,
	RunE:  runDatasetList,
}

var datasetShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a dataset and its adapter configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetShow,
}

var datasetRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a dataset that no scan refers to",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetRemove,
}

var datasetTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Connect to a dataset and check each of its roots",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetTest,
}

var datasetImportCmd = &cobra.Command{
	Use:   "import <file.toml>",
	Short: "Add or replace datasets defined in a TOML file",
	Long: `Import datasets from a TOML file. Each [[dataset]] table uses the keys
name, location, roots, base_path, scan_adapter, scan_config,
transfer_adapter and transfer_config. Existing datasets with the same name
are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: runDatasetImport,
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(datasetAddCmd, datasetListCmd, datasetShowCmd, datasetRemoveCmd, datasetTestCmd, datasetImportCmd)

	datasetAddCmd.Flags().String("location", string(store.LocationPrimary), "primary, staging or secondary")
	datasetAddCmd.Flags().StringSlice("root", nil, "root directory to scan, relative to the base path (repeatable)")
	datasetAddCmd.Flags().String("base", "", "base path files are copied from or to")
	datasetAddCmd.Flags().String("scan-adapter", "local", "scan adapter: local, sftp or s3")
	datasetAddCmd.Flags().StringToString("scan-config", nil, "scan adapter settings (key=value)")
	datasetAddCmd.Flags().String("transfer-adapter", "local", "transfer adapter: local, ssh or native")
	datasetAddCmd.Flags().StringToString("transfer-config", nil, "transfer adapter settings (key=value)")
}

// datasetFile is the layout of a dataset import file
type datasetFile struct {
	Datasets []store.Dataset `toml:"dataset"`
}

func validateDataset(d *store.Dataset) error {
	var problems []string
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !d.Location.Valid() {
		problems = append(problems, fmt.Sprintf("unknown location %q", d.Location))
	}
	if d.BasePath == "" && d.ScanAdapter != "s3" {
		problems = append(problems, "base_path is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("dataset %q: %s: %w", d.Name, strings.Join(problems, ", "), util.ErrInvalidConfig)
	}
	return nil
}

// loadDatasetFile decodes and validates a dataset import file
func loadDatasetFile(path string) ([]store.Dataset, error) {
	var f datasetFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		util.WarnLog("Ignoring unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	seen := make(map[string]bool, len(f.Datasets))
	for i := range f.Datasets {
		d := &f.Datasets[i]
		if err := validateDataset(d); err != nil {
			return nil, err
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("dataset %q defined twice: %w", d.Name, util.ErrInvalidConfig)
		}
		seen[d.Name] = true
	}
	return f.Datasets, nil
}

func runDatasetAdd(cmd *cobra.Command, args []string) error {
	location, _ := cmd.Flags().GetString("location")
	roots, _ := cmd.Flags().GetStringSlice("root")
	base, _ := cmd.Flags().GetString("base")
	scanAdapter, _ := cmd.Flags().GetString("scan-adapter")
	scanConfig, _ := cmd.Flags().GetStringToString("scan-config")
	transferAdapter, _ := cmd.Flags().GetString("transfer-adapter")
	transferConfig, _ := cmd.Flags().GetStringToString("transfer-config")

	d := &store.Dataset{
		Name:            args[0],
		Location:        store.Location(location),
		Roots:           roots,
		BasePath:        base,
		ScanAdapter:     scanAdapter,
		ScanConfig:      scanConfig,
		TransferAdapter: transferAdapter,
		TransferConfig:  transferConfig,
	}
	if err := validateDataset(d); err != nil {
		return err
	}

	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.SaveDataset(context.Background(), d)
	if err != nil {
		return err
	}
	util.SuccessLog("Dataset %s saved (id %d)", d.Name, id)
	return nil
}

func runDatasetList(cmd *cobra.Command, args []string) error {
	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	datasets, err := db.ListDatasets(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}
	if len(datasets) == 0 {
		util.WarnLog("No datasets found. Add one with 'hop dataset add'.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Location", "Base", "Roots", "Scan", "Transfer"})
	for _, d := range datasets {
		t.AppendRow(table.Row{d.ID, d.Name, d.Location, d.BasePath, strings.Join(d.Roots, ", "),
			orDefault(d.ScanAdapter, "local"), orDefault(d.TransferAdapter, "local")})
	}
	t.Render()
	return nil
}

func runDatasetShow(cmd *cobra.Command, args []string) error {
	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	d, err := db.GetDatasetByName(context.Background(), args[0])
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"ID", d.ID},
		{"Name", d.Name},
		{"Location", d.Location},
		{"Base path", d.BasePath},
		{"Roots", strings.Join(d.Roots, "\n")},
		{"Scan adapter", orDefault(d.ScanAdapter, "local")},
		{"Scan config", formatConfig(d.ScanConfig)},
		{"Transfer adapter", orDefault(d.TransferAdapter, "local")},
		{"Transfer config", formatConfig(d.TransferConfig)},
		{"Created", d.CreatedAt.Local().Format("2006-01-02 15:04:05")},
	})
	t.Render()
	return nil
}

func runDatasetRemove(cmd *cobra.Command, args []string) error {
	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	d, err := db.GetDatasetByName(ctx, args[0])
	if err != nil {
		return err
	}
	if err := db.DeleteDataset(ctx, d.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to remove dataset %s (is it still referenced by a scan?): %w", d.Name, err)
	}
	util.SuccessLog("Dataset %s removed", d.Name)
	return nil
}

func runDatasetTest(cmd *cobra.Command, args []string) error {
	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	d, err := db.GetDatasetByName(ctx, args[0])
	if err != nil {
		return err
	}

	r := checkDataset(ctx, source.New, d)
	switch {
	case r.error || r.warning:
		return fmt.Errorf("dataset %s: %s", d.Name, r.message)
	default:
		util.SuccessLog("Dataset %s reachable: %s", d.Name, r.message)
	}
	return nil
}

func runDatasetImport(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(args[0]); err != nil {
		return fmt.Errorf("cannot read dataset file: %w", err)
	}
	datasets, err := loadDatasetFile(args[0])
	if err != nil {
		return err
	}

	db, _, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	for i := range datasets {
		d := &datasets[i]
		if _, err := db.SaveDataset(ctx, d); err != nil {
			return err
		}
		util.InfoLog("  %s (%s) -> id %d", d.Name, d.Location, d.ID)
	}
	util.SuccessLog("Imported %d datasets from %s", len(datasets), args[0])
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// formatConfig renders adapter settings one per line, hiding secrets
func formatConfig(m store.JSONMap) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v := m[k]
		if isSecretKey(k) && v != "" {
			v = "********"
		}
		lines = append(lines, k+"="+v)
	}
	return strings.Join(lines, "\n")
}

func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	return strings.Contains(k, "password") || strings.Contains(k, "secret")
}

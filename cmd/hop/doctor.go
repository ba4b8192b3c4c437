package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/stagehop/internal/source"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure hop can operate correctly.

This command checks:
- Required tools (rsync) and optional ones (ssh)
- SQLite version, database accessibility and integrity
- Staging directory permissions and free space
- Connectivity and roots of every dataset (local, sftp, s3)

Use this command to troubleshoot issues before running a copy.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== hop doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{
		checkRsync(GetConfigString("transfer.rsync", "rsync")),
		checkSSH(),
		checkSQLite(),
	}

	path, err := dbPath()
	if err != nil {
		results = append(results, checkResult{name: "Database", error: true, message: err.Error()})
	} else {
		results = append(results, checkDatabase(path))
		results = append(results, checkDatasets(path, source.New)...)
	}

	staging := viper.GetString("staging")
	if staging == "" {
		results = append(results, checkResult{
			name:    "Staging directory",
			warning: true,
			message: "not configured (use --staging or set staging in config)",
		})
	} else {
		results = append(results, checkStagingDirectory(staging))
		results = append(results, checkDiskSpace(staging, "staging"))
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before running hop.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed! System is ready.")
	}

	return nil
}

// toolVersion runs "<binary> <flag>" and returns the first output line
func toolVersion(binary, flag string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, binary, flag).CombinedOutput()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(line), nil
}

// checkRsync verifies rsync is available and gets its version
func checkRsync(binary string) checkResult {
	if _, err := exec.LookPath(binary); err != nil {
		return checkResult{
			name:    "rsync",
			error:   true,
			message: fmt.Sprintf("%s not found in PATH (required by the local and ssh transfer adapters)", binary),
		}
	}

	line, err := toolVersion(binary, "--version")
	if err != nil {
		return checkResult{
			name:    "rsync",
			error:   true,
			message: fmt.Sprintf("%s is not executable: %v", binary, err),
		}
	}

	// "rsync  version 3.2.7  protocol version 31"
	version := "unknown"
	if parts := strings.Fields(line); len(parts) >= 3 && parts[1] == "version" {
		version = parts[2]
	}
	return checkResult{
		name:    "rsync",
		message: fmt.Sprintf("version %s", version),
	}
}

// checkSSH verifies ssh is available (needed only by the ssh transfer adapter)
func checkSSH() checkResult {
	if _, err := exec.LookPath("ssh"); err != nil {
		return checkResult{
			name:    "ssh (optional)",
			warning: true,
			message: "not found (required only by the ssh transfer adapter)",
		}
	}
	line, err := toolVersion("ssh", "-V")
	if err != nil || line == "" {
		line = "available"
	}
	return checkResult{name: "ssh (optional)", message: line}
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(dbPath string) checkResult {
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.CheckIntegrity(ctx); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	msg := fmt.Sprintf("%s (%s)", dbPath, util.FormatBytes(uint64(info.Size())))
	running, err := db.ListJobsByStatus(ctx, store.StatusRunning)
	if err == nil && len(running) > 0 {
		return checkResult{
			name:    "Database",
			warning: true,
			message: fmt.Sprintf("%s, %d jobs marked running (see 'hop jobs recover')", msg, len(running)),
		}
	}

	return checkResult{name: "Database", message: msg}
}

// datasetCheckTimeout bounds connecting to one remote dataset
const datasetCheckTimeout = 20 * time.Second

// checkDatasets connects to every dataset and checks its roots
func checkDatasets(dbPath string, factory source.Factory) []checkResult {
	if _, err := os.Stat(dbPath); err != nil {
		return nil
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil
	}
	defer db.Close()

	ctx := context.Background()
	datasets, err := db.ListDatasets(ctx)
	if err != nil {
		return []checkResult{{name: "Datasets", warning: true, message: err.Error()}}
	}

	var results []checkResult
	for i := range datasets {
		results = append(results, checkDataset(ctx, factory, &datasets[i]))
	}
	return results
}

// checkDataset reports whether a dataset and each of its roots can be reached
func checkDataset(ctx context.Context, factory source.Factory, d *store.Dataset) checkResult {
	name := fmt.Sprintf("Dataset %s (%s)", d.Name, d.Location)
	adapter := orDefault(d.ScanAdapter, source.AdapterLocal)
	local := adapter == source.AdapterLocal

	if local {
		info, err := os.Stat(d.BasePath)
		switch {
		case err != nil:
			return checkResult{name: name, warning: true,
				message: fmt.Sprintf("%s not reachable (not mounted?): %v", d.BasePath, err)}
		case !info.IsDir():
			return checkResult{name: name, error: true,
				message: fmt.Sprintf("%s is not a directory", d.BasePath)}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, datasetCheckTimeout)
	defer cancel()

	statuses, err := source.Check(ctx, factory, d)
	if err != nil {
		return checkResult{name: name, warning: true, message: fmt.Sprintf("%s adapter not reachable: %v", adapter, err)}
	}

	var bad []string
	for _, st := range statuses {
		if st.Err != nil {
			bad = append(bad, fmt.Sprintf("%s (%v)", st.Location, st.Err))
		}
	}
	if len(bad) > 0 {
		return checkResult{name: name, warning: true,
			message: fmt.Sprintf("%d of %d roots unavailable: %s", len(bad), len(statuses), strings.Join(bad, "; "))}
	}

	if local {
		return checkResult{name: name, message: fmt.Sprintf("%s, %d roots ok%s", d.BasePath, len(statuses), mountNote(d.BasePath))}
	}
	return checkResult{name: name, message: fmt.Sprintf("%s adapter, %d roots ok", adapter, len(statuses))}
}

// checkStagingDirectory verifies the staging directory is writable
func checkStagingDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Staging directory",
				error:   true,
				message: fmt.Sprintf("%s does not exist (is the staging drive mounted?)", path),
			}
		}
		return checkResult{
			name:    "Staging directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Staging directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".hop_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Staging directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Staging directory",
		message: fmt.Sprintf("%s (writable)%s", path, mountNote(path)),
	}
}

// mountNote flags paths on network mounts, where native copies run tuned
func mountNote(path string) string {
	m, err := util.MountFor(path)
	if err != nil || !m.Network {
		return ""
	}
	return fmt.Sprintf(", %s", m)
}

// checkDiskSpace reports available disk space
func checkDiskSpace(path string, label string) checkResult {
	du, err := util.GetDiskUsage(path)
	if err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	warning := false
	warningMsg := ""
	if du.Total > 0 && float64(du.Used)/float64(du.Total) > 0.9 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s free of %s%s", util.FormatBytes(du.Free), util.FormatBytes(du.Total), warningMsg),
	}
}

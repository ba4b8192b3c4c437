package main

import (
	"fmt"
	"strconv"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/franz/stagehop/internal/job"
	"github.com/franz/stagehop/internal/report"
	"github.com/franz/stagehop/internal/source"
	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/transfer"
	"github.com/franz/stagehop/internal/util"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (HOP_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

// dbPath resolves the state database, defaulting to the XDG data directory
func dbPath() (string, error) {
	if p := viper.GetString("db"); p != "" {
		return p, nil
	}
	p, err := xdg.DataFile("stagehop/state.db")
	if err != nil {
		return "", fmt.Errorf("failed to resolve default database path: %w", err)
	}
	return p, nil
}

func openStore() (*store.Store, string, error) {
	path, err := dbPath()
	if err != nil {
		return nil, "", err
	}
	util.DebugLog("Opening database: %s", path)
	db, err := store.Open(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to open database: %w", err)
	}
	return db, path, nil
}

// env is the wiring shared by commands that run jobs
type env struct {
	db         *store.Store
	dbPath     string
	orch       *job.Orchestrator
	logger     *report.EventLogger
	dispatcher *report.Dispatcher
}

func newEnv() (*env, error) {
	db, path, err := openStore()
	if err != nil {
		return nil, err
	}

	logLevel := report.LevelInfo
	if GetConfigBool("quiet") {
		logLevel = report.LevelWarning
	} else if GetConfigBool("verbose") {
		logLevel = report.LevelDebug
	}

	logger, err := report.NewEventLogger(GetConfigString("artifacts", "artifacts"), logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}
	if logger.Path() != "" {
		util.DebugLog("Event log: %s", logger.Path())
	}

	dispatcher := report.NewDispatcher(report.DefaultBuffer, report.NewConsoleSink(), logger)

	var network *bool
	if viper.IsSet("transfer.network") {
		v := viper.GetBool("transfer.network")
		network = &v
	}

	orch := job.New(&job.Config{
		Store:   db,
		Sink:    dispatcher,
		Sources: source.New,
		Transfers: transfer.NewFactory(transfer.Options{
			RsyncBinary: GetConfigString("transfer.rsync", "rsync"),
			Concurrency: GetConfigInt("concurrency", 4),
			Network:     network,
			Logf:        util.DebugLog,
		}),
		StagingDir: viper.GetString("staging"),
	})

	return &env{db: db, dbPath: path, orch: orch, logger: logger, dispatcher: dispatcher}, nil
}

// Close waits for running jobs, then flushes events and closes the database
func (e *env) Close() {
	e.orch.WaitAll()
	e.dispatcher.Close()
	e.logger.Close()
	e.db.Close()
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

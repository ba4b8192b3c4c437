package store

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Location identifies which storage a dataset lives on
type Location string

const (
	LocationPrimary   Location = "primary"
	LocationStaging   Location = "staging"
	LocationSecondary Location = "secondary"
)

// Valid reports whether l is a known location
func (l Location) Valid() bool {
	switch l {
	case LocationPrimary, LocationStaging, LocationSecondary:
		return true
	}
	return false
}

// JobKind is the pipeline stage a job executes
type JobKind string

const (
	KindScan      JobKind = "scan"
	KindDiff      JobKind = "diff"
	KindBatchPlan JobKind = "batchPlan"
	KindCopy      JobKind = "copy"
)

// JobStatus is the lifecycle state of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Category classifies a path in a comparison
type Category string

const (
	CategoryMissing  Category = "missing"
	CategorySame     Category = "same"
	CategoryConflict Category = "conflict"
	CategoryExtra    Category = "extra"
)

// Copy legs
const (
	LegPrimaryToStaging   = "primary-staging"
	LegStagingToSecondary = "staging-secondary"
)

// OutcomeStatus is the per-file result of a copy
type OutcomeStatus string

const (
	OutcomeCopied  OutcomeStatus = "copied"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// StringList is a []string stored as a JSON array
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil || raw == nil {
		*l = nil
		return err
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// JSONMap is a string map stored as a JSON object
type JSONMap map[string]string

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil || raw == nil {
		*m = nil
		return err
	}
	return json.Unmarshal(raw, (*map[string]string)(m))
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}

// Dataset is a configured storage location that can be scanned and copied from/to
type Dataset struct {
	ID              int64      `db:"id" toml:"-"`
	Name            string     `db:"name" toml:"name"`
	Location        Location   `db:"location" toml:"location"`
	Roots           StringList `db:"roots" toml:"roots"`
	BasePath        string     `db:"base_path" toml:"base_path"`
	ScanAdapter     string     `db:"scan_adapter" toml:"scan_adapter"`
	ScanConfig      JSONMap    `db:"scan_config" toml:"scan_config"`
	TransferAdapter string     `db:"transfer_adapter" toml:"transfer_adapter"`
	TransferConfig  JSONMap    `db:"transfer_config" toml:"transfer_config"`
	CreatedAt       time.Time  `db:"created_at" toml:"-"`
}

// JobRecord is the persisted state of one pipeline stage execution
type JobRecord struct {
	ID           int64        `db:"id"`
	Kind         JobKind      `db:"kind"`
	Status       JobStatus    `db:"status"`
	StartedAt    time.Time    `db:"started_at"`
	FinishedAt   sql.NullTime `db:"finished_at"`
	ErrorMessage string       `db:"error_message"`
	Log          string       `db:"log"`
	Metadata     JSONMap      `db:"metadata"`
	TotalFiles   int64        `db:"total_files"`
	TotalSize    uint64       `db:"total_size"`
}

// Scan links a scan job to the dataset it snapshots
type Scan struct {
	JobID     int64  `db:"job_id"`
	DatasetID int64  `db:"dataset_id"`
	Root      string `db:"root"`
}

// FileRecord is one file observed by a scan
type FileRecord struct {
	ID        int64   `db:"id"`
	ScanID    int64   `db:"scan_id"`
	RelPath   string  `db:"rel_path"`
	Size      uint64  `db:"size"`
	Mtime     float64 `db:"mtime"`
	RootLabel string  `db:"root_label"`
}

// Inventory is the full set of records captured by one scan
type Inventory struct {
	ScanID  int64
	Root    string
	Records []FileRecord
}

// Diff links a diff job to the two scans it compares
type Diff struct {
	JobID        int64 `db:"job_id"`
	SourceScanID int64 `db:"source_scan_id"`
	TargetScanID int64 `db:"target_scan_id"`
}

// ComparisonItem is the classification of one normalized path
type ComparisonItem struct {
	ID          int64    `db:"id"`
	DiffID      int64    `db:"diff_id"`
	Path        string   `db:"path"`
	SourceSize  *uint64  `db:"source_size"`
	TargetSize  *uint64  `db:"target_size"`
	SourceMtime *float64 `db:"source_mtime"`
	TargetMtime *float64 `db:"target_mtime"`
	Category    Category `db:"category"`
}

// Size returns the source size, else the target size, else 0
func (c ComparisonItem) Size() uint64 {
	if c.SourceSize != nil {
		return *c.SourceSize
	}
	if c.TargetSize != nil {
		return *c.TargetSize
	}
	return 0
}

// Batch links a batch-plan job to its diff and selection policy
type Batch struct {
	JobID            int64      `db:"job_id"`
	DiffID           int64      `db:"diff_id"`
	IncludeConflicts bool       `db:"include_conflicts"`
	IncludeExtra     bool       `db:"include_extra"`
	ExcludePatterns  StringList `db:"exclude_patterns"`
}

// TransferPlanItem is one path selected for transfer
type TransferPlanItem struct {
	ID       int64    `db:"id"`
	BatchID  int64    `db:"batch_id"`
	Path     string   `db:"path"`
	Size     uint64   `db:"size"`
	Category Category `db:"category"`
	Enabled  bool     `db:"enabled"`
}

// PipelineRun groups the copy legs that move one batch through staging
type PipelineRun struct {
	ID        string    `db:"id"`
	BatchID   int64     `db:"batch_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Copy links a copy job to its batch, run and leg
type Copy struct {
	JobID      int64  `db:"job_id"`
	BatchID    int64  `db:"batch_id"`
	RunID      string `db:"run_id"`
	Leg        string `db:"leg"`
	DryRun     bool   `db:"dry_run"`
	StagingDir string `db:"staging_dir"`
}

// FileOutcome is the recorded result of copying one file
type FileOutcome struct {
	ID       int64         `db:"id"`
	JobID    int64         `db:"job_id"`
	Path     string        `db:"path"`
	Size     uint64        `db:"size"`
	Status   OutcomeStatus `db:"status"`
	Error    string        `db:"error"`
	CopiedAt sql.NullTime  `db:"copied_at"`
}

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

// EventType represents the type of event
type EventType string

const (
	EventStarted  EventType = "started"
	EventProgress EventType = "progress"
	EventLog      EventType = "log"
	EventFinished EventType = "finished"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event is a lifecycle, progress or log notification about one job
type Event struct {
	Timestamp time.Time       `json:"ts"`
	Level     EventLevel      `json:"level"`
	Type      EventType       `json:"event"`
	JobID     int64           `json:"job_id"`
	Kind      store.JobKind   `json:"kind,omitempty"`
	Count     int64           `json:"count,omitempty"`
	Total     int64           `json:"total,omitempty"`
	Path      string          `json:"path,omitempty"`
	Message   string          `json:"message,omitempty"`
	Status    store.JobStatus `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
	Bytes     uint64          `json:"bytes,omitempty"`
}

// EventSink receives job events. Emit must not block for long.
type EventSink interface {
	Emit(Event)
}

// Started builds a job.started event
func Started(jobID int64, kind store.JobKind) Event {
	return Event{Level: LevelInfo, Type: EventStarted, JobID: jobID, Kind: kind, Status: store.StatusRunning}
}

// Progress builds a job.progress event
func Progress(jobID int64, kind store.JobKind, count, total int64, path, message string) Event {
	return Event{
		Level:   LevelDebug,
		Type:    EventProgress,
		JobID:   jobID,
		Kind:    kind,
		Count:   count,
		Total:   total,
		Path:    path,
		Message: message,
	}
}

// Log builds a job.log event
func Log(jobID int64, kind store.JobKind, level EventLevel, message string) Event {
	return Event{Level: level, Type: EventLog, JobID: jobID, Kind: kind, Message: message}
}

// Finished builds a job.finished event. A non-nil err marks the job failed.
func Finished(jobID int64, kind store.JobKind, err error) Event {
	e := Event{Level: LevelInfo, Type: EventFinished, JobID: jobID, Kind: kind, Status: store.StatusCompleted}
	if err != nil {
		e.Level = LevelError
		e.Status = store.StatusFailed
		e.Error = err.Error()
	}
	return e
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips progress)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	// Append so that two runs within the same second share a file
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// Emit implements EventSink
func (l *EventLogger) Emit(event Event) {
	if err := l.Log(&event); err != nil {
		util.WarnLog("Event log write failed: %v", err)
	}
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}

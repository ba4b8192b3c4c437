package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/franz/stagehop/internal/store"
)

func TestNewEventLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	if logger.path == "" {
		t.Error("EventLogger path is empty")
	}

	if _, err := os.Stat(logger.path); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.path)
	}

	filename := filepath.Base(logger.path)
	if len(filename) < len("events-20060102-150405.jsonl") {
		t.Errorf("Event log filename format incorrect: %s", filename)
	}
}

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var decoded Event
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("Failed to decode line %d: %v", len(events)+1, err)
		}
		events = append(events, decoded)
	}
	return events
}

func TestEventLogger_Emit(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.Emit(Started(7, store.KindScan))
	logger.Emit(Progress(7, store.KindScan, 10, 100, "a/b.mkv", "scanning"))
	logger.Emit(Finished(7, store.KindScan, errors.New("boom")))
	logger.Close()

	events := readEvents(t, logger.path)
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	if events[0].Type != EventStarted || events[0].JobID != 7 || events[0].Kind != store.KindScan {
		t.Errorf("unexpected started event: %+v", events[0])
	}
	if events[1].Count != 10 || events[1].Total != 100 || events[1].Path != "a/b.mkv" {
		t.Errorf("unexpected progress event: %+v", events[1])
	}
	if events[2].Status != store.StatusFailed || events[2].Error != "boom" || events[2].Level != LevelError {
		t.Errorf("unexpected finished event: %+v", events[2])
	}
	for i, e := range events {
		if e.Timestamp.IsZero() {
			t.Errorf("event %d: timestamp not set", i)
		}
	}
}

func TestEventLogger_LevelFiltering(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelInfo)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.Emit(Progress(1, store.KindCopy, 1, 2, "", ""))
	logger.Emit(Log(1, store.KindCopy, LevelWarning, "careful"))
	logger.Emit(Finished(1, store.KindCopy, nil))
	logger.Close()

	events := readEvents(t, logger.path)
	if len(events) != 2 {
		t.Fatalf("Expected progress to be filtered, got %d events", len(events))
	}
	if events[1].Status != store.StatusCompleted {
		t.Errorf("expected completed status, got %q", events[1].Status)
	}
}

func TestEventLogger_ConcurrentWrites(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	const numGoroutines = 10
	const eventsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				logger.Emit(Progress(int64(id), store.KindDiff, int64(j), eventsPerGoroutine, "", ""))
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	if got := len(readEvents(t, logger.path)); got != numGoroutines*eventsPerGoroutine {
		t.Errorf("Expected %d events, got %d", numGoroutines*eventsPerGoroutine, got)
	}
}

func TestNullLogger(t *testing.T) {
	logger := NullLogger()
	logger.Emit(Started(1, store.KindScan))
	if err := logger.Close(); err != nil {
		t.Errorf("Close on null logger: %v", err)
	}
	if logger.Path() != "" {
		t.Error("null logger should have no path")
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestDispatcherPreservesOrderAndDrains(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	d := NewDispatcher(4, a, b)

	const n = 500
	for i := 0; i < n; i++ {
		d.Emit(Progress(1, store.KindScan, int64(i), n, "", ""))
	}
	d.Close()

	for _, r := range []*recorder{a, b} {
		if len(r.events) != n {
			t.Fatalf("expected %d events after Close, got %d", n, len(r.events))
		}
		for i, e := range r.events {
			if e.Count != int64(i) {
				t.Fatalf("event %d out of order: count %d", i, e.Count)
			}
			if e.Timestamp.IsZero() {
				t.Fatalf("event %d: timestamp not set", i)
			}
		}
	}
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	r := &recorder{}
	d := NewDispatcher(0, r)
	d.Close()
	d.Emit(Started(1, store.KindScan))
	d.Close()

	if len(r.events) != 0 {
		t.Errorf("expected no events after Close, got %d", len(r.events))
	}
}

func TestDispatcherConcurrentEmit(t *testing.T) {
	var count int
	var mu sync.Mutex
	d := NewDispatcher(8, SinkFunc(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Emit(Log(1, store.KindCopy, LevelInfo, "x"))
			}
		}()
	}
	wg.Wait()
	d.Close()

	if count != 400 {
		t.Errorf("expected 400 delivered events, got %d", count)
	}
}

func TestConsoleSinkNonTTY(t *testing.T) {
	c := NewConsoleSink()
	c.tty = false
	c.interval = time.Hour

	c.Emit(Started(3, store.KindCopy))
	c.Emit(Progress(3, store.KindCopy, 1, 10, "", ""))
	c.Emit(Progress(3, store.KindCopy, 2, 10, "", ""))
	if len(c.lastLine) != 1 {
		t.Errorf("expected one throttled progress entry, got %d", len(c.lastLine))
	}

	c.Emit(Finished(3, store.KindCopy, nil))
	if len(c.lastLine) != 0 || len(c.bars) != 0 {
		t.Error("finished job should release console state")
	}
}

package testutil

import (
	"sync"

	"github.com/franz/stagehop/internal/report"
)

// RecordingSink keeps every event it receives. Safe for concurrent use.
type RecordingSink struct {
	mu     sync.Mutex
	events []report.Event
}

// Emit implements report.EventSink.
func (s *RecordingSink) Emit(e report.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []report.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]report.Event, len(s.events))
	copy(out, s.events)
	return out
}

// ForJob returns the recorded events of one job.
func (s *RecordingSink) ForJob(jobID int64) []report.Event {
	var out []report.Event
	for _, e := range s.Events() {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the event types of one job in order.
func (s *RecordingSink) Types(jobID int64) []report.EventType {
	var out []report.EventType
	for _, e := range s.ForJob(jobID) {
		out = append(out, e.Type)
	}
	return out
}

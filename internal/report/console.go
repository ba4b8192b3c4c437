package report

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/franz/stagehop/internal/store"
	"github.com/franz/stagehop/internal/util"
)

// ConsoleSink renders job events for a person watching the terminal: a
// progress bar per job on a TTY, periodic log lines otherwise.
type ConsoleSink struct {
	mu       sync.Mutex
	out      io.Writer
	tty      bool
	interval time.Duration
	bars     map[int64]*progressbar.ProgressBar
	lastLine map[int64]time.Time
}

// NewConsoleSink creates a console sink writing to stderr
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{
		out:      os.Stderr,
		tty:      util.IsTerminal(os.Stderr.Fd()) && !util.IsQuiet(),
		interval: 2 * time.Second,
		bars:     make(map[int64]*progressbar.ProgressBar),
		lastLine: make(map[int64]time.Time),
	}
}

// Emit implements EventSink
func (c *ConsoleSink) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case EventStarted:
		util.InfoLog("Job %d (%s) started", e.JobID, e.Kind)

	case EventProgress:
		c.progress(e)

	case EventLog:
		c.clearBar(e.JobID)
		switch e.Level {
		case LevelError:
			util.ErrorLog("[job %d] %s", e.JobID, e.Message)
		case LevelWarning:
			util.WarnLog("[job %d] %s", e.JobID, e.Message)
		case LevelDebug:
			util.DebugLog("[job %d] %s", e.JobID, e.Message)
		default:
			util.InfoLog("[job %d] %s", e.JobID, e.Message)
		}

	case EventFinished:
		if bar, ok := c.bars[e.JobID]; ok {
			_ = bar.Finish()
			delete(c.bars, e.JobID)
		}
		delete(c.lastLine, e.JobID)
		if e.Status == store.StatusFailed {
			util.ErrorLog("Job %d (%s) failed: %s", e.JobID, e.Kind, e.Error)
		} else {
			util.SuccessLog("Job %d (%s) completed", e.JobID, e.Kind)
		}
	}
}

func (c *ConsoleSink) progress(e Event) {
	if !c.tty {
		if time.Since(c.lastLine[e.JobID]) < c.interval {
			return
		}
		c.lastLine[e.JobID] = time.Now()
		if e.Total > 0 {
			util.InfoLog("Progress [job %d]: %d/%d (%.1f%%) %s", e.JobID, e.Count, e.Total,
				float64(e.Count)/float64(e.Total)*100, e.Message)
		} else {
			util.InfoLog("Progress [job %d]: %d %s", e.JobID, e.Count, e.Message)
		}
		return
	}

	bar, ok := c.bars[e.JobID]
	if !ok {
		total := e.Total
		if total <= 0 {
			total = -1
		}
		bar = progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(c.out),
			progressbar.OptionSetDescription(fmt.Sprintf("%s #%d", e.Kind, e.JobID)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
		c.bars[e.JobID] = bar
	}

	if e.Total > 0 && bar.GetMax64() != e.Total {
		bar.ChangeMax64(e.Total)
	}
	if e.Message != "" {
		bar.Describe(fmt.Sprintf("%s #%d | %s", e.Kind, e.JobID, e.Message))
	}
	_ = bar.Set64(e.Count)
}

// clearBar wipes the current bar line so a log line does not interleave with it
func (c *ConsoleSink) clearBar(jobID int64) {
	if bar, ok := c.bars[jobID]; ok {
		_ = bar.Clear()
	}
}

package scraper

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Log buffers timestamped lines for the lifetime of a run. Lines survive
// attempt boundaries — it is the only state that does — and are handed
// back to the caller in the RunResult. An optional sink receives each
// line as it is written for live streaming.
type Log struct {
	mu    sync.Mutex
	lines []string
	sink  func(string)
	now   func() time.Time
}

// NewLog creates a Log. sink may be nil.
func NewLog(sink func(string)) *Log {
	return &Log{sink: sink, now: time.Now}
}

// Printf appends a formatted, timestamped line.
func (l *Log) Printf(format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", l.now().Format("15:04:05.000"), fmt.Sprintf(format, args...))

	l.mu.Lock()
	l.lines = append(l.lines, line)
	sink := l.sink
	l.mu.Unlock()

	slog.Debug(fmt.Sprintf(format, args...))
	if sink != nil {
		sink(line)
	}
}

// Lines returns a copy of everything logged so far.
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

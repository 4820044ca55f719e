// Package sink implements the engine's external event sinks: a text log,
// a binary trace writer, and a per-call-site profile writer. Grounded on
// the teacher's file-handling idiom (internal/io's OpenFile/FileMode
// style, simplified here to a plain *os.File since the sinks only ever
// append) and its Logger's timestamped-line format (internal/cli's
// Logger.Info/Warn/Error).
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/orizon-lang/mpatrolgo/internal/engine"
)

// TextLog writes one human-readable line per event to an underlying
// writer, guarded by a mutex since the engine's recorder may be invoked
// from several goroutines serialised only by the engine's own lock (a
// sink must not assume it is itself single-threaded).
type TextLog struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// NewTextLog opens path for append, creating it if necessary. An empty
// path writes to os.Stderr instead, matching mpatrol's "no log file
// configured" default.
func NewTextLog(path string) (*TextLog, error) {
	if path == "" {
		return &TextLog{w: os.Stderr, now: time.Now}, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open log %q: %w", path, err)
	}

	return &TextLog{w: f, closer: f, now: time.Now}, nil
}

// Handle implements engine.Sink.
func (t *TextLog) Handle(ev engine.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.now().Format("15:04:05.000000")

	line := fmt.Sprintf("%s [%s] %s", ts, ev.Kind, describeEvent(ev))
	fmt.Fprintln(t.w, line)
}

func describeEvent(ev engine.Event) string {
	base := fmt.Sprintf("%s:%d in %s (thread %d)", ev.Context.File, ev.Context.Line, ev.Context.Function, ev.Context.ThreadID)

	if ev.Record != nil {
		base = fmt.Sprintf("%s ordinal=%d base=0x%x size=%d kind=%s", base, ev.Record.Ordinal, ev.Record.Base, ev.Record.Size, ev.Record.Kind)
	}

	if ev.Err != nil {
		base = fmt.Sprintf("%s error=%v", base, ev.Err)
	}

	if ev.Message != "" {
		base = fmt.Sprintf("%s: %s", base, ev.Message)
	}

	return base
}

// Close flushes and closes the underlying file, if one was opened.
func (t *TextLog) Close() error {
	if t.closer == nil {
		return nil
	}

	return t.closer.Close()
}

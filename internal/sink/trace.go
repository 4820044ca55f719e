package sink

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/mpatrolgo/internal/engine"
)

// traceFormatVersion is bumped whenever the on-disk record layout
// changes incompatibly. TraceReader (tooling outside this package)
// refuses to read a file whose stamped version does not satisfy
// traceFormatConstraint.
const traceFormatVersion = "1.0.0"

var traceFormatConstraint = semver.MustParse(traceFormatVersion)

const (
	traceRecordAlloc uint8 = iota
	traceRecordFree
)

// Trace writes a binary sequence of typed records: a header stamped with
// the format version, followed by alloc(ordinal, base, size) and
// free(ordinal) records (§6 "Persisted artefacts").
type Trace struct {
	mu sync.Mutex
	f  *os.File
}

// NewTrace creates (or truncates) the trace file at path and writes its
// header.
func NewTrace(path string) (*Trace, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open trace %q: %w", path, err)
	}

	t := &Trace{f: f}
	if err := t.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}

	return t, nil
}

const traceMagic = "MPTRCv1\x00"

func (t *Trace) writeHeader() error {
	if _, err := t.f.WriteString(traceMagic); err != nil {
		return err
	}

	major := uint32(traceFormatConstraint.Major())
	minor := uint32(traceFormatConstraint.Minor())
	patch := uint32(traceFormatConstraint.Patch())

	for _, v := range []uint32{major, minor, patch} {
		if err := binary.Write(t.f, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	return nil
}

// Handle implements engine.Sink. Only alloc/free completion events
// produce trace records; everything else is ignored, since the trace
// format has no slot for warnings or bulk-memory operations.
func (t *Trace) Handle(ev engine.Event) {
	if ev.Record == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case engine.EventAllocCompleted:
		t.writeAlloc(ev.Record)
	case engine.EventFreeCompleted:
		t.writeFree(ev.Record)
	}
}

func (t *Trace) writeAlloc(r *engine.Record) {
	binary.Write(t.f, binary.LittleEndian, traceRecordAlloc)
	binary.Write(t.f, binary.LittleEndian, uint64(r.Ordinal))
	binary.Write(t.f, binary.LittleEndian, uint64(r.Base))
	binary.Write(t.f, binary.LittleEndian, uint64(r.Size))
}

func (t *Trace) writeFree(r *engine.Record) {
	binary.Write(t.f, binary.LittleEndian, traceRecordFree)
	binary.Write(t.f, binary.LittleEndian, uint64(r.Ordinal))
}

// Close flushes and closes the trace file.
func (t *Trace) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.f.Close()
}

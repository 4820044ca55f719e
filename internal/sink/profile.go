package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/orizon-lang/mpatrolgo/internal/engine"
)

// callSiteStats accumulates the histogram for one (function, file, line)
// triple.
type callSiteStats struct {
	Function    string `json:"function"`
	File        string `json:"file"`
	Line        uint32 `json:"line"`
	Count       uint64 `json:"count"`
	TotalBytes  uint64 `json:"totalBytes"`
	LiveBytes   uint64 `json:"liveBytes"`
	PeakBytes   uint64 `json:"peakBytes"`
}

type callSiteKey struct {
	function string
	file     string
	line     uint32
}

// Profile accumulates per-call-site allocation histograms in memory and
// writes them as JSON on Close, matching the teacher's JSON-marshal
// persistence style (internal/cli's LoadConfig/SaveConfig) rather than a
// bespoke binary format, since the profile is meant to be hand-inspected
// offline.
type Profile struct {
	mu    sync.Mutex
	path  string
	sites map[callSiteKey]*callSiteStats
}

// NewProfile constructs an in-memory profile accumulator that will be
// written to path on Close.
func NewProfile(path string) *Profile {
	return &Profile{path: path, sites: make(map[callSiteKey]*callSiteStats)}
}

// Handle implements engine.Sink.
func (p *Profile) Handle(ev engine.Event) {
	if ev.Record == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := callSiteKey{function: ev.Record.Context.Function, file: ev.Record.Context.File, line: ev.Record.Context.Line}

	st, ok := p.sites[key]
	if !ok {
		st = &callSiteStats{Function: key.function, File: key.file, Line: key.line}
		p.sites[key] = st
	}

	switch ev.Kind {
	case engine.EventAllocCompleted:
		st.Count++
		st.TotalBytes += uint64(ev.Record.Size)
		st.LiveBytes += uint64(ev.Record.Size)

		if st.LiveBytes > st.PeakBytes {
			st.PeakBytes = st.LiveBytes
		}
	case engine.EventFreeCompleted:
		if st.LiveBytes >= uint64(ev.Record.Size) {
			st.LiveBytes -= uint64(ev.Record.Size)
		}
	}
}

// Close writes the accumulated histograms to disk as JSON, sorted by
// descending total bytes so the heaviest call sites appear first.
func (p *Profile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := make([]*callSiteStats, 0, len(p.sites))
	for _, st := range p.sites {
		list = append(list, st)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].TotalBytes > list[j].TotalBytes })

	f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("sink: open profile %q: %w", p.path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	return enc.Encode(list)
}

package engine

import (
	"strings"
	"testing"

	"github.com/orizon-lang/mpatrolgo/internal/config"
	"github.com/orizon-lang/mpatrolgo/internal/pageprovider"
)

func TestCheckLeaksReportsOnlyLiveAllocations(t *testing.T) {
	e := newTestEngine(t)

	p, err := e.GetMemory(16, 8, KindGeneral, CallContext{Function: "leaked"})
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	q, err := e.GetMemory(16, 8, KindGeneral, CallContext{Function: "freed"})
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	if err := e.FreeMemory(q, KindFreePlain, CallContext{}); err != nil {
		t.Fatalf("FreeMemory failed: %v", err)
	}

	leaks := e.CheckLeaks()
	if len(leaks) != 1 || leaks[0].Base != p {
		t.Fatalf("CheckLeaks() = %+v, want single leak at %#x", leaks, p)
	}
}

func TestShutdownMessageOmitsDumpWhenShowUnfreedDisabled(t *testing.T) {
	cfg := config.New(config.WithOflow(16))
	cfg.Flags.ShowUnfreed = false

	e := NewEngine(pageprovider.NewMmapProvider(), cfg)

	if _, err := e.GetMemory(16, 8, KindGeneral, CallContext{Function: "leaked"}); err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	var captured string
	e.recorder = newRecorder(sinkFunc(func(ev Event) {
		if ev.Kind == EventSummary {
			captured = ev.Message
		}
	}), nil, nil)

	summary := e.Shutdown()

	if len(summary.Leaks) != 1 {
		t.Fatalf("summary.Leaks = %+v, want 1 leak", summary.Leaks)
	}

	if strings.Contains(captured, "allocated at") {
		t.Fatalf("summary message should omit the per-allocation dump when ShowUnfreed is disabled, got %q", captured)
	}

	if !strings.Contains(captured, "1 unfreed allocation") {
		t.Fatalf("summary message should still report the leak count, got %q", captured)
	}
}

func TestShutdownTrapsWhenLeaksReachAbortMinimum(t *testing.T) {
	cfg := config.New(config.WithOflow(16))
	cfg.UnfreedAbortMin = 1

	e := NewEngine(pageprovider.NewMmapProvider(), cfg)

	if _, err := e.GetMemory(16, 8, KindGeneral, CallContext{Function: "leaked"}); err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected Shutdown to panic once live leaks reach UnfreedAbortMin")
		}
	}()

	e.Shutdown()
}

type sinkFunc func(Event)

func (f sinkFunc) Handle(ev Event) { f(ev) }

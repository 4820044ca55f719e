package engine

import (
	"testing"

	"github.com/orizon-lang/mpatrolgo/internal/config"
	"github.com/orizon-lang/mpatrolgo/internal/pageprovider"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := config.New(config.WithOflow(16))

	return NewEngine(pageprovider.NewMmapProvider(), cfg)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	p, err := e.GetMemory(32, 8, KindGeneral, CallContext{Function: "alloc"})
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	if _, ok := e.index.findExact(p); !ok {
		t.Fatal("expected a live record after allocation")
	}

	liveBefore := e.liveCount

	if err := e.FreeMemory(p, KindFreePlain, CallContext{Function: "free"}); err != nil {
		t.Fatalf("FreeMemory failed: %v", err)
	}

	if _, ok := e.index.findExact(p); ok {
		t.Fatal("normal-mode free must remove the record from the index")
	}

	if e.liveCount != liveBefore-1 {
		t.Fatalf("liveCount = %d, want %d", e.liveCount, liveBefore-1)
	}
}

func TestDoubleFreeIsRejected(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.Flags.NoFree = true // retain freed records so the second free can detect them

	p, err := e.GetMemory(16, 8, KindGeneral, CallContext{})
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	if err := e.FreeMemory(p, KindFreePlain, CallContext{}); err != nil {
		t.Fatalf("first FreeMemory failed: %v", err)
	}

	err = e.FreeMemory(p, KindFreePlain, CallContext{})
	if err == nil {
		t.Fatal("second free of the same pointer must fail")
	}
}

func TestIncompatibleReleaseRejected(t *testing.T) {
	e := newTestEngine(t)

	p, err := e.GetMemory(8, 8, KindNewArray, CallContext{TypeName: "int", TypeSize: 8})
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	if err := e.FreeMemory(p, KindDeleteScalar, CallContext{}); err == nil {
		t.Fatal("releasing a new[] allocation with scalar delete must fail")
	}
}

func TestResizeGrowsAndFillsTail(t *testing.T) {
	e := newTestEngine(t)
	e.guard.AllocByte = 0xA1

	p, err := e.GetMemory(32, 8, KindGeneral, CallContext{})
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	q, err := e.ResizeMemory(p, 64, 8, KindReallocPlain, CallContext{})
	if err != nil {
		t.Fatalf("ResizeMemory failed: %v", err)
	}

	rec, ok := e.index.findExact(q)
	if !ok {
		t.Fatal("expected a live record at the resized base")
	}

	if rec.Size != 64 {
		t.Fatalf("rec.Size = %d, want 64", rec.Size)
	}

	if off, mismatch := e.provider.ComparePattern(q+32, 32, 0xA1); mismatch {
		t.Fatalf("grown tail byte at offset %d is not the alloc byte 0xA1", off)
	}
}

func TestScopedAllocationAutoReleasesOnUnwind(t *testing.T) {
	e := newTestEngine(t)

	p, err := e.GetMemory(16, 8, KindScoped, CallContext{FrameMarker: 100})
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	if e.scope.len() != 1 {
		t.Fatalf("scope.len() = %d, want 1", e.scope.len())
	}

	var released []uintptr

	e.scope.unwindTo(200, func(entry *ScopeEntry) {
		released = append(released, entry.Block)
		_ = e.freeMemoryLocked(entry.Block, KindFreeScope, CallContext{})
	})

	if len(released) != 1 || released[0] != p {
		t.Fatalf("unwindTo released %v, want [%#x]", released, p)
	}

	if e.scope.len() != 0 {
		t.Fatal("scope stack should be empty after unwind")
	}
}

func TestEntryUnwindsScopeRecordsFromShallowerFrames(t *testing.T) {
	e := newTestEngine(t)

	p, err := e.GetMemory(16, 8, KindScoped, CallContext{FrameMarker: 100})
	if err != nil {
		t.Fatalf("GetMemory(p) failed: %v", err)
	}

	q, err := e.GetMemory(16, 8, KindScoped, CallContext{FrameMarker: 150})
	if err != nil {
		t.Fatalf("GetMemory(q) failed: %v", err)
	}

	if e.scope.len() != 2 {
		t.Fatalf("scope.len() = %d, want 2", e.scope.len())
	}

	// alloc(0) from a shallower frame (§8.6): both scope records must be
	// auto-released in LIFO order before this outer allocation completes.
	if _, err := e.GetMemory(0, 8, KindGeneral, CallContext{FrameMarker: 200}); err != nil {
		t.Fatalf("GetMemory(outer) failed: %v", err)
	}

	if e.scope.len() != 0 {
		t.Fatalf("scope.len() = %d, want 0 after unwind", e.scope.len())
	}

	if _, ok := e.index.findExact(p); ok {
		t.Fatal("p should have been released by the unwind")
	}

	if _, ok := e.index.findExact(q); ok {
		t.Fatal("q should have been released by the unwind")
	}
}

func TestLocateStringFindsTerminator(t *testing.T) {
	e := newTestEngine(t)

	p, err := e.GetMemory(8, 8, KindStrdupBounded, CallContext{})
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	if err := e.SetMemory(p, 'x', 4, KindSet, CallContext{}); err != nil {
		t.Fatalf("SetMemory failed: %v", err)
	}

	if err := e.SetMemory(p+4, 0, 1, KindSet, CallContext{}); err != nil {
		t.Fatalf("SetMemory(terminator) failed: %v", err)
	}

	n, err := e.LocateString(p, 0, CallContext{})
	if err != nil {
		t.Fatalf("LocateString failed: %v", err)
	}

	if n != 4 {
		t.Fatalf("LocateString length = %d, want 4", n)
	}
}

func TestLocateStringOverflowsPastGuardBoundary(t *testing.T) {
	e := newTestEngine(t)

	p, err := e.GetMemory(8, 8, KindStrdupBounded, CallContext{})
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	if err := e.SetMemory(p, 'x', 8, KindSet, CallContext{}); err != nil {
		t.Fatalf("SetMemory failed: %v", err)
	}

	if _, err := e.LocateString(p, 8, CallContext{}); err == nil {
		t.Fatal("expected a string-overflow error when no terminator exists within the bound")
	}
}

func TestCheckRangeSkipsAddressesOutsideConfiguredWindow(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.CheckRangeLower = 0xF000_0000
	e.cfg.CheckRangeUpper = 0xF000_1000

	p, err := e.GetMemory(16, 8, KindGeneral, CallContext{})
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}

	// p falls outside the configured window, so the range check must be
	// skipped even though n grossly overruns the live record (rangeCheck
	// is exercised directly here rather than through SetMemory, since
	// actually filling 4096 bytes past a 16-byte mapping would corrupt
	// unrelated memory).
	if err := e.rangeCheck(p, 4096, CallContext{}); err != nil {
		t.Fatalf("rangeCheck should bypass checking outside the configured window: %v", err)
	}
}

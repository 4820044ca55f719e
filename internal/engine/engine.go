package engine

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/orizon-lang/mpatrolgo/internal/config"
	stderrors "github.com/orizon-lang/mpatrolgo/internal/errors"
	"github.com/orizon-lang/mpatrolgo/internal/pageprovider"
	"github.com/orizon-lang/mpatrolgo/internal/threadid"
	"github.com/orizon-lang/mpatrolgo/internal/typeinfo"
)

// closer is satisfied by any sink that owns a file handle it must flush
// at shutdown (internal/sink.TextLog, .Trace, .Profile all implement
// it without needing to import this package for the interface itself).
type closer interface {
	Close() error
}

// Engine is the process-wide "Info head" (§2, §3 "Engine state"): it
// owns the allocation index, the slot tables, the scope stack, the
// protection manager, and the event recorder, and implements the eight
// user-visible operations of §4.7. Exactly one Engine exists per loaded
// host program (§9 "Process-wide engine state"); its lifetime is driven
// by NewEngine/Shutdown rather than any package-level global, so tests
// can construct as many independent engines as they need.
type Engine struct {
	mu sync.Mutex

	provider pageprovider.Provider
	guard    GuardConfig
	cfg      *config.Config

	index       *index
	recordSlots *SlotTable[Record]
	scopeSlots  *SlotTable[ScopeEntry]
	scope       *scopeStack
	protect     *protectionManager
	recorder    *recorder
	types       *typeinfo.Registry
	walker      StackWalker
	resolver    SymbolResolver

	rng *rand.Rand

	allocOrdinal  uint64
	peakLiveBytes uint64
	peakLiveCount uint64
	liveBytes     uint64
	liveCount     uint64
	bytesCompared uint64
	bytesCopied   uint64
	bytesLocated  uint64
	bytesSet      uint64

	closers []closer

	finalizing bool
}

// Option customises a newly constructed Engine.
type Option func(*Engine)

// WithGuardConfig overrides the default guard-fill configuration.
func WithGuardConfig(g GuardConfig) Option { return func(e *Engine) { e.guard = g } }

// WithSymbols installs a stack walker and symbol resolver; without this
// option the engine still functions, it simply cannot resolve return
// addresses for diagnostic printing.
func WithSymbols(w StackWalker, r SymbolResolver) Option {
	return func(e *Engine) { e.walker = w; e.resolver = r }
}

// WithSinks installs the text log, trace, and profile sinks. Any of them
// may be nil to disable that channel. Sinks implementing closer are
// flushed on Shutdown.
func WithSinks(log, trace, profile Sink) Option {
	return func(e *Engine) {
		e.recorder = newRecorder(log, trace, profile)

		for _, s := range []Sink{log, trace, profile} {
			if c, ok := s.(closer); ok {
				e.closers = append(e.closers, c)
			}
		}
	}
}

// NewEngine constructs an Engine (§3 "Lifecycle": new-info). provider
// must not be shared with any other Engine instance (§5 "Shared-resource
// policy").
func NewEngine(provider pageprovider.Provider, cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.New()
	}

	e := &Engine{
		provider: provider,
		cfg:      cfg,
		guard: GuardConfig{
			AllocByte:    0xAA,
			FreeByte:     0x55,
			OverflowByte: 0xD0,
			Mode:         ByteGuardMode,
			Oflow:        uintptr(cfg.Oflow),
		},
		index:       newIndex(),
		recordSlots: NewSlotTable[Record](),
		scopeSlots:  NewSlotTable[ScopeEntry](),
		scope:       newScopeStack(defaultBelow),
		types:       typeinfo.NewRegistry(),
		rng:         rand.New(rand.NewSource(cfg.FaultSeed)),
	}

	e.protect = newProtectionManager(provider, cfg.Flags.NoProtect)

	for _, opt := range opts {
		opt(e)
	}

	if e.recorder == nil {
		e.recorder = newRecorder(nil, nil, nil)
	}

	return e
}

// unwindScope implements §4.4's unwind-on-entry: every engine entry first
// compares the scope stack's recorded frame markers against the caller's
// current frame, releasing (via the ordinary free path) every scope
// record whose frame has been superseded before the entry's own work
// proceeds.
func (e *Engine) unwindScope(ctx CallContext) {
	e.scope.unwindTo(ctx.FrameMarker, func(entry *ScopeEntry) {
		_ = e.freeMemoryLocked(entry.Block, KindFreeScope, ctx)
		e.scopeSlots.Release(entry)
	})
}

func (e *Engine) snapshotCounters() Counters {
	return Counters{
		LiveBytes:     e.liveBytes,
		PeakLiveBytes: e.peakLiveBytes,
		LiveCount:     e.liveCount,
		PeakLiveCount: e.peakLiveCount,
		BytesCompared: e.bytesCompared,
		BytesCopied:   e.bytesCopied,
		BytesLocated:  e.bytesLocated,
		BytesSet:      e.bytesSet,
		AllocOrdinal:  e.allocOrdinal,
	}
}

// trap implements the "print summary and abort" fatal path (§4.7.1 step
//1, §7 "Propagation"). Since a Go library cannot unilaterally abort its
// host process the way the C original calls abort(3), trap panics with a
// *stderrors.StandardError instead; a host embedding the engine as a
// library is expected to recover at its outermost boundary if it wants
// "log and continue" semantics, matching the documented behavior of
// MP_SAFESIGNALS in the original.
func (e *Engine) trap(err *stderrors.StandardError) {
	leaks := e.checkLeaksLocked()
	e.recorder.emit(Event{Kind: EventSummary, Message: FormatLeaks(leaks), Err: err})
	e.finalizing = true

	panic(err)
}

func (e *Engine) checkLeaksLocked() []LeakInfo {
	var leaks []LeakInfo

	e.index.each(func(r *Record) {
		if !r.Freed {
			leaks = append(leaks, LeakInfo{Ordinal: r.Ordinal, Base: r.Base, Size: r.Size, Kind: r.Kind, Function: r.Context.Function, File: r.Context.File, Line: r.Context.Line})
		}
	})

	return leaks
}

// checkFault reports whether this allocation should fail due to fault
// injection (§4.7.1 step 3): either the configured byte limit would be
// exceeded, or a uniform draw over [0, freq) lands on zero.
func (e *Engine) checkFault(size uintptr) bool {
	if e.cfg.ByteLimit != 0 && e.liveBytes+uint64(size) > e.cfg.ByteLimit {
		return true
	}

	if e.cfg.FaultFrequency != 0 && e.rng.Int63n(int64(e.cfg.FaultFrequency)) == 0 {
		return true
	}

	return false
}

// validateAlignment applies §4.7.1 step 2's alignment coercion rules,
// returning the (possibly coerced) alignment and a non-fatal warning
// error, if any.
func (e *Engine) validateAlignment(requested uintptr, kind Kind, ctx CallContext) (uintptr, error) {
	pageSize := e.provider.PageSize()

	if kind.IsPageKind() {
		return pageSize, nil
	}

	if requested == 0 {
		return 1, errZeroAlign(ctx)
	}

	if requested&(requested-1) != 0 {
		return 1, errBadAlign(ctx, requested)
	}

	if requested > pageSize {
		return pageSize, errMaxAlign(ctx, requested, pageSize)
	}

	return requested, nil
}

// GetMemory implements §4.7.1.
func (e *Engine) GetMemory(size, alignment uintptr, kind Kind, ctx CallContext) (uintptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unwindScope(ctx)

	return e.getMemoryLocked(size, alignment, kind, ctx)
}

func (e *Engine) getMemoryLocked(size, alignment uintptr, kind Kind, ctx CallContext) (uintptr, error) {
	depth := e.protect.depthCount()
	outermost := depth == 0

	e.allocOrdinal++
	ordinal := e.allocOrdinal

	if outermost && e.cfg.AllocStop != 0 && ordinal == e.cfg.AllocStop {
		e.trap(stderrors.New(stderrors.CodeNotAllocated, "abort-at-allocation ordinal reached", ctxFields(ctx, nil)))
	}

	var warn error

	if size == 0 && e.cfg.Flags.CheckAllocs {
		warn = errAllocZero(ctx)
	}

	alignment, alignWarn := e.validateAlignment(alignment, kind, ctx)
	if alignWarn != nil {
		warn = alignWarn
	}

	roundedSize := size
	if kind.IsPageKind() {
		roundedSize = alignUpPage(size, e.provider.PageSize())
	}

	if outermost && e.checkFault(roundedSize) {
		err := errOutOfMemory(ctx, size)
		e.logEvent(EventError, ctx, nil, err, "")

		return 0, err
	}

	e.protect.unprotect()
	defer e.protect.reprotect()

	base, err := e.provider.AllocPages(roundedSize+2*e.guardOflowFor(kind), alignment)
	if err != nil {
		wrapped := errOutOfMemory(ctx, size)
		e.logEvent(EventError, ctx, nil, wrapped, "")

		return 0, wrapped
	}

	userBase := base + e.guardOflowFor(kind)

	rec := e.recordSlots.Acquire()
	*rec = Record{
		Base:          userBase,
		Size:          roundedSize,
		Kind:          kind,
		Ordinal:       ordinal,
		ResizeOrdinal: 0,
		ThreadID:      threadid.Current(),
		Context:       ctx,
		Internal:      depth > 0,
	}

	e.index.insert(rec)

	guardFill(e.provider, e.guard, userBase, roundedSize)

	if kind.IsZeroing() {
		e.provider.FillBytes(userBase, 0, roundedSize)
	} else {
		e.provider.FillBytes(userBase, e.guard.AllocByte, roundedSize)
	}

	if outermost {
		rec.Profiled = true
		rec.Traced = true
	}

	if kind.IsScopeBounded() {
		entry := e.scopeSlots.Acquire()
		*entry = ScopeEntry{Block: userBase, FrameMarker: ctx.FrameMarker}
		e.scope.push(entry)
	}

	if typed, ok := typedBinding(kind, ctx); ok {
		e.types.Register(userBase, typed)
	}

	e.liveBytes += uint64(roundedSize)
	e.liveCount++

	if e.liveBytes > e.peakLiveBytes {
		e.peakLiveBytes = e.liveBytes
	}

	if e.liveCount > e.peakLiveCount {
		e.peakLiveCount = e.liveCount
	}

	if outermost {
		e.logEvent(EventLogAlloc, ctx, rec, warn, "")
		e.recorder.emit(Event{Kind: EventAllocCompleted, Context: ctx, Record: rec, Counters: e.snapshotCounters()})
	}

	return userBase, nil
}

func typedBinding(kind Kind, ctx CallContext) (typeinfo.Binding, bool) {
	if kind != KindNewScalar && kind != KindNewArray {
		return typeinfo.Binding{}, false
	}

	return typeinfo.Binding{TypeName: ctx.TypeName, TypeSize: ctx.TypeSize, IsArray: kind == KindNewArray}, true
}

// guardOflowFor returns the per-side guard width used for a given kind;
// page-allocating kinds, and every kind outside byte-guard mode, get
// zero here. No guard pages are mapped or protected for them.
func (e *Engine) guardOflowFor(kind Kind) uintptr {
	if e.guard.Mode != ByteGuardMode || kind.IsPageKind() {
		return 0
	}

	return e.guard.Oflow
}

func alignUpPage(size, page uintptr) uintptr {
	if page == 0 {
		return size
	}

	return (size + page - 1) &^ (page - 1)
}

func (e *Engine) logEvent(kind EventKind, ctx CallContext, rec *Record, err error, msg string) {
	e.recorder.emit(Event{Kind: kind, Context: ctx, Record: rec, Counters: e.snapshotCounters(), Err: err, Message: msg})
}

// ResizeMemory implements §4.7.2.
func (e *Engine) ResizeMemory(ptr, newSize, alignment uintptr, kind Kind, ctx CallContext) (uintptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unwindScope(ctx)

	if ptr == 0 {
		if e.cfg.Flags.CheckReallocs {
			e.logEvent(EventWarning, ctx, nil, errReallocNull(ctx), "")
		}

		return e.getMemoryLocked(newSize, alignment, kind, ctx)
	}

	if freed, ok := e.index.findFreed(ptr); ok {
		err := errPreviouslyFreed(ctx, ptr, freed)
		e.logEvent(EventError, ctx, freed, err, "")

		return 0, err
	}

	rec, ok := e.index.findExact(ptr)
	if !ok {
		if owner, ok := e.index.findContaining(ptr, 1); ok {
			err := errMismatchedFree(ctx, ptr, owner)
			e.logEvent(EventError, ctx, owner, err, "")

			return 0, err
		}

		err := errNotAllocated(ctx, ptr)
		e.logEvent(EventError, ctx, nil, err, "")

		return 0, err
	}

	if !rec.Kind.Resizable() {
		err := errIncompatibleRelease(ctx, kind, rec)
		e.logEvent(EventError, ctx, rec, err, "")

		return 0, err
	}

	if newSize == 0 {
		e.logEvent(EventWarning, ctx, rec, errReallocZero(ctx), "")

		if err := e.freeMemoryLocked(ptr, KindFreePlain, ctx); err != nil {
			return 0, err
		}

		return 0, nil
	}

	if e.cfg.ReallocStop != 0 && rec.ResizeOrdinal+1 == e.cfg.ReallocStop {
		if e.cfg.AllocStop == 0 || rec.Ordinal == e.cfg.AllocStop {
			e.trap(stderrors.New(stderrors.CodeNotAllocated, "abort-at-reallocation ordinal reached", ctxFields(ctx, rec)))
		}
	}

	if newSize > rec.Size && e.checkFault(newSize-rec.Size) {
		err := errOutOfMemory(ctx, newSize)
		e.logEvent(EventError, ctx, rec, err, "")

		return 0, err
	}

	e.protect.unprotect()
	defer e.protect.reprotect()

	// FLG_NOFREE (§6): a block under the no-free policy is never resized
	// in place, since the old block must be retained as a freed record
	// rather than handed back to the provider; resizeByCopy always
	// allocates a fresh block for the grown/shrunk size and keeps the
	// old one around (original_source/src/info.c's realloc path).
	if e.cfg.Flags.NoFree {
		return e.resizeByCopy(rec, newSize, kind, ctx)
	}

	if newSize == rec.Size {
		return ptr, nil
	}

	oflow := e.guardOflowFor(rec.Kind)
	if newBase, err := e.provider.AllocPages(newSize+2*oflow, 1); err == nil {
		userBase := newBase + oflow
		// Copy from the old mapping before it is unmapped below; freeing
		// rec.Base first would read from memory the kernel has already
		// reclaimed (§8's resize invariant).
		e.provider.CopyBytes(userBase, rec.Base, min(rec.Size, newSize))
		_ = e.provider.FreePages(rec.Base-oflow, rec.Size+2*oflow)
		e.finishResize(rec, userBase, newSize, kind, ctx)

		return userBase, nil
	}

	if e.cfg.Flags.AllocUpper || newSize > rec.Size {
		return e.resizeByCopy(rec, newSize, kind, ctx)
	}

	err := errOutOfMemory(ctx, newSize)
	e.logEvent(EventError, ctx, rec, err, "")

	return 0, err
}

func (e *Engine) resizeByCopy(rec *Record, newSize uintptr, kind Kind, ctx CallContext) (uintptr, error) {
	oflow := e.guardOflowFor(rec.Kind)

	newBase, err := e.provider.AllocPages(newSize+2*oflow, 1)
	if err != nil {
		wrapped := errOutOfMemory(ctx, newSize)
		e.logEvent(EventError, ctx, rec, wrapped, "")

		return 0, wrapped
	}

	userBase := newBase + oflow
	e.provider.CopyBytes(userBase, rec.Base, min(rec.Size, newSize))

	oldBase, oldSize := rec.Base, rec.Size
	oldKind := rec.Kind
	oldResizeCount, oldOrdinal, oldResizeOrdinal := rec.ResizeCount, rec.Ordinal, rec.ResizeOrdinal
	oldProfiled, oldTraced := rec.Profiled, rec.Traced

	e.index.erase(oldBase)

	// FLG_NOFREE (§6): retain the old record as a freed entry instead of
	// releasing its slot and handing the mapping back to the provider;
	// FLG_PRESERVE gates only whether its bytes get the free-byte fill,
	// matching freeMemoryLocked's retention branch below.
	if e.cfg.Flags.NoFree {
		rec.Freed = true
		rec.Context = ctx

		if !e.cfg.Flags.Preserve {
			e.provider.FillBytes(oldBase, e.guard.FreeByte, oldSize)
		}

		e.index.insert(rec)
		e.recorder.emit(Event{Kind: EventFreeCompleted, Context: ctx, Record: rec, Counters: e.snapshotCounters()})
	} else {
		// rec's slot may be handed back out by the very next Acquire
		// below, so every field read from it must happen before Release.
		e.recordSlots.Release(rec)
		_ = e.provider.FreePages(oldBase-oflow, oldSize+2*oflow)
		e.recorder.emit(Event{Kind: EventFreeCompleted, Context: ctx, Record: &Record{Base: oldBase, Size: oldSize, Kind: oldKind, Ordinal: oldOrdinal, Context: ctx, Profiled: oldProfiled, Traced: oldTraced}, Counters: e.snapshotCounters()})
	}

	newRec := e.recordSlots.Acquire()
	*newRec = Record{
		Base:          userBase,
		Size:          newSize,
		Kind:          oldKind,
		ResizeCount:   oldResizeCount + 1,
		Ordinal:       oldOrdinal,
		ResizeOrdinal: oldResizeOrdinal + 1,
		ThreadID:      threadid.Current(),
		Context:       ctx,
		Profiled:      oldProfiled,
		Traced:        oldTraced,
	}

	e.index.insert(newRec)

	guardFill(e.provider, e.guard, userBase, newSize)
	e.fillGrownTail(newRec, oldSize, kind)

	e.liveBytes = e.liveBytes - uint64(oldSize) + uint64(newSize)
	if e.liveBytes > e.peakLiveBytes {
		e.peakLiveBytes = e.liveBytes
	}

	e.logEvent(EventLogRealloc, ctx, newRec, nil, "")
	e.recorder.emit(Event{Kind: EventAllocCompleted, Context: ctx, Record: newRec, Counters: e.snapshotCounters()})

	return userBase, nil
}

func (e *Engine) finishResize(rec *Record, userBase, newSize uintptr, kind Kind, ctx CallContext) {
	oldSize := rec.Size

	e.index.erase(rec.Base)
	rec.Base = userBase
	rec.Size = newSize
	rec.ResizeCount++
	rec.ResizeOrdinal++
	rec.Context = ctx
	e.index.insert(rec)

	guardFill(e.provider, e.guard, userBase, newSize)
	e.fillGrownTail(rec, oldSize, kind)

	e.liveBytes = e.liveBytes - uint64(oldSize) + uint64(newSize)
	if e.liveBytes > e.peakLiveBytes {
		e.peakLiveBytes = e.liveBytes
	}

	e.logEvent(EventLogRealloc, ctx, rec, nil, "")
}

func (e *Engine) fillGrownTail(rec *Record, oldSize uintptr, kind Kind) {
	if rec.Size <= oldSize {
		return
	}

	tailLen := rec.Size - oldSize
	if kind.IsZeroing() {
		e.provider.FillBytes(rec.Base+oldSize, 0, tailLen)
	} else {
		e.provider.FillBytes(rec.Base+oldSize, e.guard.AllocByte, tailLen)
	}
}

// FreeMemory implements §4.7.3.
func (e *Engine) FreeMemory(ptr uintptr, kind Kind, ctx CallContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unwindScope(ctx)

	return e.freeMemoryLocked(ptr, kind, ctx)
}

func (e *Engine) freeMemoryLocked(ptr uintptr, kind Kind, ctx CallContext) error {
	if ptr == 0 {
		if e.cfg.Flags.CheckFrees {
			e.logEvent(EventWarning, ctx, nil, errFreeNull(ctx), "")
		}

		return nil
	}

	if freed, ok := e.index.findFreed(ptr); ok {
		err := errPreviouslyFreed(ctx, ptr, freed)
		e.logEvent(EventError, ctx, freed, err, "")

		return err
	}

	rec, ok := e.index.findExact(ptr)
	if !ok {
		if owner, ok := e.index.findContaining(ptr, 1); ok {
			err := errMismatchedFree(ctx, ptr, owner)
			e.logEvent(EventError, ctx, owner, err, "")

			return err
		}

		err := errNotAllocated(ctx, ptr)
		e.logEvent(EventError, ctx, nil, err, "")

		return err
	}

	if !CompatibleRelease(rec.Kind, kind) {
		err := errIncompatibleRelease(ctx, kind, rec)
		e.logEvent(EventError, ctx, rec, err, "")

		return err
	}

	if !e.types.Compatible(rec.Base, kind == KindDeleteArray) {
		err := errIncompatibleRelease(ctx, kind, rec)
		e.logEvent(EventError, ctx, rec, err, "")

		return err
	}

	if e.cfg.FreeStop != 0 && rec.Ordinal == e.cfg.FreeStop {
		e.trap(stderrors.New(stderrors.CodeNotAllocated, "abort-at-free ordinal reached", ctxFields(ctx, rec)))
	}

	e.protect.unprotect()
	defer e.protect.reprotect()

	if kind == KindFreeScope {
		if entry, found := e.scope.removeByBlock(ptr); found {
			e.scopeSlots.Release(entry)
		}
	}

	oflow := e.guardOflowFor(rec.Kind)

	// FLG_NOFREE (§6, original_source/src/info.c:539,759): retain the
	// record in the index instead of releasing it, so a later operation
	// on the same pointer is still reported as "previously freed" rather
	// than "not allocated". FLG_PRESERVE gates only the free-byte fill.
	if e.cfg.Flags.NoFree {
		rec.Freed = true
		rec.Context = ctx

		if !e.cfg.Flags.Preserve {
			e.provider.FillBytes(rec.Base, e.guard.FreeByte, rec.Size)
		}
	} else {
		e.index.erase(rec.Base)
		e.recordSlots.Release(rec)
		e.types.Unregister(rec.Base)
		_ = e.provider.FreePages(rec.Base-oflow, rec.Size+2*oflow)
	}

	e.liveBytes -= uint64(rec.Size)
	e.liveCount--

	e.logEvent(EventLogFree, ctx, rec, nil, "")
	e.recorder.emit(Event{Kind: EventFreeCompleted, Context: ctx, Record: rec, Counters: e.snapshotCounters()})

	return nil
}

// rangeCheck implements the bulk-memory range check shared by
// set/copy/locate/compare (§4.7.4). It returns an error (possibly a
// warning-severity one depending on allow-overflow) if the range
// partially overlaps a live record's guard bytes; a range that lies
// entirely within a record, or entirely outside every record, is fine.
func (e *Engine) rangeCheck(p, n uintptr, ctx CallContext) error {
	if p == 0 {
		if n == 0 && !e.cfg.Flags.CheckMemory {
			return nil
		}

		return errNullOperation(ctx)
	}

	if !e.inCheckRange(p) {
		return nil
	}

	if _, ok := e.index.findContaining(p, n); ok {
		return nil
	}

	if rec, ok := e.index.findExact(p); ok {
		return errRangeOverflow(ctx, e.cfg.Flags.AllowOverflow, p, n, rec.Base, rec.Size)
	}

	if rec, ok := e.index.findContaining(p, 1); ok {
		return errRangeOverflow(ctx, e.cfg.Flags.AllowOverflow, p, n, rec.Base, rec.Size)
	}

	if rec, ok := e.index.findFreed(p); ok {
		return errFreedOperation(ctx, p, rec)
	}

	if rec, ok := e.index.findCeiling(p); ok && p+n > rec.Base {
		return errRangeOverflow(ctx, e.cfg.Flags.AllowOverflow, p, n, rec.Base, rec.Size)
	}

	return nil
}

// inCheckRange reports whether p falls within the configured check
// range (§6 MPATROL_CHECKRANGE). An unconfigured range (both bounds
// zero) checks every address; otherwise only addresses in
// [CheckRangeLower, CheckRangeUpper) are subject to rangeCheck at all,
// matching the original's ability to scope expensive bulk-memory
// checking down to one suspect region of the address space.
func (e *Engine) inCheckRange(p uintptr) bool {
	if e.cfg.CheckRangeLower == 0 && e.cfg.CheckRangeUpper == 0 {
		return true
	}

	return p >= e.cfg.CheckRangeLower && p < e.cfg.CheckRangeUpper
}

// SetMemory implements the `set-memory` bulk operation.
func (e *Engine) SetMemory(ptr uintptr, b byte, n uintptr, kind Kind, ctx CallContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unwindScope(ctx)

	if err := e.rangeCheck(ptr, n, ctx); err != nil {
		e.logEvent(EventError, ctx, nil, err, "")

		if stderrors.IsFatal(err) {
			return err
		}
	}

	e.provider.FillBytes(ptr, b, n)
	e.bytesSet += uint64(n)
	e.logEvent(EventLogMemSet, ctx, nil, nil, fmt.Sprintf("filled %d bytes with 0x%02x", n, b))

	return nil
}

// CopyMemory implements the `copy-memory` bulk operation.
func (e *Engine) CopyMemory(dst, src, n uintptr, kind Kind, ctx CallContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unwindScope(ctx)

	if err := e.rangeCheck(dst, n, ctx); err != nil && stderrors.IsFatal(err) {
		e.logEvent(EventError, ctx, nil, err, "")
		return err
	}

	if err := e.rangeCheck(src, n, ctx); err != nil && stderrors.IsFatal(err) {
		e.logEvent(EventError, ctx, nil, err, "")
		return err
	}

	if kind == KindCopyDisjoint && rangesOverlap(dst, src, n) {
		e.logEvent(EventWarning, ctx, nil, errRangeOverlap(ctx, dst, src, n), "")
	}

	e.provider.CopyBytes(dst, src, n)
	e.bytesCopied += uint64(n)
	e.logEvent(EventLogMemCopy, ctx, nil, nil, fmt.Sprintf("copied %d bytes", n))

	return nil
}

func rangesOverlap(a, b, n uintptr) bool {
	if a <= b {
		return b < a+n
	}

	return a < b+n
}

// LocateMemory implements the `locate-memory` bulk operation, scanning
// [base, base+n) for the first occurrence of b.
func (e *Engine) LocateMemory(base, n uintptr, b byte, ctx CallContext) (uintptr, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unwindScope(ctx)

	if err := e.rangeCheck(base, n, ctx); err != nil && stderrors.IsFatal(err) {
		e.logEvent(EventError, ctx, nil, err, "")
		return 0, false, err
	}

	off, mismatch := e.provider.ComparePattern(base, n, b)

	e.bytesLocated += uint64(n)
	e.logEvent(EventLogMemLocate, ctx, nil, nil, "")

	if n == 0 {
		return 0, false, nil
	}

	// ComparePattern reports the first byte that does NOT equal b, so
	// unless that first mismatch is at offset 0 the byte at base itself
	// equals b. Otherwise scan on from offset 1 one byte at a time with
	// the same primitive. This keeps LocateMemory built entirely on the
	// provider's bulk interface rather than reading memory directly.
	if !mismatch || off > 0 {
		return base, true, nil
	}

	for i := uintptr(1); i < n; i++ {
		if singleByteEquals(e.provider, base+i, b) {
			return base + i, true, nil
		}
	}

	return 0, false, nil
}

func singleByteEquals(p pageprovider.Provider, addr uintptr, b byte) bool {
	_, mismatch := p.ComparePattern(addr, 1, b)
	return !mismatch
}

// LocateString implements the string-scanning variant of §4.7.4's bulk
// range check: it walks forward from base looking for a terminating
// zero byte and fails with string-overflow if the scan would run past
// the end of the record containing base (or past maxLen, for a bounded
// scan such as strndup) before finding one. An address outside every
// record with maxLen 0 is scanned without a bound. It returns the
// string's length (excluding the terminator) on success.
func (e *Engine) LocateString(base, maxLen uintptr, ctx CallContext) (uintptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unwindScope(ctx)

	if base == 0 {
		err := errNullOperation(ctx)
		e.logEvent(EventError, ctx, nil, err, "")

		return 0, err
	}

	if !e.inCheckRange(base) {
		return 0, nil
	}

	rec, owned := e.index.findContaining(base, 1)

	limit := maxLen
	if owned {
		if avail := rec.Base + rec.Size - base; limit == 0 || avail < limit {
			limit = avail
		}
	}

	for i := uintptr(0); limit == 0 || i < limit; i++ {
		if singleByteEquals(e.provider, base+i, 0) {
			e.bytesLocated += i + 1
			e.logEvent(EventLogMemLocate, ctx, rec, nil, "")

			return i, nil
		}
	}

	err := errStringOverflow(ctx, base)
	e.logEvent(EventError, ctx, rec, err, "")

	return 0, err
}

// CompareMemory implements the `compare-memory` bulk operation.
func (e *Engine) CompareMemory(a, b, n uintptr, ctx CallContext) (uintptr, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unwindScope(ctx)

	if err := e.rangeCheck(a, n, ctx); err != nil && stderrors.IsFatal(err) {
		e.logEvent(EventError, ctx, nil, err, "")
		return 0, false, err
	}

	if err := e.rangeCheck(b, n, ctx); err != nil && stderrors.IsFatal(err) {
		e.logEvent(EventError, ctx, nil, err, "")
		return 0, false, err
	}

	e.bytesCompared += uint64(n)
	e.logEvent(EventLogMemCompare, ctx, nil, nil, "")

	for i := uintptr(0); i < n; i++ {
		if peekByte(e.provider, a+i) != peekByte(e.provider, b+i) {
			return i, true, nil
		}
	}

	return 0, false, nil
}

// FullHeapCheck implements §4.7.5: visits every index entry and verifies
// its guard pattern, trapping on the first corruption found and
// returning nil when none is found. A real
// integrity scan does not stop at the first error in the original, but
// this spec's "always fatal" handling for guard violations (§7) means
// the first violation found is sufficient to trigger the fatal path.
func (e *Engine) FullHeapCheck(ctx CallContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var corruption error

	e.index.each(func(r *Record) {
		if corruption != nil {
			return
		}

		if r.Freed {
			// FLG_PRESERVE (info.c:1023): skip the free-byte check when
			// the original contents were preserved instead of overwritten.
			if e.cfg.Flags.Preserve {
				return
			}

			if err := verifyFreedBody(e.provider, e.guard, r.Base, r.Size); err != nil {
				corruption = err
			}

			return
		}

		// FLG_OFLOWWATCH (info.c:1044): a watch area already traps
		// overflow writes as they happen, so the walk skips the
		// redundant guard-byte re-verification for this record.
		if e.cfg.Flags.OflowWatch {
			return
		}

		if err := guardVerify(e.provider, e.guard, r.Base, r.Size); err != nil {
			corruption = err
		}
	})

	if corruption != nil {
		code := stderrors.CodeFreedCorruption
		if ce, ok := corruption.(*CorruptionError); ok && ce.Kind == OverflowCorruption {
			code = stderrors.CodeAllocOverflowCorruption
		}

		e.trap(stderrors.New(code, corruption.Error(), ctxFields(ctx, nil)))
	}

	return nil
}

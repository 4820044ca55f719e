// Package symbols provides the concrete stack-walker and symbol-resolver
// collaborators (§6) backing the engine, built on runtime.Callers and
// runtime.CallersFrames. Grounded on the teacher's captureStackTrace and
// leak-report formatting (internal/allocator/allocator.go's
// captureStackTrace/FormatLeaks), which used the same pair of runtime
// calls to produce human-readable leak traces.
package symbols

import (
	"runtime"

	"github.com/orizon-lang/mpatrolgo/internal/engine"
)

// maxStackDepth bounds how many return addresses a single capture keeps;
// matches the depth the teacher's leak reporter used.
const maxStackDepth = 32

// Capture collects the calling goroutine's return addresses, skipping
// `skip` additional frames beyond Capture itself. Shim layers call this
// once per public entry to populate CallContext.Stack.
func Capture(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)

	return pcs[:n]
}

// runtimeWalker implements engine.StackWalker over an already-captured
// slice of return addresses (the engine never walks the stack itself;
// shims capture it and hand it in via CallContext.Stack).
type runtimeWalker struct{ addrs []uintptr }

// NewWalker wraps a previously captured address slice as a StackWalker.
func NewWalker(addrs []uintptr) engine.StackWalker {
	return &runtimeWalker{addrs: addrs}
}

type frameState struct{ idx int }

func (w *runtimeWalker) NewFrame() engine.FrameState { return &frameState{} }

func (w *runtimeWalker) NextFrame(s engine.FrameState) (uintptr, engine.FrameState, bool) {
	fs, ok := s.(*frameState)
	if !ok || fs.idx >= len(w.addrs) {
		return 0, s, false
	}

	addr := w.addrs[fs.idx]
	fs.idx++

	return addr, fs, true
}

// Resolver implements engine.SymbolResolver using runtime.CallersFrames.
type Resolver struct{}

// NewResolver constructs a Resolver. It holds no state; runtime symbol
// tables are process-global.
func NewResolver() *Resolver { return &Resolver{} }

// Resolve implements engine.SymbolResolver.
func (Resolver) Resolve(addr uintptr) (engine.SymbolInfo, bool) {
	frames := runtime.CallersFrames([]uintptr{addr})

	frame, _ := frames.Next()
	if frame.PC == 0 {
		return engine.SymbolInfo{}, false
	}

	return engine.SymbolInfo{
		Function: frame.Function,
		File:     frame.File,
		Line:     uint32(frame.Line),
	}, true
}

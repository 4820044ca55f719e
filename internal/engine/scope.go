package engine

// scopeStack records allocations whose lifetime is bounded by a calling
// stack frame, releasing them when the frame unwinds (§4.4). Entries form
// a stack in reverse frame order; unwind pops from the top, while
// explicit release searches by block pointer rather than assuming the
// top, since a caller may release scoped allocations out of order.
type scopeStack struct {
	entries []*ScopeEntry
	// below reports whether frame a is "further down the stack" (i.e. has
	// been superseded) than frame b, per the platform's stack-growth
	// direction. Injected so tests can exercise unwind without depending
	// on real stack addresses.
	below func(a, b uintptr) bool
}

func newScopeStack(below func(a, b uintptr) bool) *scopeStack {
	return &scopeStack{below: below}
}

// push records a new scope-bounded allocation at the top of the stack.
// e is a slot acquired from the engine's scope-record slot table; the
// engine releases it back to that table once it leaves the stack.
func (s *scopeStack) push(e *ScopeEntry) {
	s.entries = append(s.entries, e)
}

// removeByBlock finds and removes the entry for block, returning it and
// whether it was found. Used by explicit scope-release (§4.5).
func (s *scopeStack) removeByBlock(block uintptr) (*ScopeEntry, bool) {
	for i, e := range s.entries {
		if e.Block == block {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)

			return e, true
		}
	}

	return nil, false
}

// unwindTo pops every entry whose frame marker has been superseded by
// the current caller frame, in LIFO order, invoking release for each.
// Entries are compared against currentFrame using s.below; an entry is
// superseded when its frame lies below (has already unwound past)
// currentFrame.
func (s *scopeStack) unwindTo(currentFrame uintptr, release func(*ScopeEntry)) {
	for len(s.entries) > 0 {
		top := s.entries[len(s.entries)-1]
		if !s.below(top.FrameMarker, currentFrame) {
			break
		}

		s.entries = s.entries[:len(s.entries)-1]
		release(top)
	}
}

func (s *scopeStack) len() int { return len(s.entries) }

// defaultBelow implements the below predicate for the common
// downward-growing-stack convention (lower addresses are deeper frames,
// i.e. farther from the thread's entry point).
func defaultBelow(a, b uintptr) bool { return a < b }

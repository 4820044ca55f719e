package engine

import (
	"sync"

	"github.com/orizon-lang/mpatrolgo/internal/pageprovider"
)

// protectionManager brackets every mutating operation with
// unprotect/reprotect around the engine's own metadata (§4.5). Go's
// garbage collector cannot scan externally mmap'd pages, so the records
// and scope entries themselves stay on the Go heap (see SlotTable); this
// manager instead protects a set of shadow pages added by registerGrowth,
// modelling the same protect/unprotect discipline the C original applies
// to its metadata chunks directly. Nothing in the engine calls
// registerGrowth, so the shadow set stays empty and unprotect/reprotect
// only track the cached state and the recursion depth without calling
// Provider.ProtectPages. Nested calls are serialised by a recursion
// counter: only the outermost frame would toggle protection, matching
// invariant 8.
type protectionManager struct {
	mu        sync.Mutex
	provider  pageprovider.Provider
	shadows   []uintptr
	shadowLen uintptr
	current   pageprovider.Access
	depth     int
	noProtect bool
}

func newProtectionManager(p pageprovider.Provider, noProtect bool) *protectionManager {
	return &protectionManager{
		provider:  p,
		current:   pageprovider.ReadWrite,
		noProtect: noProtect,
	}
}

// registerGrowth allocates one more shadow page; the engine does not call
// it when a SlotTable grows. The shadow starts in whatever state the
// manager is currently in (read-write while an operation is in flight,
// read-only otherwise).
func (m *protectionManager) registerGrowth() {
	if m.noProtect {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sz := m.provider.PageSize()
	base, err := m.provider.AllocPages(sz, sz)
	if err != nil {
		return
	}

	m.shadowLen = sz
	m.shadows = append(m.shadows, base)

	if m.current != pageprovider.ReadWrite {
		_ = m.provider.ProtectPages(base, sz, m.current)
	}
}

// unprotect marks all metadata shadow pages read-write. Safe to call
// re-entrantly; only the outermost call touches the provider.
func (m *protectionManager) unprotect() {
	if m.noProtect {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.depth++
	if m.depth > 1 {
		return
	}

	if m.current == pageprovider.ReadWrite {
		return
	}

	for _, base := range m.shadows {
		_ = m.provider.ProtectPages(base, m.shadowLen, pageprovider.ReadWrite)
	}

	m.current = pageprovider.ReadWrite
}

// reprotect marks all metadata shadow pages read-only, once the
// outermost mutating call has finished.
func (m *protectionManager) reprotect() {
	if m.noProtect {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.depth--
	if m.depth > 0 {
		return
	}

	if m.current == pageprovider.ReadOnly {
		return
	}

	for _, base := range m.shadows {
		_ = m.provider.ProtectPages(base, m.shadowLen, pageprovider.ReadOnly)
	}

	m.current = pageprovider.ReadOnly
}

// depthCount returns the current recursion depth (0 outside any
// mutating call). Used by the engine to set Record.Internal and to
// suppress logging/fault-injection on inner frames (invariant 8).
func (m *protectionManager) depthCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.depth
}

// Package typeinfo tracks the static type each typed-new allocation was
// made with, so the engine can detect a mismatched release: a block made
// with array new released through scalar delete, or the reverse. The
// type name and size are recorded but not compared. Adapted from the teacher's
// SafeAllocator (internal/types/unsafe_allocator.go), which registered a
// reflect.Type per pointer purely for bounds-checking; here the registry
// is keyed by the same block-base address the engine's allocation index
// uses, and records just enough to compare at release time.
package typeinfo

import "sync"

// Binding records the static type a block was constructed with.
type Binding struct {
	TypeName string
	TypeSize uintptr
	IsArray  bool
}

// Registry maps a live typed-new block's base address to its Binding.
type Registry struct {
	mu       sync.RWMutex
	bindings map[uintptr]Binding
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[uintptr]Binding)}
}

// Register associates base with a type binding at allocation time.
func (r *Registry) Register(base uintptr, b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings[base] = b
}

// Unregister drops the binding for base, called once the block is
// actually reclaimed (not merely marked freed-and-retained).
func (r *Registry) Unregister(base uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bindings, base)
}

// Lookup returns the binding for base, if one is registered.
func (r *Registry) Lookup(base uintptr) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[base]

	return b, ok
}

// Compatible reports whether releasing base as releaseIsArray matches the
// binding it was registered with. A base with no binding (i.e. not a
// typed-new allocation) is always considered compatible; the engine's
// ordinary allocation-kind matrix handles those.
func (r *Registry) Compatible(base uintptr, releaseIsArray bool) bool {
	b, ok := r.Lookup(base)
	if !ok {
		return true
	}

	return b.IsArray == releaseIsArray
}

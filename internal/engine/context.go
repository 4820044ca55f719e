package engine

// CallContext is supplied by the shim layer with every public operation.
// Fields mirror §6 of the external-interfaces surface: the shim is
// responsible for populating as much as it can resolve cheaply; the
// engine tolerates zero values throughout.
type CallContext struct {
	Function string // calling function name, "" if unknown
	File     string // source file, "" if unknown
	Line     uint32 // source line, 0 if unknown

	Stack []uintptr // raw return addresses, most-recent first; may be empty

	ThreadID uint64

	// TypeName/TypeSize are populated only for typed-new kinds.
	TypeName string
	TypeSize uintptr

	// FrameMarker is an abstract stack-direction-comparable value used by
	// the scope stack to detect frame unwind; see Engine.pushScope.
	FrameMarker uintptr
}

// StackWalker produces an ordered sequence of return addresses for the
// calling context. It is an external collaborator (§6); the engine never
// constructs one itself.
type StackWalker interface {
	NewFrame() FrameState
	NextFrame(FrameState) (addr uintptr, state FrameState, ok bool)
}

// FrameState is an opaque stack-walk cursor.
type FrameState interface{}

// SymbolInfo is the resolved human-readable location of a return address.
type SymbolInfo struct {
	Function string
	File     string
	Line     uint32
}

// SymbolResolver maps a return address to its symbolic location. It is an
// external collaborator (§6).
type SymbolResolver interface {
	Resolve(addr uintptr) (SymbolInfo, bool)
}

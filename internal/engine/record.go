package engine

// Record is a per live or retained-freed allocation block. Fields follow
// §3's allocation-record data model; the guard region sizes are not
// stored per-record since oflow is a single engine-wide configuration
// value (§4.3).
type Record struct {
	Base uintptr
	Size uintptr // user-visible size; guards are not counted

	Kind        Kind
	ResizeCount uint32 // number of resizes survived

	Ordinal       uint64 // monotonic allocation ordinal, 1-based
	ResizeOrdinal uint64 // resize ordinal within this allocation

	ThreadID uint64
	Context  CallContext

	Freed    bool
	Profiled bool
	Traced   bool
	Internal bool
}

// userRange returns the half-open byte range occupied by the record's
// user-visible data.
func (r *Record) userRange() (lo, hi uintptr) {
	return r.Base, r.Base + r.Size
}

// contains reports whether [p, p+n) lies entirely within the record's
// user region.
func (r *Record) contains(p, n uintptr) bool {
	lo, hi := r.userRange()
	return p >= lo && p+n <= hi && p+n >= p
}

// ScopeEntry ties a block to the caller frame that bounds its lifetime.
// Scope entries form a stack in reverse frame order (§3, §4.4).
type ScopeEntry struct {
	Block       uintptr
	FrameMarker uintptr
}

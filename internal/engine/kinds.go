// Package engine implements the allocation-information engine: the
// subsystem that mediates every allocation, reallocation, and free,
// maintains the live-allocation index, enforces guard-byte and
// page-protection integrity, and drives trace/profile/log reporting.
package engine

// Kind tags which public entry produced or releases a block. The set is
// closed and ordered; values are stable so the name table below maps
// one-to-one onto them.
type Kind int

const (
	KindGeneral Kind = iota
	KindZeroed
	KindPageAligned
	KindPageRounded
	KindAligned
	KindStrdupBounded
	KindStrdupUnbounded
	KindScoped
	KindReallocPlain
	KindReallocZeroFill
	KindReallocInPlace
	KindNewScalar
	KindNewArray
	KindFreePlain
	KindFreeScope
	KindDeleteScalar
	KindDeleteArray
	KindSet
	KindZeroFill
	KindCopyDisjoint
	KindCopyOverlap
	KindCompare
	KindLocateByte
	KindLocateBlock

	kindCount
)

var kindNames = [kindCount]string{
	KindGeneral:         "malloc",
	KindZeroed:          "calloc",
	KindPageAligned:     "page-aligned",
	KindPageRounded:     "page-rounded",
	KindAligned:         "memalign",
	KindStrdupBounded:   "strndup",
	KindStrdupUnbounded: "strdup",
	KindScoped:          "alloca",
	KindReallocPlain:    "realloc",
	KindReallocZeroFill: "recalloc",
	KindReallocInPlace:  "realloc-in-place",
	KindNewScalar:       "new",
	KindNewArray:        "new[]",
	KindFreePlain:       "free",
	KindFreeScope:       "scope-release",
	KindDeleteScalar:    "delete",
	KindDeleteArray:     "delete[]",
	KindSet:             "memset",
	KindZeroFill:        "bzero",
	KindCopyDisjoint:    "memcpy",
	KindCopyOverlap:     "memmove",
	KindCompare:         "memcmp",
	KindLocateByte:      "memchr",
	KindLocateBlock:     "memmem",
}

// String returns the human-readable name for the kind, falling back to
// "unknown" for any out-of-range value (which should never occur for a
// kind originating from the shim layer).
func (k Kind) String() string {
	if k < 0 || int(k) >= int(kindCount) {
		return "unknown"
	}

	return kindNames[k]
}

// IsScopeBounded reports whether an allocation of this kind is tracked on
// the scope stack and auto-released when its frame unwinds.
func (k Kind) IsScopeBounded() bool { return k == KindScoped }

// IsZeroing reports whether the user region must be pre-filled with
// zero bytes rather than the alloc-byte pattern.
func (k Kind) IsZeroing() bool {
	return k == KindZeroed || k == KindReallocZeroFill
}

// IsPageKind reports whether the kind forces page alignment.
func (k Kind) IsPageKind() bool {
	return k == KindPageAligned || k == KindPageRounded
}

// CompatibleRelease reports whether releaseKind is a permitted way to
// release a block that was allocated with allocKind.
func CompatibleRelease(allocKind, releaseKind Kind) bool {
	switch allocKind {
	case KindScoped:
		return releaseKind == KindFreeScope
	case KindNewScalar:
		return releaseKind == KindDeleteScalar
	case KindNewArray:
		return releaseKind == KindDeleteArray
	default:
		return releaseKind == KindFreePlain
	}
}

// Resizable reports whether a record of this allocation kind may be
// passed to resize-memory at all.
func (k Kind) Resizable() bool {
	switch k {
	case KindScoped, KindNewScalar, KindNewArray:
		return false
	default:
		return true
	}
}

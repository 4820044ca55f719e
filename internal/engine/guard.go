package engine

import (
	"fmt"
	"unsafe"

	"github.com/orizon-lang/mpatrolgo/internal/pageprovider"
)

// GuardMode selects how the guard-fill engine detects overflow (§4.3).
type GuardMode int

const (
	// ByteGuardMode brackets each block with Oflow bytes of the overflow
	// pattern on each side.
	ByteGuardMode GuardMode = iota
	// PageGuardMode turns the byte brackets off. No guard pages are
	// mapped or marked no-access in this mode, so overflow is not
	// detected at all.
	PageGuardMode
)

// GuardConfig holds the three byte constants chosen at initialisation,
// plus the guard mode and the overflow-region width used in byte-guard
// mode. Grounded on the bump-pointer layout idiom of the teacher's arena
// allocator (arena.go), generalised here to bracket both sides of a block
// rather than only advancing a cursor.
type GuardConfig struct {
	AllocByte    byte
	FreeByte     byte
	OverflowByte byte
	Mode         GuardMode
	Oflow        uintptr // guard width in byte-guard mode
}

// DefaultGuardConfig matches mpatrol's historical defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		AllocByte:    0xAA,
		FreeByte:     0x55,
		OverflowByte: 0xD0,
		Mode:         ByteGuardMode,
		Oflow:        16,
	}
}

// CorruptionKind distinguishes guard-violation errors. The full-heap
// check raises OverflowCorruption and FreedCorruption; FreeCorruption is
// never produced, since the index holds no free-space records.
type CorruptionKind int

const (
	OverflowCorruption CorruptionKind = iota
	FreeCorruption
	FreedCorruption
)

func (c CorruptionKind) String() string {
	switch c {
	case OverflowCorruption:
		return "overflow-corruption"
	case FreeCorruption:
		return "free-corruption"
	case FreedCorruption:
		return "freed-corruption"
	default:
		return "unknown-corruption"
	}
}

// maxReportBytes is the amount of offending region the full-heap check
// includes in a corruption report (§4.3, §4.7.5).
const maxReportBytes = 256

// CorruptionError is raised when a guard pattern mismatch is found.
type CorruptionError struct {
	Kind    CorruptionKind
	Base    uintptr
	Offset  uintptr
	Context []byte
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%s at 0x%x+%d (%d bytes of context)", e.Kind, e.Base, e.Offset, len(e.Context))
}

// guardFill fills the overflow regions bracketing a user region of size n
// placed at base, in byte-guard mode. No-op in page-guard mode, which
// puts no other protection in place of the brackets.
func guardFill(p pageprovider.Provider, cfg GuardConfig, base, n uintptr) {
	if cfg.Mode != ByteGuardMode || cfg.Oflow == 0 {
		return
	}

	p.FillBytes(base-cfg.Oflow, cfg.OverflowByte, cfg.Oflow)
	p.FillBytes(base+n, cfg.OverflowByte, cfg.Oflow)
}

// guardVerify checks both overflow brackets of a byte-guard-mode block,
// returning a CorruptionError on the first mismatch found (front first,
// then tail).
func guardVerify(p pageprovider.Provider, cfg GuardConfig, base, n uintptr) error {
	if cfg.Mode != ByteGuardMode || cfg.Oflow == 0 {
		return nil
	}

	if off, mismatch := p.ComparePattern(base-cfg.Oflow, cfg.Oflow, cfg.OverflowByte); mismatch {
		return corruptionAt(p, OverflowCorruption, base-cfg.Oflow, off)
	}

	if off, mismatch := p.ComparePattern(base+n, cfg.Oflow, cfg.OverflowByte); mismatch {
		return corruptionAt(p, OverflowCorruption, base+n, off)
	}

	return nil
}

// verifyFreedBody checks that a retained-freed record's user region still
// carries the free-byte pattern (invariant 4, §8 scenario 1 family).
func verifyFreedBody(p pageprovider.Provider, cfg GuardConfig, base, n uintptr) error {
	if off, mismatch := p.ComparePattern(base, n, cfg.FreeByte); mismatch {
		return corruptionAt(p, FreedCorruption, base, off)
	}

	return nil
}

func corruptionAt(p pageprovider.Provider, kind CorruptionKind, regionBase, offset uintptr) error {
	n := uintptr(maxReportBytes)
	ctx := make([]byte, 0, n)

	// Best-effort context capture; a provider that refuses to read back
	// (e.g. a no-access page-guard region) still yields a valid, if
	// empty, report.
	func() {
		defer func() { recover() }()

		for i := uintptr(0); i < n; i++ {
			b := peekByte(p, regionBase+offset+i)
			ctx = append(ctx, b)
		}
	}()

	return &CorruptionError{Kind: kind, Base: regionBase, Offset: offset, Context: ctx}
}

// peekByte reads a single byte via the provider's bulk primitives.
func peekByte(p pageprovider.Provider, addr uintptr) byte {
	var b byte

	p.CopyBytes(uintptr(unsafe.Pointer(&b)), addr, 1)

	return b
}

//go:build linux || darwin || freebsd || netbsd || openbsd

package pageprovider

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapProvider is a Provider backed by anonymous mmap mappings, with real
// mprotect-enforced page protection. It is the production collaborator: the
// engine's protection manager relies on ProtectPages actually faulting on
// violation when page-guard mode is configured.
type MmapProvider struct {
	mu       sync.Mutex
	mappings map[uintptr][]byte // base -> backing slice, kept alive against the GC
	pageSize uintptr
}

// NewMmapProvider constructs a page provider backed by the OS virtual memory
// manager.
func NewMmapProvider() *MmapProvider {
	return &MmapProvider{
		mappings: make(map[uintptr][]byte),
		pageSize: uintptr(unix.Getpagesize()),
	}
}

func (p *MmapProvider) PageSize() uintptr { return p.pageSize }

// AllocPages maps size bytes (rounded up to whole pages) anonymously. The
// mapping is always page-aligned by construction; the alignment parameter is
// honored by over-mapping when it exceeds the page size and returning the
// first suitably aligned address inside the larger mapping.
func (p *MmapProvider) AllocPages(size, alignment uintptr) (uintptr, error) {
	if size == 0 {
		return 0, &ErrOutOfMemory{Size: size, Alignment: alignment, Cause: fmt.Errorf("zero size")}
	}

	mapSize := alignUp(size, p.pageSize)
	if alignment > p.pageSize {
		mapSize += alignment
	}

	region, err := unix.Mmap(-1, 0, int(mapSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, &ErrOutOfMemory{Size: size, Alignment: alignment, Cause: err}
	}

	base := uintptr(unsafe.Pointer(&region[0]))
	aligned := base

	if alignment > p.pageSize {
		aligned = alignUp(base, alignment)
	}

	p.mu.Lock()
	p.mappings[base] = region
	p.mu.Unlock()

	// Track under the alignment-adjusted address too so ProtectPages/
	// FreePages can be called with either the raw mmap base or the aligned
	// pointer handed to the caller.
	if aligned != base {
		p.mu.Lock()
		p.mappings[aligned] = region
		p.mu.Unlock()
	}

	return aligned, nil
}

func (p *MmapProvider) FreePages(base, size uintptr) error {
	p.mu.Lock()
	region, ok := p.mappings[base]
	if ok {
		delete(p.mappings, base)
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("pageprovider: unmap of unknown base 0x%x", base)
	}

	return unix.Munmap(region)
}

func (p *MmapProvider) ProtectPages(base, size uintptr, access Access) error {
	p.mu.Lock()
	region, ok := p.mappings[base]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("pageprovider: protect of unknown base 0x%x", base)
	}

	n := int(alignUp(size, p.pageSize))
	if n > len(region) {
		n = len(region)
	}

	var prot int

	switch access {
	case NoAccess:
		prot = unix.PROT_NONE
	case ReadOnly:
		prot = unix.PROT_READ
	case ReadWrite:
		prot = unix.PROT_READ | unix.PROT_WRITE
	default:
		return fmt.Errorf("pageprovider: unknown access mode %v", access)
	}

	return unix.Mprotect(region[:n], prot)
}

func (p *MmapProvider) ComparePattern(base, size uintptr, b byte) (uintptr, bool) {
	return comparePattern(base, size, b)
}

func (p *MmapProvider) CopyBytes(dst, src, n uintptr) { copyBytes(dst, src, n) }

func (p *MmapProvider) FillBytes(dst uintptr, b byte, n uintptr) { fillBytes(dst, b, n) }

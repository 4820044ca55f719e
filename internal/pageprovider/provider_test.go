package pageprovider

import (
	"testing"
)

func TestMmapProviderBasicAllocation(t *testing.T) {
	p := NewMmapProvider()

	t.Run("AllocAndFill", func(t *testing.T) {
		base, err := p.AllocPages(4096, 8)
		if err != nil {
			t.Fatalf("AllocPages failed: %v", err)
		}

		p.FillBytes(base, 0xAA, 4096)

		if off, mismatch := p.ComparePattern(base, 4096, 0xAA); mismatch {
			t.Fatalf("unexpected mismatch at offset %d", off)
		}

		if err := p.FreePages(base, 4096); err != nil {
			t.Fatalf("FreePages failed: %v", err)
		}
	})

	t.Run("CopyBytes", func(t *testing.T) {
		base, err := p.AllocPages(128, 8)
		if err != nil {
			t.Fatalf("AllocPages failed: %v", err)
		}
		defer p.FreePages(base, 128)

		p.FillBytes(base, 0x11, 64)
		p.CopyBytes(base+64, base, 64)

		if off, mismatch := p.ComparePattern(base+64, 64, 0x11); mismatch {
			t.Fatalf("copy mismatch at offset %d", off)
		}
	})

	t.Run("ComparePatternDetectsMismatch", func(t *testing.T) {
		base, err := p.AllocPages(32, 8)
		if err != nil {
			t.Fatalf("AllocPages failed: %v", err)
		}
		defer p.FreePages(base, 32)

		p.FillBytes(base, 0xFE, 32)
		p.FillBytes(base+16, 0x00, 1)

		off, mismatch := p.ComparePattern(base, 32, 0xFE)
		if !mismatch || off != 16 {
			t.Fatalf("expected mismatch at offset 16, got (%d, %v)", off, mismatch)
		}
	})
}

func TestMmapProviderProtectPages(t *testing.T) {
	p := NewMmapProvider()

	base, err := p.AllocPages(p.PageSize(), p.PageSize())
	if err != nil {
		t.Fatalf("AllocPages failed: %v", err)
	}
	defer p.FreePages(base, p.PageSize())

	if err := p.ProtectPages(base, p.PageSize(), ReadOnly); err != nil {
		t.Fatalf("ProtectPages(ReadOnly) failed: %v", err)
	}

	if err := p.ProtectPages(base, p.PageSize(), ReadWrite); err != nil {
		t.Fatalf("ProtectPages(ReadWrite) failed: %v", err)
	}
}

func TestMmapProviderUnknownBase(t *testing.T) {
	p := NewMmapProvider()

	if err := p.FreePages(0xdeadbeef, 4096); err == nil {
		t.Fatal("expected error freeing an unknown base")
	}

	if err := p.ProtectPages(0xdeadbeef, 4096, ReadOnly); err == nil {
		t.Fatal("expected error protecting an unknown base")
	}
}

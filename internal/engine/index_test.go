package engine

import "testing"

func TestIndexFindExactAndContaining(t *testing.T) {
	ix := newIndex()

	r1 := &Record{Base: 0x1000, Size: 16}
	r2 := &Record{Base: 0x2000, Size: 32}
	ix.insert(r1)
	ix.insert(r2)

	if got, ok := ix.findExact(0x2000); !ok || got != r2 {
		t.Fatalf("findExact(0x2000) = %v, %v", got, ok)
	}

	if _, ok := ix.findExact(0x3000); ok {
		t.Fatal("findExact(0x3000) should miss")
	}

	if got, ok := ix.findContaining(0x1004, 4); !ok || got != r1 {
		t.Fatalf("findContaining inside r1 = %v, %v", got, ok)
	}

	if _, ok := ix.findContaining(0x1004, 100); ok {
		t.Fatal("findContaining spanning past r1's end should miss")
	}
}

func TestIndexFindCeiling(t *testing.T) {
	ix := newIndex()

	r2 := &Record{Base: 0x2000, Size: 32}
	ix.insert(r2)

	got, ok := ix.findCeiling(0x1500)
	if !ok || got != r2 {
		t.Fatalf("findCeiling(0x1500) = %v, %v, want r2", got, ok)
	}

	if _, ok := ix.findCeiling(0x2001); ok {
		t.Fatal("findCeiling past every record should miss")
	}
}

func TestIndexEraseAndFindFreed(t *testing.T) {
	ix := newIndex()

	r := &Record{Base: 0x1000, Size: 16}
	ix.insert(r)

	if _, ok := ix.findFreed(0x1000); ok {
		t.Fatal("a live record must not be found by findFreed")
	}

	r.Freed = true

	if got, ok := ix.findFreed(0x1000); !ok || got != r {
		t.Fatal("findFreed should return the now-freed record")
	}

	ix.erase(0x1000)

	if ix.len() != 0 {
		t.Fatalf("len() = %d after erase, want 0", ix.len())
	}

	if _, ok := ix.findExact(0x1000); ok {
		t.Fatal("findExact should miss after erase")
	}
}

func TestIndexOrderedIteration(t *testing.T) {
	ix := newIndex()

	bases := []uintptr{0x3000, 0x1000, 0x2000}
	for _, b := range bases {
		ix.insert(&Record{Base: b, Size: 8})
	}

	var seen []uintptr

	ix.each(func(r *Record) { seen = append(seen, r.Base) })

	want := []uintptr{0x1000, 0x2000, 0x3000}
	if len(seen) != len(want) {
		t.Fatalf("len(seen) = %d, want %d", len(seen), len(want))
	}

	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen[%d] = 0x%x, want 0x%x", i, seen[i], want[i])
		}
	}
}

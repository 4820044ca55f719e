package engine

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/mpatrolgo/internal/config"
	"github.com/orizon-lang/mpatrolgo/internal/pageprovider"
)

// TestConcurrentAllocFreeSerializesOnEngineLock stresses §5's single
// logical critical section: many goroutines allocating and freeing
// concurrently must never corrupt the index or produce overlapping
// live records, because every public operation runs to completion under
// Engine.mu.
func TestConcurrentAllocFreeSerializesOnEngineLock(t *testing.T) {
	e := NewEngine(pageprovider.NewMmapProvider(), config.New())

	const goroutines = 16
	const rounds = 50

	g, _ := errgroup.WithContext(context.Background())

	for i := 0; i < goroutines; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < rounds; j++ {
				p, err := e.GetMemory(64, 8, KindGeneral, CallContext{ThreadID: uint64(i)})
				if err != nil {
					return err
				}

				if err := e.FreeMemory(p, KindFreePlain, CallContext{ThreadID: uint64(i)}); err != nil {
					return err
				}
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent alloc/free failed: %v", err)
	}

	if e.index.len() != 0 {
		t.Fatalf("index.len() = %d after all frees, want 0", e.index.len())
	}

	if e.allocOrdinal != goroutines*rounds {
		t.Fatalf("allocOrdinal = %d, want %d", e.allocOrdinal, goroutines*rounds)
	}
}

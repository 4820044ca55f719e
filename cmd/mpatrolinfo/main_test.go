package main

import (
	"testing"

	"github.com/orizon-lang/mpatrolgo/internal/config"
	"github.com/orizon-lang/mpatrolgo/internal/engine"
	"github.com/orizon-lang/mpatrolgo/internal/pageprovider"
)

func TestRunWorkloadLeavesRequestedLeaksAndPassesHeapCheck(t *testing.T) {
	e := engine.NewEngine(pageprovider.NewMmapProvider(), config.New())

	if err := runWorkload(e, 2); err != nil {
		t.Fatalf("runWorkload failed: %v", err)
	}

	leaks := e.CheckLeaks()
	if len(leaks) != 2 {
		t.Fatalf("len(leaks) = %d, want 2", len(leaks))
	}
}

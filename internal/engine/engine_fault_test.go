package engine

import (
	"testing"

	gomock "go.uber.org/mock/gomock"

	"github.com/orizon-lang/mpatrolgo/internal/config"
)

// TestGetMemoryOutOfMemory exercises §4.7.1 step 4: when the underlying
// provider refuses the mapping, get-memory must fail cleanly without
// inserting a record.
func TestGetMemoryOutOfMemory(t *testing.T) {
	ctrl := gomock.NewController(t)
	mp := NewMockProvider(ctrl)

	mp.EXPECT().PageSize().Return(uintptr(4096)).AnyTimes()
	mp.EXPECT().AllocPages(gomock.Any(), gomock.Any()).Return(uintptr(0), &mockAllocErr{})

	e := NewEngine(mp, config.New())

	_, err := e.GetMemory(64, 8, KindGeneral, CallContext{Function: "test"})
	if err == nil {
		t.Fatal("expected an out-of-memory error")
	}

	if e.index.len() != 0 {
		t.Fatalf("expected no record inserted, got %d", e.index.len())
	}
}

type mockAllocErr struct{}

func (*mockAllocErr) Error() string { return "mock: provider refused allocation" }

package config

import "testing"

func TestFromEnvironParsesMpatrolPrefixedVars(t *testing.T) {
	c := FromEnviron([]string{
		"MPATROL_LOGFILE=/tmp/mpatrol.log",
		"MPATROL_ALLOCSTOP=42",
		"MPATROL_CHECKRANGE=0x1000-0x2000",
		"MPATROL_ALLOWOVERFLOW=true",
		"MPATROL_CHECKALLOCS=0",
		"UNRELATED=ignored",
	})

	if c.LogPath != "/tmp/mpatrol.log" {
		t.Fatalf("LogPath = %q", c.LogPath)
	}

	if c.AllocStop != 42 {
		t.Fatalf("AllocStop = %d, want 42", c.AllocStop)
	}

	if c.CheckRangeLower != 0x1000 || c.CheckRangeUpper != 0x2000 {
		t.Fatalf("CheckRange = [0x%x, 0x%x)", c.CheckRangeLower, c.CheckRangeUpper)
	}

	if !c.Flags.AllowOverflow {
		t.Fatal("AllowOverflow should be true")
	}

	if c.Flags.CheckAllocs {
		t.Fatal("CheckAllocs should be overridden to false")
	}
}

func TestFromEnvironDefaultsWithoutOverrides(t *testing.T) {
	c := FromEnviron(nil)

	if c.Oflow != 16 {
		t.Fatalf("Oflow = %d, want default 16", c.Oflow)
	}

	if !c.Flags.CheckAllocs || !c.Flags.LogAllocs {
		t.Fatal("defaults should enable check/log allocs")
	}
}

func TestOptionsOverrideEnviron(t *testing.T) {
	c := New(WithAllocStop(7), WithOflow(32))

	if c.AllocStop != 7 {
		t.Fatalf("AllocStop = %d, want 7", c.AllocStop)
	}

	if c.Oflow != 32 {
		t.Fatalf("Oflow = %d, want 32", c.Oflow)
	}
}

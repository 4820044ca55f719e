// Package config parses and hot-reloads the engine's runtime
// configuration (§6 "Runtime configuration"). Values are sourced from
// MPATROL_-prefixed environment variables at startup, matching the
// original library's MP_-prefixed surface, with an optional JSON
// override file that a Watcher re-reads whenever fsnotify reports a change.
//
// The functional-options constructor shape is grounded on the teacher's
// allocator.Config/Option pair (internal/allocator/allocator.go); the
// JSON file loading on its CLI Config/LoadConfig/SaveConfig
// (internal/cli/common.go).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Flags bundles the boolean switches of §6 into one value.
type Flags struct {
	CheckAllocs   bool
	CheckReallocs bool
	CheckFrees    bool
	CheckMemory   bool
	LogAllocs     bool
	LogReallocs   bool
	LogFrees      bool
	LogMemory     bool
	ShowFree      bool
	ShowFreed     bool
	ShowUnfreed   bool
	ShowMap       bool
	ShowSymbols   bool
	AllowOverflow bool
	SafeSignals   bool
	NoProtect     bool
	// NoFree retains every freed/resized-away record in the index
	// instead of releasing it, so a later operation on the same pointer
	// is reported as previously-freed rather than not-allocated (§6).
	NoFree     bool
	PageAlloc  bool
	AllocUpper bool
	// Preserve, when a record is retained under NoFree, skips
	// overwriting its bytes with the free byte and skips the
	// full-heap-check's free-byte verification for it (§6).
	Preserve bool
	// OflowWatch skips the full-heap-check's guard-byte re-verification
	// for live records, since a watch area already traps overflow
	// writes as they happen (§6).
	OflowWatch bool
}

// Config is the engine's runtime configuration (§6).
type Config struct {
	LogPath string

	ByteLimit uint64

	AllocStop   uint64 // 0 = unset
	ReallocStop uint64
	FreeStop    uint64

	UnfreedAbortMin uint64

	CheckRangeLower uintptr
	CheckRangeUpper uintptr

	CheckFrequency uint64

	FaultFrequency uint64
	FaultSeed      int64

	Oflow uint64

	Flags Flags

	// ProfilePath/TracePath are "" to disable the respective sink.
	ProfilePath string
	TracePath   string
}

// Option customises a Config built by New.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Oflow: 16,
		Flags: Flags{
			CheckAllocs: true,
			CheckFrees:  true,
			LogAllocs:   true,
			LogFrees:    true,
			ShowUnfreed: true,
		},
	}
}

func WithLogPath(path string) Option { return func(c *Config) { c.LogPath = path } }

func WithByteLimit(n uint64) Option { return func(c *Config) { c.ByteLimit = n } }

func WithAllocStop(n uint64) Option { return func(c *Config) { c.AllocStop = n } }

func WithReallocStop(n uint64) Option { return func(c *Config) { c.ReallocStop = n } }

func WithFreeStop(n uint64) Option { return func(c *Config) { c.FreeStop = n } }

func WithFaultInjection(freq uint64, seed int64) Option {
	return func(c *Config) { c.FaultFrequency = freq; c.FaultSeed = seed }
}

func WithOflow(n uint64) Option { return func(c *Config) { c.Oflow = n } }

func WithFlags(f Flags) Option { return func(c *Config) { c.Flags = f } }

func WithTracePath(path string) Option { return func(c *Config) { c.TracePath = path } }

func WithProfilePath(path string) Option { return func(c *Config) { c.ProfilePath = path } }

// New builds a Config starting from the environment (FromEnviron), then
// applies opts on top so callers (tests, the demo CLI) can override
// individual fields without hand-building the whole struct.
func New(opts ...Option) *Config {
	c := FromEnviron(os.Environ())

	for _, opt := range opts {
		opt(c)
	}

	return c
}

const envPrefix = "MPATROL_"

// FromEnviron parses MPATROL_-prefixed entries out of environ (the
// os.Environ() format, "KEY=VALUE"), falling back to defaultConfig for
// anything absent or unparsable. Unparsable values are ignored rather
// than treated as fatal: a malformed environment should degrade to
// defaults, not prevent the host program from starting.
func FromEnviron(environ []string) *Config {
	c := defaultConfig()
	vars := make(map[string]string)

	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, envPrefix) {
			continue
		}

		vars[strings.TrimPrefix(k, envPrefix)] = v
	}

	c.LogPath = vars["LOGFILE"]
	c.TracePath = vars["TRACEFILE"]
	c.ProfilePath = vars["PROFILEFILE"]

	setUint(vars, "LIMIT", &c.ByteLimit)
	setUint(vars, "ALLOCSTOP", &c.AllocStop)
	setUint(vars, "REALLOCSTOP", &c.ReallocStop)
	setUint(vars, "FREESTOP", &c.FreeStop)
	setUint(vars, "UNFREEDABORT", &c.UnfreedAbortMin)
	setUint(vars, "CHECKFREQUENCY", &c.CheckFrequency)
	setUint(vars, "FAULTFREQUENCY", &c.FaultFrequency)
	setUint(vars, "OFLOW", &c.Oflow)

	if s, ok := vars["FAULTSEED"]; ok {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			c.FaultSeed = n
		}
	}

	if s, ok := vars["CHECKRANGE"]; ok {
		if lo, hi, ok := parseRange(s); ok {
			c.CheckRangeLower, c.CheckRangeUpper = lo, hi
		}
	}

	setFlag(vars, "CHECKALLOCS", &c.Flags.CheckAllocs)
	setFlag(vars, "CHECKREALLOCS", &c.Flags.CheckReallocs)
	setFlag(vars, "CHECKFREES", &c.Flags.CheckFrees)
	setFlag(vars, "CHECKMEMORY", &c.Flags.CheckMemory)
	setFlag(vars, "LOGALLOCS", &c.Flags.LogAllocs)
	setFlag(vars, "LOGREALLOCS", &c.Flags.LogReallocs)
	setFlag(vars, "LOGFREES", &c.Flags.LogFrees)
	setFlag(vars, "LOGMEMORY", &c.Flags.LogMemory)
	setFlag(vars, "SHOWFREE", &c.Flags.ShowFree)
	setFlag(vars, "SHOWFREED", &c.Flags.ShowFreed)
	setFlag(vars, "SHOWUNFREED", &c.Flags.ShowUnfreed)
	setFlag(vars, "SHOWMAP", &c.Flags.ShowMap)
	setFlag(vars, "SHOWSYMBOLS", &c.Flags.ShowSymbols)
	setFlag(vars, "ALLOWOVERFLOW", &c.Flags.AllowOverflow)
	setFlag(vars, "SAFESIGNALS", &c.Flags.SafeSignals)
	setFlag(vars, "NOPROTECT", &c.Flags.NoProtect)
	setFlag(vars, "NOFREE", &c.Flags.NoFree)
	setFlag(vars, "PAGEALLOC", &c.Flags.PageAlloc)
	setFlag(vars, "ALLOCUPPER", &c.Flags.AllocUpper)
	setFlag(vars, "PRESERVE", &c.Flags.Preserve)
	setFlag(vars, "OFLOWWATCH", &c.Flags.OflowWatch)

	return c
}

func setUint(vars map[string]string, key string, dst *uint64) {
	s, ok := vars[key]
	if !ok {
		return
	}

	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		*dst = n
	}
}

func setFlag(vars map[string]string, key string, dst *bool) {
	s, ok := vars[key]
	if !ok {
		return
	}

	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func parseRange(s string) (lo, hi uintptr, ok bool) {
	a, b, found := strings.Cut(s, "-")
	if !found {
		return 0, 0, false
	}

	loN, err1 := strconv.ParseUint(strings.TrimSpace(a), 0, 64)
	hiN, err2 := strconv.ParseUint(strings.TrimSpace(b), 0, 64)

	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return uintptr(loN), uintptr(hiN), true
}

// LoadOverrideFile merges a JSON override file on top of c, matching the
// teacher's CLI Config JSON-marshal convention. A missing file is not an
// error: override files are optional by design.
func LoadOverrideFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("config: read override %q: %w", path, err)
	}

	var override Config
	if err := json.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("config: parse override %q: %w", path, err)
	}

	mergeNonZero(c, &override)

	return nil
}

// mergeNonZero copies the non-zero-valued fields of override into c;
// UnfreedAbortMin and the check range are not merged.
// Flags are merged wholesale if any flag differs from its zero value,
// since Flags has no natural "unset" sentinel per-field.
func mergeNonZero(c, override *Config) {
	if override.LogPath != "" {
		c.LogPath = override.LogPath
	}

	if override.TracePath != "" {
		c.TracePath = override.TracePath
	}

	if override.ProfilePath != "" {
		c.ProfilePath = override.ProfilePath
	}

	if override.ByteLimit != 0 {
		c.ByteLimit = override.ByteLimit
	}

	if override.AllocStop != 0 {
		c.AllocStop = override.AllocStop
	}

	if override.ReallocStop != 0 {
		c.ReallocStop = override.ReallocStop
	}

	if override.FreeStop != 0 {
		c.FreeStop = override.FreeStop
	}

	if override.CheckFrequency != 0 {
		c.CheckFrequency = override.CheckFrequency
	}

	if override.FaultFrequency != 0 {
		c.FaultFrequency = override.FaultFrequency
	}

	if override.FaultSeed != 0 {
		c.FaultSeed = override.FaultSeed
	}

	if override.Oflow != 0 {
		c.Oflow = override.Oflow
	}

	if override.Flags != (Flags{}) {
		c.Flags = override.Flags
	}
}

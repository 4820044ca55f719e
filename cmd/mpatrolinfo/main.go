// Command mpatrolinfo is a small demo shim driving the allocation
// information engine end to end: it wires a real mmap-backed page
// provider, the configured sinks, and a symbol resolver together, runs a
// synthetic allocation workload, and prints the shutdown summary.
// Grounded on the teacher's orizon-profile flag layout
// (cmd/orizon-profile/main.go) and its cli.PrintVersion/ExitWithError
// conventions (internal/cli/common.go).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/orizon-lang/mpatrolgo/internal/cli"
	"github.com/orizon-lang/mpatrolgo/internal/config"
	"github.com/orizon-lang/mpatrolgo/internal/engine"
	"github.com/orizon-lang/mpatrolgo/internal/pageprovider"
	"github.com/orizon-lang/mpatrolgo/internal/sink"
	"github.com/orizon-lang/mpatrolgo/internal/symbols"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		jsonOutput  = flag.Bool("json", false, "output version in JSON format")
		logPath     = flag.String("logfile", "", "text log path (default: stderr)")
		tracePath   = flag.String("tracefile", "", "binary trace path (disabled if empty)")
		profilePath = flag.String("profilefile", "", "JSON call-site profile path (disabled if empty)")
		leakCount   = flag.Int("leak", 0, "number of allocations to deliberately leave unfreed")
		verbose     = flag.Bool("verbose", false, "verbose logging")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Drives the allocation-information engine through a small synthetic workload.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		cli.PrintVersion("mpatrolinfo", *jsonOutput)
		os.Exit(0)
	}

	logger := cli.NewLogger(*verbose, *verbose)

	if err := run(*logPath, *tracePath, *profilePath, *leakCount, logger); err != nil {
		cli.ExitWithError("%v", err)
	}
}

func run(logPath, tracePath, profilePath string, leakCount int, logger *cli.Logger) error {
	textLog, err := sink.NewTextLog(logPath)
	if err != nil {
		return fmt.Errorf("open text log: %w", err)
	}

	var traceSink engine.Sink

	if tracePath != "" {
		tr, err := sink.NewTrace(tracePath)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}

		traceSink = tr
	}

	var profileSink engine.Sink

	if profilePath != "" {
		profileSink = sink.NewProfile(profilePath)
	}

	cfg := config.New()
	resolver := symbols.NewResolver()

	e := engine.NewEngine(
		pageprovider.NewMmapProvider(),
		cfg,
		engine.WithSinks(textLog, traceSink, profileSink),
		engine.WithSymbols(nil, resolver),
	)

	logger.Info("engine constructed, running workload")

	if err := runWorkload(e, leakCount); err != nil {
		return fmt.Errorf("workload: %w", err)
	}

	summary := e.Shutdown()

	fmt.Printf("allocations: %d\n", summary.TotalAllocations)
	fmt.Printf("peak live bytes: %d\n", summary.PeakLiveBytes)
	fmt.Printf("peak live count: %d\n", summary.PeakLiveCount)
	fmt.Print(engine.FormatLeaks(summary.Leaks))

	return nil
}

// runWorkload exercises all eight public operations against one engine:
// a batch of general-purpose allocations, a resize, a scoped allocation
// released with an explicit scope-release, a bulk set/copy/locate/compare pass, and a
// final full-heap check. leakCount allocations are deliberately left
// live so the shutdown summary has something to report.
func runWorkload(e *engine.Engine, leakCount int) error {
	ctx := engine.CallContext{Function: "runWorkload", File: "main.go", Line: 1}

	ptrs := make([]uintptr, 0, 8)

	for i := 0; i < 8; i++ {
		p, err := e.GetMemory(64, 8, engine.KindGeneral, ctx)
		if err != nil {
			return err
		}

		ptrs = append(ptrs, p)
	}

	grown, err := e.ResizeMemory(ptrs[0], 256, 8, engine.KindReallocPlain, ctx)
	if err != nil {
		return err
	}

	ptrs[0] = grown

	scoped, err := e.GetMemory(32, 8, engine.KindScoped, engine.CallContext{Function: "runWorkload", FrameMarker: 1})
	if err != nil {
		return err
	}

	if err := e.SetMemory(scoped, 0x7E, 32, engine.KindSet, ctx); err != nil {
		return err
	}

	dup, err := e.GetMemory(32, 8, engine.KindGeneral, ctx)
	if err != nil {
		return err
	}

	if err := e.CopyMemory(dup, scoped, 32, engine.KindCopyDisjoint, ctx); err != nil {
		return err
	}

	if _, found, err := e.LocateMemory(dup, 32, 0x7E, ctx); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("expected to locate the byte just copied")
	}

	if _, mismatch, err := e.CompareMemory(scoped, dup, 32, ctx); err != nil {
		return err
	} else if mismatch {
		return fmt.Errorf("scoped and dup regions should compare equal")
	}

	if err := e.FreeMemory(scoped, engine.KindFreeScope, ctx); err != nil {
		return err
	}

	if err := e.FreeMemory(dup, engine.KindFreePlain, ctx); err != nil {
		return err
	}

	if leakCount > len(ptrs) {
		leakCount = len(ptrs)
	}

	for i := leakCount; i < len(ptrs); i++ {
		if err := e.FreeMemory(ptrs[i], engine.KindFreePlain, ctx); err != nil {
			return err
		}
	}

	return e.FullHeapCheck(ctx)
}

// Package runner selects, seeds, times and reports the registered
// tests: it owns the per-test catch-frame for the assertion-failure
// signal, the CLI surface, the sentinel-then-final XML report, and the
// console summary.
package runner

import (
	"fmt"
	"hash/maphash"
	"io"
	"math/rand/v2"
	"time"

	"github.com/arcana-nexus/nexus/internal/assertbus"
	"github.com/arcana-nexus/nexus/internal/debugconsole"
	"github.com/arcana-nexus/nexus/internal/mctdriver"
	"github.com/arcana-nexus/nexus/internal/registry"
	"github.com/arcana-nexus/nexus/internal/trace"
	"github.com/arcana-nexus/nexus/internal/tracecodec"
)

// Runner selects, seeds, and executes the tests and apps registered in
// Registry, reporting to Out/ErrOut and, if configured, an XML file.
type Runner struct {
	Registry *registry.Registry
	Out      io.Writer
	ErrOut   io.Writer
}

// New returns a Runner bound to reg, writing normal output to out and
// failure/warning output to errOut.
func New(reg *registry.Registry, out, errOut io.Writer) *Runner {
	return &Runner{Registry: reg, Out: out, ErrOut: errOut}
}

// Run executes the full selection/execution/reporting cycle and returns
// the process exit code: 0 when every selected test matched its
// expectation (including "no tests selected", with a warning), 1
// otherwise.
func (r *Runner) Run(cfg Config) int {
	if cfg.PrintHelp {
		PrintUsage(r.Out)

		return 0
	}

	runConfig, err := LoadRunConfig(cfg.ConfigPath)
	if err != nil {
		fmt.Fprintln(r.ErrOut, "error:", err)

		return 1
	}

	// Apps win over tests: naming one on the command line makes this an
	// app invocation, not a test run.
	if matched := matchingApps(r.Registry.AllApps(), cfg.Names); len(matched) > 0 {
		for _, app := range matched {
			app.Body(cfg.Names)
		}

		return 0
	}

	// The sentinel goes out before any test runs; if the process dies
	// mid-suite, the fake failing report is the evidence left behind.
	if cfg.XMLOutputPath != "" {
		if err := WriteSentinel(cfg.XMLOutputPath); err != nil {
			fmt.Fprintln(r.ErrOut, "error: writing sentinel xml:", err)

			return 1
		}
	}

	runSeed := newRunSeed()
	toRun, disabled := selectTests(r.Registry.AllTests(), cfg.Names, runConfig)

	cases := make([]TestCase, 0, len(toRun)+len(disabled))
	for _, test := range disabled {
		cases = append(cases, TestCase{Name: test.Name, File: test.SourceFile, Line: test.SourceLine, Disabled: true})
	}

	allPassed := true

	for _, test := range toRun {
		r.runOne(test, cfg, runConfig, runSeed)
		cases = append(cases, r.reportFor(test))

		if test.Outcome.DidFail != test.ShouldFail {
			allPassed = false
		}
	}

	if cfg.XMLOutputPath != "" {
		suite := Suite{Name: "nexus", Timestamp: time.Now(), Cases: cases}
		if err := WriteReport(cfg.XMLOutputPath, suite); err != nil {
			fmt.Fprintln(r.ErrOut, "error: writing xml report:", err)

			return 1
		}
	}

	if len(toRun) == 0 {
		fmt.Fprintln(r.ErrOut, "warning: no tests selected")

		return 0
	}

	if !allPassed {
		return 1
	}

	return 0
}

func matchingApps(apps []*registry.App, names []string) []*registry.App {
	if len(names) == 0 {
		return nil
	}

	var out []*registry.App

	for _, app := range apps {
		if containsName(names, app.Name) {
			out = append(out, app)
		}
	}

	return out
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}

	return false
}

// selectTests partitions all into the set to run and the set to report
// as skipped. An explicit name list (if non-empty) takes precedence
// over Disabled/opt-in-group filtering, letting a caller force-run a
// disabled test by naming it directly.
func selectTests(all []*registry.Test, names []string, cfg RunConfig) (toRun, disabled []*registry.Test) {
	explicit := len(names) > 0

	configDisabled := cfg.disabledSet()

	optedIn := make(map[string]bool, len(cfg.OptInGroups))
	for _, g := range cfg.OptInGroups {
		optedIn[g] = true
	}

	for _, t := range all {
		switch {
		case explicit:
			if containsName(names, t.Name) {
				toRun = append(toRun, t)
			}
		case t.Disabled || configDisabled[t.Name]:
			disabled = append(disabled, t)
		case len(t.OptInGroups) > 0 && !anyOptedIn(t.OptInGroups, optedIn):
			disabled = append(disabled, t)
		default:
			toRun = append(toRun, t)
		}
	}

	return toRun, disabled
}

func anyOptedIn(groups []string, optedIn map[string]bool) bool {
	for _, g := range groups {
		if optedIn[g] {
			return true
		}
	}

	return false
}

// newRunSeed hashes the wall clock into the suite-wide default seed.
// This is the only place randomness comes from the clock; every
// downstream sample (per test, per fuzz iteration) derives from a seed
// instead, so a printed seed is always enough to reproduce a run.
func newRunSeed() uint64 {
	var h maphash.Hash

	h.SetSeed(maphash.MakeSeed())
	fmt.Fprintf(&h, "%d", time.Now().UnixNano())

	return h.Sum64()
}

// runOne seeds, configures, executes, and times a single test.
func (r *Runner) runOne(test *registry.Test, cfg Config, runConfig RunConfig, runSeed uint64) {
	if !test.SeedOverwritten {
		if override, ok := runConfig.SeedOverrides[test.Name]; ok {
			test.Seed = uint64(override)
		} else {
			test.Seed = runSeed
		}
	}

	if cfg.ForceEndless {
		test.Endless = true
	}

	if cfg.ForceReproduction != "" {
		test.Reproduction = parseReproduction(cfg.ForceReproduction)
	}

	bus := assertbus.New()
	bus.Silenced = test.ShouldFail
	// In debug and reproduction runs every failed check is fatal, so the
	// unwind reaches the debugger at the first divergence instead of
	// tallying on.
	bus.AlwaysTerminate = test.Debug || test.Reproduction != nil
	bus.SetLogSink(func(file string, line int, message string) {
		fmt.Fprintf(r.ErrOut, "%s:%d: %s\n", file, line, message)
	})

	handle := &registry.Handle{
		Test: test,
		Args: cfg.Names,
		Bus:  bus,
		Rand: rand.New(rand.NewPCG(test.Seed, test.Seed^0x2545f4914f6cdd1d)),
	}

	start := time.Now()
	test.Outcome.ExecutionTimestamp = start.Unix()

	// Debug and reproduction runs are deliberately NOT wrapped in the
	// per-test catch-frame, so a raised failure unwinds past Run
	// entirely (to a debugger, or in debug mode, after a console
	// pause). Every other test is caught here so a single failure never
	// aborts the rest of the suite.
	switch {
	case test.Debug:
		r.runUnderDebugConsole(test, handle)
	case test.Reproduction != nil:
		test.Body(handle)
	default:
		_, _ = assertbus.Catch(func() { test.Body(handle) })
	}

	test.Outcome.ExecutionSeconds = time.Since(start).Seconds()
	test.Outcome.DidFail = bus.DidFail()
	test.Outcome.NumChecks = bus.NumChecks
	test.Outcome.NumFailedChecks = bus.NumFailedChecks

	if first := bus.FirstFailure(); first != nil {
		test.Outcome.FirstFailFile = first.File
		test.Outcome.FirstFailLine = first.Line
		test.Outcome.FirstFailMessage = first.Message
	}

	if test.Outcome.DidFail && test.Outcome.ReproduceString == "" {
		test.Outcome.ReproduceString = mctReproduceString(test)
	}
}

// runUnderDebugConsole catches the failure just long enough to drop
// into the console, then re-raises it so it still propagates out of Run
// for a debugger to trap.
func (r *Runner) runUnderDebugConsole(test *registry.Test, handle *registry.Handle) {
	reason, failed := assertbus.Catch(func() { test.Body(handle) })
	if !failed {
		return
	}

	debugconsole.Run(r.Out, debugconsole.Trace{
		TestName:        test.Name,
		FailureMessage:  reason,
		ReproduceString: mctReproduceString(test),
		OpSummaries:     opSummaries(test),
	})

	assertbus.Raise(reason)
}

// mctReproduceString encodes the failing machine trace, shrunk as far
// as deterministic replay allows, into the reproduction string printed
// alongside the failure. Non-machine tests have no owning driver and
// yield "".
func mctReproduceString(test *registry.Test) string {
	driver, ok := test.MCTOwner().(*mctdriver.Driver)
	if !ok {
		return ""
	}

	tr := driver.LastTrace()
	if minimized, shrunk := driver.MinimizedFailingTrace(test.Seed); shrunk {
		tr = minimized
	}

	encoded, err := tracecodec.Encode(trace.Flatten(tr))
	if err != nil {
		return ""
	}

	return encoded
}

func opSummaries(test *registry.Test) []string {
	driver, ok := test.MCTOwner().(*mctdriver.Driver)
	if !ok {
		return nil
	}

	descs := driver.Descriptors()
	tr := driver.LastTrace()

	out := make([]string, 0, len(tr.Ops))

	for _, op := range tr.Ops {
		name := "?"
		if op.FunctionIndex >= 0 && op.FunctionIndex < len(descs) {
			name = descs[op.FunctionIndex].Name
		}

		if op.ReturnValueIdx < 0 {
			out = append(out, fmt.Sprintf("%s(%v)", name, op.ArgIndices))
		} else {
			out = append(out, fmt.Sprintf("%s(%v) -> slot %d", name, op.ArgIndices, op.ReturnValueIdx))
		}
	}

	return out
}

func (r *Runner) reportFor(test *registry.Test) TestCase {
	tc := TestCase{
		Name:       test.Name,
		Assertions: test.Outcome.NumChecks,
		Seconds:    test.Outcome.ExecutionSeconds,
		File:       test.SourceFile,
		Line:       test.SourceLine,
	}

	if test.Outcome.DidFail == test.ShouldFail {
		return tc
	}

	tc.Failed = true

	if test.Outcome.DidFail {
		tc.FailureMessage = test.Outcome.FirstFailMessage
		tc.FailureBody = fmt.Sprintf("%s:%d: %s", test.Outcome.FirstFailFile, test.Outcome.FirstFailLine, test.Outcome.FirstFailMessage)

		fmt.Fprintf(r.ErrOut, "FAIL %s (seed=%d)", test.Name, test.Seed)

		if test.Outcome.ReproduceString != "" {
			fmt.Fprintf(r.ErrOut, " repr=%s", test.Outcome.ReproduceString)
		}

		fmt.Fprintln(r.ErrOut)
	} else {
		tc.FailureMessage = "test was marked should-fail but passed"
		tc.FailureBody = tc.FailureMessage

		fmt.Fprintf(r.ErrOut, "FAIL %s: marked should-fail but passed (seed=%d)\n", test.Name, test.Seed)
	}

	return tc
}

// parseReproduction classifies a --repr value as a numeric seed only
// when every byte is a decimal digit: the trace codec's alphabet also
// starts with digits, so a prefix-matching parse would misclassify a
// trace string like "5A2" as the seed 5.
func parseReproduction(s string) *registry.Reproduction {
	if seed, ok := parseDecimal(s); ok {
		return &registry.Reproduction{Kind: registry.ReproductionSeed, Seed: seed}
	}

	return &registry.Reproduction{Kind: registry.ReproductionTrace, Trace: s}
}

func parseDecimal(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}

	var v uint64

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}

		v = v*10 + uint64(c-'0')
	}

	return v, true
}

package nexus

import (
	"fmt"
	"os"
	"runtime"

	"github.com/arcana-nexus/nexus/internal/registry"
	"github.com/arcana-nexus/nexus/internal/runner"
)

// T is the handle a registered test body receives. It wraps
// internal/registry.Handle with the public Check/Require surface
// (check.go).
type T struct {
	handle *registry.Handle
}

// Args returns the residual argv forwarded to this test, if any.
func (t *T) Args() []string { return t.handle.Args }

func callerLoc(skip int) (file string, line int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "<unknown>", 0
	}

	return file, line
}

// Test registers a test case under name, recording the caller's file
// and line as the test's source location. Options configure the
// registered Test before any run ever sees it. Call Test from an init
// func so every registration lands before main invokes Run.
func Test(name string, body func(t *T), opts ...TestOption) *registry.Test {
	file, line := callerLoc(2)

	test := &registry.Test{
		Name:       name,
		SourceFile: file,
		SourceLine: line,
	}

	test.Body = func(h *registry.Handle) {
		body(&T{handle: h})
	}

	for _, opt := range opts {
		opt(test)
	}

	return registry.Default.RegisterTest(test)
}

// TestOption configures a registered Test at registration time.
type TestOption func(*registry.Test)

// ShouldFail marks the test as expected to fail: the Runner reports a
// problem only if it does NOT fail, and its failure output starts
// silenced (the failures are wanted, logging them would be noise).
func ShouldFail() TestOption {
	return func(t *registry.Test) { t.ShouldFail = true }
}

// Disabled marks the test as skipped unless explicitly named on the
// command line.
func Disabled() TestOption {
	return func(t *registry.Test) { t.Disabled = true }
}

// Debug marks the test to run outside the Runner's catch-frame, with a
// console offered on failure (internal/debugconsole).
func Debug() TestOption {
	return func(t *registry.Test) { t.Debug = true }
}

// Seed fixes the test's RNG seed instead of letting the Runner assign
// `run_seed`.
func Seed(seed uint64) TestOption {
	return func(t *registry.Test) {
		t.Seed = seed
		t.SeedOverwritten = true
	}
}

// OptInGroup adds name to this test's opt-in groups: the test is only
// selected by default when a run config opts into one of its groups, or
// when it is named explicitly.
func OptInGroup(name string) TestOption {
	return func(t *registry.Test) { t.OptInGroups = append(t.OptInGroups, name) }
}

// Before records that this test should run before any test whose name
// matches pattern. The Runner otherwise preserves registration order;
// this and After are recorded for reporting and ordering collaborators.
func Before(pattern string) TestOption {
	return func(t *registry.Test) { t.Before = append(t.Before, pattern) }
}

// After records that this test should run after any test whose name
// matches pattern.
func After(pattern string) TestOption {
	return func(t *registry.Test) { t.After = append(t.After, pattern) }
}

// Exclusive marks the test as not safe to run concurrently with others.
// The Runner is always sequential, so this is recorded for reporting
// only.
func Exclusive() TestOption {
	return func(t *registry.Test) { t.Exclusive = true }
}

// Endless marks a Fuzz test to never stop on its iteration/duration
// budget; equivalent to passing --endless on the command line, but
// scoped to this one test.
func Endless() TestOption {
	return func(t *registry.Test) { t.Endless = true }
}

// Verbose requests extra Runner output while this test runs.
func Verbose() TestOption {
	return func(t *registry.Test) { t.Verbose = true }
}

// ReproduceSeed forces this test to replay under a fixed fuzz seed
// instead of sampling a fresh one each run, skipping the budgeted loop.
func ReproduceSeed(seed uint64) TestOption {
	return func(t *registry.Test) {
		t.Reproduction = &registry.Reproduction{Kind: registry.ReproductionSeed, Seed: seed}
	}
}

// ReproduceTrace forces this test's MachineTest to replay a previously
// recorded trace string instead of sampling.
func ReproduceTrace(trace string) TestOption {
	return func(t *registry.Test) {
		t.Reproduction = &registry.Reproduction{Kind: registry.ReproductionTrace, Trace: trace}
	}
}

// App registers an alternative entry point selected by name instead of
// run as a test.
func App(name string, body func(args []string)) *registry.App {
	file, line := callerLoc(2)

	return registry.Default.RegisterApp(&registry.App{
		Name:       name,
		SourceFile: file,
		SourceLine: line,
		Body:       body,
	})
}

// Run parses args and drives every registered test/app to completion,
// returning the process exit code. Typical usage is
// `os.Exit(nexus.Run(os.Args[1:]))` from main.
func Run(args []string) int {
	cfg, err := runner.ParseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		runner.PrintUsage(os.Stderr)

		return 1
	}

	return runner.New(registry.Default, os.Stdout, os.Stderr).Run(cfg)
}

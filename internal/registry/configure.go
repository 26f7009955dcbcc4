package registry

// Option configures a *Test between registration and run.
type Option func(*Test)

// Before marks that this test should run before any test whose name
// matches pattern.
func Before(pattern string) Option {
	return func(t *Test) { t.Before = append(t.Before, pattern) }
}

// After marks that this test should run after any test whose name
// matches pattern.
func After(pattern string) Option {
	return func(t *Test) { t.After = append(t.After, pattern) }
}

// Exclusive marks the test as not run concurrently with any other test.
// Nexus runs sequentially regardless, so this is recorded for reporting
// purposes only.
func Exclusive() Option {
	return func(t *Test) { t.Exclusive = true }
}

// ShouldFail marks that this test is expected to fail; the Runner
// inverts its pass/fail verdict when summarizing.
func ShouldFail() Option {
	return func(t *Test) { t.ShouldFail = true }
}

// Endless marks a fuzz test to never stop on an iteration/cycle budget.
func Endless() Option {
	return func(t *Test) { t.Endless = true }
}

// Disabled marks the test as not selected unless explicitly named.
func Disabled() Option {
	return func(t *Test) { t.Disabled = true }
}

// Debug marks the test to run without the Runner's catch-frame, letting
// an assertion failure propagate to a debugger (or to this package's own
// process, uncaught).
func Debug() Option {
	return func(t *Test) { t.Debug = true }
}

// Verbose requests extra Runner output for this test.
func Verbose() Option {
	return func(t *Test) { t.Verbose = true }
}

// Seed overrides the test's randomly-assigned seed.
func Seed(seed uint64) Option {
	return func(t *Test) {
		t.Seed = seed
		t.SeedOverwritten = true
	}
}

// ReproduceSeed forces a fuzz-style numeric reproduction.
func ReproduceSeed(seed uint64) Option {
	return func(t *Test) {
		t.Reproduction = &Reproduction{Kind: ReproductionSeed, Seed: seed}
	}
}

// ReproduceTrace forces an MCT trace replay from an encoded string.
func ReproduceTrace(trace string) Option {
	return func(t *Test) {
		t.Reproduction = &Reproduction{Kind: ReproductionTrace, Trace: trace}
	}
}

// OptInGroup adds this test to a named opt-in group; it is only
// selected by default when the run configuration's opt_in_groups lists
// that group, or when the test is named explicitly.
func OptInGroup(name string) Option {
	return func(t *Test) { t.OptInGroups = append(t.OptInGroups, name) }
}

// Configure applies a list of options to a test in order.
func Configure(t *Test, opts ...Option) {
	for _, opt := range opts {
		opt(t)
	}
}

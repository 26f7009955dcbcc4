// Package registry holds the process-wide, append-only collections of
// registered tests and apps. Registration happens at package-init time
// in the caller's binary; the registry is read-only for the remainder
// of the process once the Runner starts.
package registry

import (
	"math/rand/v2"
	"sync"

	"github.com/arcana-nexus/nexus/internal/assertbus"
)

// ReproductionKind selects how a Test should be replayed: not at all, a
// plain fuzz seed, or an encoded machine trace.
type ReproductionKind int

const (
	// ReproductionNone means the test runs normally (no forced replay).
	ReproductionNone ReproductionKind = iota
	// ReproductionSeed forces a fuzz-style numeric seed.
	ReproductionSeed
	// ReproductionTrace forces an MCT trace replay from an encoded string.
	ReproductionTrace
)

// Reproduction is the optional `reproduction` field of a Test.
type Reproduction struct {
	Kind  ReproductionKind
	Seed  uint64
	Trace string
}

// Outcome is the observed result of running a Test, recorded by the
// Runner after the test body returns.
type Outcome struct {
	DidFail            bool
	NumChecks          int
	NumFailedChecks    int
	FirstFailFile      string
	FirstFailLine      int
	FirstFailMessage   string
	ExecutionTimestamp int64 // unix seconds, UTC
	ExecutionSeconds   float64
	ReproduceString    string
}

// Test is the identity + configuration + outcome of one registered test
// case.
type Test struct {
	Name       string
	SourceFile string
	SourceLine int
	Body       func(t *Handle)

	Exclusive       bool
	ShouldFail      bool
	Endless         bool
	Disabled        bool
	Debug           bool
	Verbose         bool
	SeedOverwritten bool

	Seed         uint64
	Reproduction *Reproduction

	Before []string
	After  []string

	OptInGroups []string

	Outcome Outcome

	// mctOwner is set by the MCT package when the test body instantiates
	// a machine-based test driver. It lets the Runner print a
	// reproduction trace on failure.
	mctOwner any
}

// SetMCTOwner records the owning MCT driver for this test, if any.
func (t *Test) SetMCTOwner(owner any) { t.mctOwner = owner }

// MCTOwner returns the owning MCT driver, or nil.
func (t *Test) MCTOwner() any { return t.mctOwner }

// App is an alternative entry point selected by name instead of run as
// a test. Apps carry no assertion bookkeeping.
type App struct {
	Name       string
	SourceFile string
	SourceLine int
	Body       func(args []string)
}

// Handle is what a registered test body receives. It is intentionally
// minimal here; package nexus wraps it with the public Check/Require API.
// Bus and Rand are filled in by the Runner immediately before invoking
// the test body and are valid only for the duration of that call.
type Handle struct {
	Test *Test
	Args []string
	Bus  *assertbus.Bus
	Rand *rand.Rand
}

// Registry is an append-only, read-after-write collection of tests and
// apps. The zero value is ready to use. A single package-level instance
// (Default) is what package nexus's Test()/App() constructors write to.
type Registry struct {
	mu    sync.Mutex
	tests []*Test
	apps  []*App
}

// Default is the process-wide registry populated by init()-time
// registration. All writes happen before main calls Run; after that it
// is only read.
var Default = &Registry{}

// RegisterTest appends a new Test and returns a stable pointer to it.
func (r *Registry) RegisterTest(test *Test) *Test {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tests = append(r.tests, test)

	return test
}

// RegisterApp appends a new App and returns a stable pointer to it.
func (r *Registry) RegisterApp(app *App) *App {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.apps = append(r.apps, app)

	return app
}

// AllTests returns the tests in registration order. The caller must not
// mutate the returned slice's backing array structure (it is safe to
// mutate the *Test values themselves, as the Runner does).
func (r *Registry) AllTests() []*Test {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Test, len(r.tests))
	copy(out, r.tests)

	return out
}

// AllApps returns the apps in registration order.
func (r *Registry) AllApps() []*App {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*App, len(r.apps))
	copy(out, r.apps)

	return out
}

// Package mctdriver drives machine-based tests: it wires function
// descriptors, the value pool and the machine scheduler together,
// records a reproduction trace as the machine(s) run, and exposes both
// normal mode (one machine) and equivalence mode (two paired machines)
// behind a single surface that the root nexus package re-exports. After
// a failing run it can shrink the recorded trace to a minimal failing
// reproduction.
package mctdriver

import (
	"fmt"
	"math/rand/v2"
	"reflect"

	"github.com/arcana-nexus/nexus/internal/assertbus"
	"github.com/arcana-nexus/nexus/internal/fndesc"
	"github.com/arcana-nexus/nexus/internal/machine"
	"github.com/arcana-nexus/nexus/internal/registry"
	"github.com/arcana-nexus/nexus/internal/trace"
	"github.com/arcana-nexus/nexus/internal/tracecodec"
	"github.com/arcana-nexus/nexus/internal/valuepool"
)

// EquivalenceSpec declares that values of TypeA and TypeB are believed
// observationally equal. Test compares one paired value from each side
// after every step that produced or mutated one.
type EquivalenceSpec struct {
	TypeA reflect.Type
	TypeB reflect.Type
	Test  func(a, b valuepool.Value) bool
}

// Driver owns the registered operations for one machine-based test,
// builds the machine(s) it drives, and records the trace produced by a
// run.
type Driver struct {
	Bus *assertbus.Bus

	// Test, if set, lets Execute notice a configured trace reproduction
	// and replay it deterministically instead of sampling.
	Test *registry.Test

	// Types resolves per-type equality and representative strings for
	// non-bridge paired comparisons. New binds it to the process-wide
	// registry; unit tests may swap in their own.
	Types *valuepool.Registry

	descs        []*fndesc.Descriptor
	equivalences []EquivalenceSpec
	seeds        []any

	lastTrace trace.Trace
}

// New returns an empty Driver bound to bus, owned by test (test may be
// nil outside of the Runner, e.g. in unit tests of this package).
func New(bus *assertbus.Bus, test *registry.Test) *Driver {
	return &Driver{Bus: bus, Test: test, Types: valuepool.Default}
}

// AddOp registers a user operation.
func (d *Driver) AddOp(name string, fn any) *fndesc.Descriptor {
	desc := fndesc.New(name, fn)
	d.descs = append(d.descs, desc)

	return desc
}

// AddInvariant registers an invariant, auto-run after any write to a
// value of one of its argument types.
func (d *Driver) AddInvariant(name string, fn any) *fndesc.Descriptor {
	desc := fndesc.New(name, fn).MarkInvariant()
	d.descs = append(d.descs, desc)

	return desc
}

// TestEquivalence registers an equivalence declaration between typeA
// and typeB.
func (d *Driver) TestEquivalence(typeA, typeB reflect.Type, test func(a, b valuepool.Value) bool) {
	d.equivalences = append(d.equivalences, EquivalenceSpec{TypeA: typeA, TypeB: typeB, Test: test})
}

// AddValue seeds the pool with a literal value of v's dynamic type: a
// type that only ever appears as a seed, never as a generator's return
// type, is still a legal argument type as long as at least one value
// was seeded for it before Execute.
func (d *Driver) AddValue(v any) {
	d.seeds = append(d.seeds, v)
}

// boxedSeeds returns a fresh boxing of every seed value, so each
// machine (in equivalence mode, both the A and B machine) gets its own
// independently-mutable copy instead of sharing one pointer.
func (d *Driver) boxedSeeds() []valuepool.Value {
	out := make([]valuepool.Value, len(d.seeds))
	for i, v := range d.seeds {
		out[i] = fndesc.Box(v)
	}

	return out
}

// LastTrace returns the trace recorded by the most recent Execute call.
func (d *Driver) LastTrace() trace.Trace { return d.lastTrace }

// Descriptors returns every registered descriptor, in registration
// order.
func (d *Driver) Descriptors() []*fndesc.Descriptor { return d.descs }

// Equivalences returns every registered equivalence declaration, in
// registration order.
func (d *Driver) Equivalences() []EquivalenceSpec { return d.equivalences }

// Execute runs this Driver's machine(s) to completion under rng,
// dispatching to normal or equivalence mode depending on whether any
// equivalence declaration was registered. A configured trace
// reproduction on the owning Test short-circuits both: the trace is
// decoded and replayed instead of sampling.
func (d *Driver) Execute(rng *rand.Rand) error {
	if d.Test != nil && d.Test.Reproduction != nil && d.Test.Reproduction.Kind == registry.ReproductionTrace {
		return d.executeReproduction(rng)
	}

	if len(d.equivalences) == 0 {
		return d.executeNormal(rng)
	}

	return d.executeEquivalence(rng)
}

// replayPlan resolves how a trace with the given equivalence index is
// replayed: the descriptor list its function indices refer to, and a
// replay closure. Normal-mode traces replay over every registered
// descriptor; equivalence-mode traces replay both paired machines in
// lockstep, so a replayed run re-applies the same per-step comparisons
// the recording run did.
func (d *Driver) replayPlan(equivalenceIndex int) ([]*fndesc.Descriptor, func(rng *rand.Rand, tr trace.Trace) error, error) {
	if equivalenceIndex < 0 {
		replay := func(rng *rand.Rand, tr trace.Trace) error {
			return Replay(d.descs, d.Bus, rng, tr, d.boxedSeeds()...)
		}

		return d.descs, replay, nil
	}

	if equivalenceIndex >= len(d.equivalences) {
		return nil, nil, fmt.Errorf("mctdriver: trace references equivalence declaration %d, only %d registered", equivalenceIndex, len(d.equivalences))
	}

	spec := d.equivalences[equivalenceIndex]

	pf, err := partitionForSpec(d.descs, spec)
	if err != nil {
		return nil, nil, err
	}

	descsA := append(append([]*fndesc.Descriptor{}, pf.unrelated...), pf.pairsA...)
	descsB := append(append([]*fndesc.Descriptor{}, pf.unrelated...), pf.pairsB...)

	replay := func(rng *rand.Rand, tr trace.Trace) error {
		return replayPaired(descsA, descsB, spec, d.Types, d.Bus, rng, tr, d.boxedSeeds(), d.boxedSeeds())
	}

	return descsA, replay, nil
}

// executeReproduction decodes the owning Test's configured reproduction
// trace and replays it deterministically.
func (d *Driver) executeReproduction(rng *rand.Rand) error {
	flat, err := tracecodec.Decode(d.Test.Reproduction.Trace)
	if err != nil {
		return fmt.Errorf("mctdriver: invalid reproduction trace: %w", err)
	}

	tr := trace.Unflatten(flat)
	d.lastTrace = tr

	_, replay, err := d.replayPlan(tr.EquivalenceIndex)
	if err != nil {
		return err
	}

	return replay(rng, tr)
}

// executeNormal builds a single machine over every registered
// descriptor and runs it, recording every executed op into a trace with
// equivalence index -1.
func (d *Driver) executeNormal(rng *rand.Rand) error {
	m, err := machine.Build(d.descs, d.Bus, d.boxedSeeds()...)
	if err != nil {
		return fmt.Errorf("mctdriver: %w", err)
	}

	tr := trace.Trace{EquivalenceIndex: -1}

	m.Recorder = func(functionIndex int, argIndices []int, returnValueIdx int) {
		tr.Ops = append(tr.Ops, trace.Op{FunctionIndex: functionIndex, ArgIndices: append([]int(nil), argIndices...), ReturnValueIdx: returnValueIdx})
	}

	runErr := m.Run(rng)
	d.lastTrace = tr

	return runErr
}

// MinimizedFailingTrace shrinks the most recent run's trace to a
// smaller one that still fails on deterministic replay, returning it
// and true. It returns the unshrunk trace and false when the last trace
// is empty or its replay does not reproduce a failure (a replayed
// failure means the assertion signal was raised; an invalid trace
// counts as not failing).
//
// While minimizing, the driver's bus is temporarily silenced and
// escalated so every replayed check failure raises immediately instead
// of tallying; the caller must therefore only invoke this after the
// run's counters have been recorded.
func (d *Driver) MinimizedFailingTrace(seed uint64) (trace.Trace, bool) {
	tr := d.lastTrace
	if len(tr.Ops) == 0 {
		return tr, false
	}

	replayDescs, replay, err := d.replayPlan(tr.EquivalenceIndex)
	if err != nil {
		return tr, false
	}

	savedTerminate, savedSilenced := d.Bus.AlwaysTerminate, d.Bus.Silenced
	d.Bus.AlwaysTerminate, d.Bus.Silenced = true, true

	defer func() {
		d.Bus.AlwaysTerminate, d.Bus.Silenced = savedTerminate, savedSilenced
	}()

	isFailing := func(candidate trace.Trace) bool {
		rng := rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d))

		_, failed := assertbus.Catch(func() {
			// A replay error (invalid trace) without a raised signal is
			// simply "not failing"; the minimizer discards the proposal.
			_ = replay(rng, candidate)
		})

		return failed
	}

	if !isFailing(tr) {
		return tr, false
	}

	return trace.Minimize(replayDescs, tr, int64(seed), trace.DefaultProposals, isFailing), true
}

// Replay deterministically re-executes tr against a freshly rebuilt
// machine, skipping the machine's normal sampling loop entirely. It is
// used both for configured trace reproductions and as the minimizer's
// failure probe.
func Replay(descs []*fndesc.Descriptor, bus *assertbus.Bus, rng *rand.Rand, tr trace.Trace, seeds ...valuepool.Value) error {
	m, err := machine.Build(descs, bus, seeds...)
	if err != nil {
		return fmt.Errorf("mctdriver: replay: %w", err)
	}

	for _, op := range tr.Ops {
		if op.FunctionIndex < 0 || op.FunctionIndex >= len(descs) {
			return fmt.Errorf("mctdriver: replay: function index %d out of range", op.FunctionIndex)
		}

		f := descs[op.FunctionIndex]

		args, argErr := m.ReplayArgs(f, op.ArgIndices)
		if argErr != nil {
			return fmt.Errorf("mctdriver: replay: invalid trace: %w", argErr)
		}

		if _, execErr := m.ReplayExecute(rng, f, args, op.ReturnValueIdx); execErr != nil {
			return fmt.Errorf("mctdriver: replay: invalid trace: %w", execErr)
		}
	}

	return nil
}

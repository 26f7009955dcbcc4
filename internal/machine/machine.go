// Package machine implements the scheduler at the heart of a
// machine-based test: it classifies a set of Function Descriptors into
// generators, safe generators, mutators and invariants over a shared
// valuepool.Pool, then repeatedly samples and executes test functions
// until every one has reached its minimum execution count.
package machine

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"strings"

	"github.com/arcana-nexus/nexus/internal/assertbus"
	"github.com/arcana-nexus/nexus/internal/fndesc"
	"github.com/arcana-nexus/nexus/internal/valuepool"
)

// Machine is one scheduler run over one Pool. AllFunctions is the full
// descriptor list (invariants included) in internal-index order;
// testFunctions is the shrinking subset still short of its minimum
// execution count.
type Machine struct {
	Pool         *valuepool.Pool
	AllFunctions []*fndesc.Descriptor
	MaxArity     int

	operations    []*fndesc.Descriptor // non-invariant functions, stable
	testFunctions []*fndesc.Descriptor
	bus           *assertbus.Bus

	// Recorder, if set, is invoked after every successful test-function
	// execution with its InternalIndex, the pool slot each argument was
	// sampled from, and the slot its (possibly void, -1) result was
	// written to. internal/mctdriver sets this to build a reproduction
	// trace. Invariant executions are never recorded.
	Recorder func(functionIndex int, argIndices []int, returnValueIdx int)
}

// Build classifies descs into the Machine's value sets: invariants are
// registered under every argument type; every non-invariant function
// with a non-void return becomes a generator of its return type (a safe
// generator when the return type appears in none of its argument types)
// and a mutator of every type it takes by pointer; every non-invariant
// function becomes a test function.
//
// Build fails if any argument type across all of descs has no safe
// generator and no seed value, or if there are no test functions at
// all. seeds, if given, pre-populate the pool before that safety check
// runs, so a literal value registered via MachineTest.AddValue can
// stand in for a missing safe generator.
func Build(descs []*fndesc.Descriptor, bus *assertbus.Bus, seeds ...valuepool.Value) (*Machine, error) {
	pool := valuepool.NewPool()
	m := &Machine{Pool: pool, AllFunctions: descs, bus: bus}

	for _, v := range seeds {
		vs := pool.Set(v.Type)
		vs.Vars = append(vs.Vars, v)
	}

	for i, f := range descs {
		f.Executions = 0
		f.InternalIndex = i

		if f.Arity() > m.MaxArity {
			m.MaxArity = f.Arity()
		}

		for _, at := range f.ArgTypes {
			pool.Set(at) // ensure a ValueSet exists even with zero generators so far
		}
	}

	for _, f := range descs {
		if f.IsInvariant {
			for _, at := range f.ArgTypes {
				vs := pool.Set(at)
				vs.Invariants = append(vs.Invariants, f)
			}

			continue
		}

		registered := map[reflect.Type]bool{}

		if f.ReturnType != valuepool.Void {
			vs := pool.Set(f.ReturnType)
			vs.Generators = append(vs.Generators, f)
			vs.MutatorsOrGenerators = append(vs.MutatorsOrGenerators, f)
			registered[f.ReturnType] = true

			isSafe := true

			for _, at := range f.ArgTypes {
				if at == f.ReturnType {
					isSafe = false

					break
				}
			}

			if isSafe {
				vs.SafeGenerators = append(vs.SafeGenerators, f)
			}
		}

		for i, at := range f.ArgTypes {
			if f.ArgIsMutable[i] && !registered[at] {
				vs := pool.Set(at)
				vs.MutatorsOrGenerators = append(vs.MutatorsOrGenerators, f)
				registered[at] = true
			}
		}

		m.operations = append(m.operations, f)
		m.testFunctions = append(m.testFunctions, f)
	}

	for _, f := range descs {
		for _, at := range f.ArgTypes {
			vs, _ := pool.Lookup(at)
			if !vs.CanSafelyGenerate() && !vs.HasValues() {
				return nil, fmt.Errorf("machine: no way to generate type %s (needed by %q)", at, f.Name)
			}
		}
	}

	if len(m.testFunctions) == 0 {
		return nil, fmt.Errorf("machine: no functions to test")
	}

	return m, nil
}

// CanExecute reports whether every argument type of f currently holds at
// least one value.
func (m *Machine) CanExecute(f *fndesc.Descriptor) bool {
	for _, at := range f.ArgTypes {
		vs, ok := m.Pool.Lookup(at)
		if !ok || !vs.HasValues() {
			return false
		}
	}

	return true
}

// Remaining reports how many test functions still need executions.
func (m *Machine) Remaining() int {
	return len(m.testFunctions)
}

func choice[T any](rng *rand.Rand, s []T) T {
	return s[rng.IntN(len(s))]
}

func choiceIdx[T any](rng *rand.Rand, s []T) (T, int) {
	i := rng.IntN(len(s))

	return s[i], i
}

// SampleFunction picks a test function uniformly and, if it cannot yet
// execute (some argument type is still empty), repeatedly pivots to a
// random safe generator of a missing argument type until it finds one
// that can run, bounded at ~500 tries. Exported so the equivalence
// driver can pick f_a here and look up its pair at the same internal
// index in the second machine.
func (m *Machine) SampleFunction(rng *rand.Rand) (*fndesc.Descriptor, error) {
	f := choice(rng, m.testFunctions)

	maxTries := 500

	for !m.CanExecute(f) {
		for {
			at := choice(rng, f.ArgTypes)

			vs, _ := m.Pool.Lookup(at)
			if !vs.HasValues() {
				if !vs.CanSafelyGenerate() {
					return nil, fmt.Errorf("machine: unable to generate values of type %s", at)
				}

				f = choice(rng, vs.SafeGenerators).(*fndesc.Descriptor)

				break
			}
		}

		maxTries--
		if maxTries < 0 {
			return nil, fmt.Errorf("machine: unable to generate values of type %s", f.ReturnType)
		}
	}

	return f, nil
}

// SampleArgs picks one uniformly-random pool slot per argument position
// of f, returning both the values and the slot indices they came from.
func (m *Machine) SampleArgs(rng *rand.Rand, f *fndesc.Descriptor) ([]valuepool.Value, []int) {
	args := make([]valuepool.Value, 0, len(f.ArgTypes))
	argIndices := make([]int, 0, len(f.ArgTypes))

	for _, at := range f.ArgTypes {
		vs, _ := m.Pool.Lookup(at)
		v, idx := choiceIdx(rng, vs.Vars)
		args = append(args, v)
		argIndices = append(argIndices, idx)
	}

	return args, argIndices
}

// SampleArgsSatisfying samples argument sets for f until one passes its
// precondition, giving up after 10 tries. Without a precondition the
// first sample always wins.
func (m *Machine) SampleArgsSatisfying(rng *rand.Rand, f *fndesc.Descriptor) ([]valuepool.Value, []int, bool) {
	if !f.HasPrecondition() {
		args, argIndices := m.SampleArgs(rng, f)

		return args, argIndices, true
	}

	for try := 0; try < 10; try++ {
		args, argIndices := m.SampleArgs(rng, f)
		if f.CheckPrecondition(args) {
			return args, argIndices, true
		}
	}

	return nil, nil, false
}

// SampleFallback picks an alternative operation after argument sampling
// failed to satisfy f's precondition: with equal probability either a
// random mutator-or-generator of one of f's argument types, or a random
// operation anywhere in the machine. Executing the fallback both
// populates fresh values and perturbs existing ones, improving the odds
// that f's precondition becomes satisfiable later.
func (m *Machine) SampleFallback(rng *rand.Rand, f *fndesc.Descriptor) *fndesc.Descriptor {
	if len(f.ArgTypes) > 0 && rng.IntN(2) == 0 {
		at := choice(rng, f.ArgTypes)
		if vs, ok := m.Pool.Lookup(at); ok && len(vs.MutatorsOrGenerators) > 0 {
			return choice(rng, vs.MutatorsOrGenerators).(*fndesc.Descriptor)
		}
	}

	if len(m.operations) == 0 {
		return nil
	}

	return choice(rng, m.operations)
}

// ExecuteAndIntegrate runs f with args, increments its execution count,
// runs every invariant triggered by a mutated argument or the (possibly
// void) return value, integrates a non-void return value back into the
// pool, and prunes any function that has reached its minimum execution
// count from the test-function set. It returns the return value's pool
// slot, or -1 for a void return.
func (m *Machine) ExecuteAndIntegrate(rng *rand.Rand, f *fndesc.Descriptor, args []valuepool.Value) int {
	result := f.Execute(args)
	f.Executions++

	for i, at := range f.ArgTypes {
		if f.ArgIsMutable[i] {
			m.runInvariantsFor(rng, at, args[i])
		}
	}

	returnValueIdx := -1

	if !result.IsVoid() {
		m.runInvariantsFor(rng, result.Type, result)
		returnValueIdx = m.integrate(rng, result)
	}

	m.pruneTestFunctions()

	return returnValueIdx
}

func (m *Machine) pruneTestFunctions() {
	for i := len(m.testFunctions) - 1; i >= 0; i-- {
		if m.testFunctions[i].Executions >= m.testFunctions[i].MinExecutions {
			m.testFunctions[i] = m.testFunctions[len(m.testFunctions)-1]
			m.testFunctions = m.testFunctions[:len(m.testFunctions)-1]
		}
	}
}

// starvationError lists the functions still waiting on executions when
// the run gave up, so the failure message names the stuck preconditions.
func (m *Machine) starvationError() error {
	names := make([]string, 0, len(m.testFunctions))
	for _, f := range m.testFunctions {
		names = append(names, f.Name)
	}

	return fmt.Errorf("machine: unable to execute a test function (no precondition satisfied); stuck: %s", strings.Join(names, ", "))
}

// Run drives the machine to completion: while any test function needs
// more executions, sample one (pivoting towards a safe generator if it
// cannot yet execute), sample arguments satisfying its precondition,
// execute it, and integrate its result. When argument sampling fails, a
// single fallback operation is attempted instead. 1000 consecutive
// fruitless rounds abort the run with a starvation error.
func (m *Machine) Run(rng *rand.Rand) error {
	unsuccessful := 0

	for len(m.testFunctions) > 0 {
		if unsuccessful > 1000 {
			return m.starvationError()
		}

		f, err := m.SampleFunction(rng)
		if err != nil {
			return err
		}

		args, argIndices, ok := m.SampleArgsSatisfying(rng, f)

		if !ok {
			g := m.SampleFallback(rng, f)
			if g == nil || !m.CanExecute(g) {
				unsuccessful++

				continue
			}

			args, argIndices = m.SampleArgs(rng, g)

			if g.HasPrecondition() && !g.CheckPrecondition(args) {
				unsuccessful++

				continue
			}

			f = g
		}

		unsuccessful = 0

		returnValueIdx := m.ExecuteAndIntegrate(rng, f, args)

		if m.Recorder != nil {
			m.Recorder(f.InternalIndex, argIndices, returnValueIdx)
		}
	}

	return nil
}

// integrate adds v to its ValueSet, either appending a new slot or
// overwriting a random existing one. The append probability is
// 1/(1+len(vars)): newly discovered types fill up quickly, then growth
// tapers off.
func (m *Machine) integrate(rng *rand.Rand, v valuepool.Value) int {
	vs := m.Pool.Set(v.Type)

	if len(vs.Vars) == 0 || rng.Float64() <= 1/(1+float64(len(vs.Vars))) {
		vs.Vars = append(vs.Vars, v)

		return len(vs.Vars) - 1
	}

	idx := rng.IntN(len(vs.Vars))
	vs.Vars[idx] = v

	return idx
}

// runInvariantsFor runs every invariant registered under t against
// trigger. A unary invariant sees trigger directly. For higher arities,
// trigger fills the invariant's first argument position of its type and
// the remaining positions are sampled from the pool like a normal op's
// arguments; if any of those other argument types has no values yet,
// the invariant is skipped for this occurrence rather than blocking the
// run.
func (m *Machine) runInvariantsFor(rng *rand.Rand, t reflect.Type, trigger valuepool.Value) {
	vs, ok := m.Pool.Lookup(t)
	if !ok {
		return
	}

	for _, fn := range vs.Invariants {
		f := fn.(*fndesc.Descriptor)
		m.runInvariant(rng, f, t, trigger)
	}
}

func (m *Machine) runInvariant(rng *rand.Rand, f *fndesc.Descriptor, triggerType reflect.Type, trigger valuepool.Value) {
	args := make([]valuepool.Value, f.Arity())
	placed := false

	for i, at := range f.ArgTypes {
		if !placed && at == triggerType {
			args[i] = trigger
			placed = true

			continue
		}

		vs, ok := m.Pool.Lookup(at)
		if !ok || !vs.HasValues() {
			return
		}

		args[i] = choice(rng, vs.Vars)
	}

	result := f.Execute(args)

	if result.Type != nil && result.Type.Kind() == reflect.Bool && m.bus != nil {
		ok := *(result.Data.(*bool))
		m.bus.RecordResult(ok, false, "internal/machine", 0, fmt.Sprintf("invariant %q failed", f.Name))
	}
}

// ValueAt returns the value stored at slot idx of type t's ValueSet, or
// false if that slot has never been written.
func (m *Machine) ValueAt(t reflect.Type, idx int) (valuepool.Value, bool) {
	vs, ok := m.Pool.Lookup(t)
	if !ok || idx < 0 || idx >= len(vs.Vars) {
		return valuepool.Value{}, false
	}

	return vs.Vars[idx], true
}

// ReplayArgs resolves f's argument list from explicit pool slot indices
// instead of sampling, used for deterministic trace replay. A recorded
// arity that disagrees with the live descriptor means the registered
// function set changed since the trace was saved; that is a hard error,
// saved traces do not survive reordering or re-signaturing ops.
func (m *Machine) ReplayArgs(f *fndesc.Descriptor, argIndices []int) ([]valuepool.Value, error) {
	if len(argIndices) != f.Arity() {
		return nil, fmt.Errorf("machine: op %q recorded with arity %d, current arity %d", f.Name, len(argIndices), f.Arity())
	}

	args := make([]valuepool.Value, f.Arity())

	for i, at := range f.ArgTypes {
		v, ok := m.ValueAt(at, argIndices[i])
		if !ok {
			return nil, fmt.Errorf("machine: op %q argument %d references unwritten slot %d", f.Name, i, argIndices[i])
		}

		args[i] = v
	}

	return args, nil
}

// ReplayExecute runs f with args exactly as recorded and places a
// non-void result at returnSlot rather than sampling where to put it.
// If f's precondition rejects args, it returns an error so the caller
// can treat the whole trace as invalid instead of panicking.
func (m *Machine) ReplayExecute(rng *rand.Rand, f *fndesc.Descriptor, args []valuepool.Value, returnSlot int) (valuepool.Value, error) {
	if f.HasPrecondition() && !f.CheckPrecondition(args) {
		return valuepool.Value{}, fmt.Errorf("machine: op %q precondition rejected replayed arguments", f.Name)
	}

	result := f.Execute(args)
	f.Executions++

	for i, at := range f.ArgTypes {
		if f.ArgIsMutable[i] {
			m.runInvariantsFor(rng, at, args[i])
		}
	}

	if !result.IsVoid() {
		m.runInvariantsFor(rng, result.Type, result)
		m.placeAt(result, returnSlot)
	}

	return result, nil
}

// placeAt stores v at an explicit slot index, growing the ValueSet if
// returnSlot is one past its current length (the slot a recording run's
// integrate would have appended), matching integrate's append case.
func (m *Machine) placeAt(v valuepool.Value, slot int) {
	vs := m.Pool.Set(v.Type)

	for len(vs.Vars) <= slot {
		vs.Vars = append(vs.Vars, valuepool.Value{})
	}

	vs.Vars[slot] = v
}

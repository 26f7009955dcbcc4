package mctdriver

import (
	"fmt"
	"math/rand/v2"
	"reflect"

	"github.com/arcana-nexus/nexus/internal/assertbus"
	"github.com/arcana-nexus/nexus/internal/fndesc"
	"github.com/arcana-nexus/nexus/internal/machine"
	"github.com/arcana-nexus/nexus/internal/trace"
	"github.com/arcana-nexus/nexus/internal/valuepool"
)

// pairedFunctions is the three-way partition behind equivalence mode:
// functions unrelated to either compared type (shared by both machines)
// and the related-to-A/related-to-B functions, paired by name.
type pairedFunctions struct {
	unrelated []*fndesc.Descriptor
	pairsA    []*fndesc.Descriptor
	pairsB    []*fndesc.Descriptor
}

func mentionsType(f *fndesc.Descriptor, t reflect.Type) bool {
	if f.ReturnType == t {
		return true
	}

	for _, at := range f.ArgTypes {
		if at == t {
			return true
		}
	}

	return false
}

// partitionForSpec classifies descs and pairs related-to-A functions
// with their same-named related-to-B counterpart. A function mentioning
// both compared types bridges the two pools and is rejected, as is any
// related function without a counterpart.
func partitionForSpec(descs []*fndesc.Descriptor, spec EquivalenceSpec) (*pairedFunctions, error) {
	var unrelated, relatedA, relatedB []*fndesc.Descriptor

	for _, f := range descs {
		a, b := mentionsType(f, spec.TypeA), mentionsType(f, spec.TypeB)

		switch {
		case a && b:
			return nil, fmt.Errorf("mctdriver: bridging violation: %q mentions both equivalence types", f.Name)
		case a:
			relatedA = append(relatedA, f)
		case b:
			relatedB = append(relatedB, f)
		default:
			unrelated = append(unrelated, f)
		}
	}

	pf := &pairedFunctions{unrelated: unrelated}
	used := make(map[*fndesc.Descriptor]bool, len(relatedB))

	for _, fa := range relatedA {
		var match *fndesc.Descriptor

		for _, fb := range relatedB {
			if !used[fb] && fb.Name == fa.Name {
				match = fb

				break
			}
		}

		if match == nil {
			return nil, fmt.Errorf("mctdriver: bridging violation: %q (related to the first compared type) has no matching counterpart named %q", fa.Name, fa.Name)
		}

		if err := validatePairing(fa, match, spec); err != nil {
			return nil, err
		}

		used[match] = true
		pf.pairsA = append(pf.pairsA, fa)
		pf.pairsB = append(pf.pairsB, match)
	}

	for _, fb := range relatedB {
		if !used[fb] {
			return nil, fmt.Errorf("mctdriver: bridging violation: %q (related to the second compared type) has no matching counterpart named %q", fb.Name, fb.Name)
		}
	}

	return pf, nil
}

// validatePairing checks that fa and fb have identical arity and
// mutability masks, and that every non-bridge argument (and the return
// type, when it isn't one of the compared types) matches exactly.
func validatePairing(fa, fb *fndesc.Descriptor, spec EquivalenceSpec) error {
	if fa.Arity() != fb.Arity() {
		return fmt.Errorf("mctdriver: %q: arity mismatch between compared sides (%d vs %d)", fa.Name, fa.Arity(), fb.Arity())
	}

	for i := range fa.ArgTypes {
		if fa.ArgIsMutable[i] != fb.ArgIsMutable[i] {
			return fmt.Errorf("mctdriver: %q: mutability mismatch at argument %d", fa.Name, i)
		}

		at, bt := fa.ArgTypes[i], fb.ArgTypes[i]
		if at == spec.TypeA {
			if bt != spec.TypeB {
				return fmt.Errorf("mctdriver: %q: argument %d is the first compared type on one side but not the second on the other", fa.Name, i)
			}

			continue
		}

		if at != bt {
			return fmt.Errorf("mctdriver: %q: non-bridge argument %d type mismatch (%s vs %s)", fa.Name, i, at, bt)
		}
	}

	switch {
	case fa.ReturnType == spec.TypeA:
		if fb.ReturnType != spec.TypeB {
			return fmt.Errorf("mctdriver: %q: return type is the first compared type on one side but not the second on the other", fa.Name)
		}
	case fa.ReturnType != fb.ReturnType:
		return fmt.Errorf("mctdriver: %q: non-bridge return type mismatch (%s vs %s)", fa.Name, fa.ReturnType, fb.ReturnType)
	}

	return nil
}

// executeEquivalence builds, for each registered equivalence
// declaration, two paired machines over independent pools and drives
// them in lockstep, reusing the first machine's sampled function and
// argument indices on the second so the two pools stay structurally
// parallel, and comparing every paired mutation and return value.
func (d *Driver) executeEquivalence(rng *rand.Rand) error {
	for specIdx, spec := range d.equivalences {
		pf, err := partitionForSpec(d.descs, spec)
		if err != nil {
			return err
		}

		descsA := append(append([]*fndesc.Descriptor{}, pf.unrelated...), pf.pairsA...)
		descsB := append(append([]*fndesc.Descriptor{}, pf.unrelated...), pf.pairsB...)

		mA, err := machine.Build(descsA, d.Bus, d.boxedSeeds()...)
		if err != nil {
			return fmt.Errorf("mctdriver: equivalence machine A: %w", err)
		}

		mB, err := machine.Build(descsB, d.Bus, d.boxedSeeds()...)
		if err != nil {
			return fmt.Errorf("mctdriver: equivalence machine B: %w", err)
		}

		tr := trace.Trace{EquivalenceIndex: specIdx}

		err = runPaired(rng, mA, mB, spec, d.Types, d.Bus, &tr)
		d.lastTrace = tr

		if err != nil {
			return err
		}
	}

	return nil
}

// runPaired drives mA and mB in lockstep until mA's test functions are
// exhausted. Both machines were built from pairwise-identical
// descriptor lists (same unrelated prefix, paired functions at matching
// positions), so mB.AllFunctions[fA.InternalIndex] is always fA's pair.
func runPaired(rng *rand.Rand, mA, mB *machine.Machine, spec EquivalenceSpec, types *valuepool.Registry, bus *assertbus.Bus, tr *trace.Trace) error {
	unsuccessful := 0

	for mA.Remaining() > 0 {
		if unsuccessful > 1000 {
			return fmt.Errorf("mctdriver: equivalence: unable to execute a test function (no precondition satisfied)")
		}

		fA, err := mA.SampleFunction(rng)
		if err != nil {
			return err
		}

		argsA, argIndices, ok := mA.SampleArgsSatisfying(rng, fA)

		if !ok {
			g := mA.SampleFallback(rng, fA)
			if g == nil || !mA.CanExecute(g) {
				unsuccessful++

				continue
			}

			argsA, argIndices = mA.SampleArgs(rng, g)

			if g.HasPrecondition() && !g.CheckPrecondition(argsA) {
				unsuccessful++

				continue
			}

			fA = g
		}

		fB := mB.AllFunctions[fA.InternalIndex]

		argsB, err := mB.ReplayArgs(fB, argIndices)
		if err != nil {
			return fmt.Errorf("mctdriver: equivalence: %w", err)
		}

		// A precondition that held on one side must hold on the paired
		// side; anything else means the paired operation sets disagree
		// about their own domain.
		if fB.HasPrecondition() && !fB.CheckPrecondition(argsB) {
			return fmt.Errorf("mctdriver: equivalence: precondition held for %q on one side but not the other", fA.Name)
		}

		unsuccessful = 0

		returnSlot := mA.ExecuteAndIntegrate(rng, fA, argsA)

		if _, err := mB.ReplayExecute(rng, fB, argsB, returnSlot); err != nil {
			return fmt.Errorf("mctdriver: equivalence: %w", err)
		}

		for i := range fA.ArgTypes {
			if fA.ArgIsMutable[i] {
				compare(types, bus, spec, fA.Name, argsA[i], argsB[i])
			}
		}

		if returnSlot >= 0 {
			resultA, _ := mA.ValueAt(fA.ReturnType, returnSlot)
			resultB, _ := mB.ValueAt(fB.ReturnType, returnSlot)
			compare(types, bus, spec, fA.Name, resultA, resultB)
		}

		tr.Ops = append(tr.Ops, trace.Op{
			FunctionIndex:  fA.InternalIndex,
			ArgIndices:     append([]int(nil), argIndices...),
			ReturnValueIdx: returnSlot,
		})
	}

	return nil
}

// replayPaired deterministically re-executes an equivalence-mode trace
// against freshly rebuilt paired machines, applying the same per-step
// comparisons as the recording run so a recorded mismatch fails the
// same way on replay.
func replayPaired(descsA, descsB []*fndesc.Descriptor, spec EquivalenceSpec, types *valuepool.Registry, bus *assertbus.Bus, rng *rand.Rand, tr trace.Trace, seedsA, seedsB []valuepool.Value) error {
	mA, err := machine.Build(descsA, bus, seedsA...)
	if err != nil {
		return fmt.Errorf("mctdriver: replay: %w", err)
	}

	mB, err := machine.Build(descsB, bus, seedsB...)
	if err != nil {
		return fmt.Errorf("mctdriver: replay: %w", err)
	}

	for _, op := range tr.Ops {
		if op.FunctionIndex < 0 || op.FunctionIndex >= len(descsA) {
			return fmt.Errorf("mctdriver: replay: function index %d out of range", op.FunctionIndex)
		}

		fA := descsA[op.FunctionIndex]
		fB := descsB[op.FunctionIndex]

		argsA, err := mA.ReplayArgs(fA, op.ArgIndices)
		if err != nil {
			return fmt.Errorf("mctdriver: replay: invalid trace: %w", err)
		}

		argsB, err := mB.ReplayArgs(fB, op.ArgIndices)
		if err != nil {
			return fmt.Errorf("mctdriver: replay: invalid trace: %w", err)
		}

		if _, err := mA.ReplayExecute(rng, fA, argsA, op.ReturnValueIdx); err != nil {
			return fmt.Errorf("mctdriver: replay: invalid trace: %w", err)
		}

		if _, err := mB.ReplayExecute(rng, fB, argsB, op.ReturnValueIdx); err != nil {
			return fmt.Errorf("mctdriver: replay: invalid trace: %w", err)
		}

		for i := range fA.ArgTypes {
			if fA.ArgIsMutable[i] {
				compare(types, bus, spec, fA.Name, argsA[i], argsB[i])
			}
		}

		if op.ReturnValueIdx >= 0 {
			resultA, _ := mA.ValueAt(fA.ReturnType, op.ReturnValueIdx)
			resultB, _ := mB.ValueAt(fB.ReturnType, op.ReturnValueIdx)
			compare(types, bus, spec, fA.Name, resultA, resultB)
		}
	}

	return nil
}

// derefValue unboxes a pooled value back to the logical object it
// holds.
func derefValue(v valuepool.Value) any {
	if v.Data == nil {
		return nil
	}

	return reflect.ValueOf(v.Data).Elem().Interface()
}

// compare checks one paired value: when a's type is the first compared
// type, b must be the paired type and the registered equivalence test
// decides; otherwise the two types must be identical and are compared
// with the type-registered equality, falling back to reflect.DeepEqual.
// A mismatch is reported as a failed check on bus, the same way the
// machine reports a failed invariant.
func compare(types *valuepool.Registry, bus *assertbus.Bus, spec EquivalenceSpec, opName string, a, b valuepool.Value) {
	var ok bool

	switch {
	case a.Type == spec.TypeA:
		ok = b.Type == spec.TypeB && spec.Test(a, b)
	case a.Type != b.Type:
		ok = false
	default:
		ok = types.Equal(derefValue(a), derefValue(b))
	}

	msg := ""
	if !ok {
		msg = fmt.Sprintf("equivalence mismatch for op %q: lhs: %s, rhs: %s", opName, types.Repr(derefValue(a)), types.Repr(derefValue(b)))
	}

	bus.RecordResult(ok, false, "internal/mctdriver", 0, msg)
}

package trace

import (
	"math/rand/v2"
	"reflect"

	"github.com/arcana-nexus/nexus/internal/fndesc"
)

// ProposalFunc generates minimizer edits for t, given the function list
// it was recorded against (for slot-type lookups) and the original
// seed (folded into bulk-deletion's deterministic coin flips).
type ProposalFunc func(funcs []*fndesc.Descriptor, t Trace, seed int64) []Trace

// DefaultProposals is the ordered proposal pipeline: deletion,
// bulk-deletion, slot rename, argument rewire.
var DefaultProposals = []ProposalFunc{
	DeletionProposals,
	BulkDeletionProposals,
	RenameProposals,
	RewireProposals,
}

// Minimize repeatedly asks proposals for edits of t, adopts the first
// one that both strictly reduces Complexity and still satisfies
// isFailing, and restarts. It terminates when no proposal improves on
// the current trace.
func Minimize(funcs []*fndesc.Descriptor, t Trace, seed int64, proposals []ProposalFunc, isFailing func(Trace) bool) Trace {
	for {
		base := Complexity(t)
		hasSmaller := false

		for _, gen := range proposals {
			for _, candidate := range gen(funcs, t, seed) {
				if Complexity(candidate) >= base {
					continue
				}

				if isFailing(candidate) {
					t = candidate
					hasSmaller = true

					break
				}
			}

			if hasSmaller {
				break
			}
		}

		if !hasSmaller {
			return t
		}
	}
}

func argType(funcs []*fndesc.Descriptor, op Op, pos int) reflect.Type {
	return funcs[op.FunctionIndex].ArgTypes[pos]
}

func returnType(funcs []*fndesc.Descriptor, op Op) reflect.Type {
	return funcs[op.FunctionIndex].ReturnType
}

// isDeletionCandidate reports whether op i's return slot is unreferenced
// going forward: void, rewritten by a later op of the same type before
// any later read, or never read at all.
func isDeletionCandidate(funcs []*fndesc.Descriptor, t Trace, i int) bool {
	op := t.Ops[i]
	if op.ReturnValueIdx < 0 {
		return true
	}

	typ := returnType(funcs, op)
	slot := op.ReturnValueIdx

	for j := i + 1; j < len(t.Ops); j++ {
		oj := t.Ops[j]

		for k, idx := range oj.ArgIndices {
			if idx == slot && argType(funcs, oj, k) == typ {
				return false
			}
		}

		if oj.ReturnValueIdx == slot && returnType(funcs, oj) == typ {
			return true
		}
	}

	return true
}

// DeletionProposals proposes removing each individual deletion-candidate
// op.
func DeletionProposals(funcs []*fndesc.Descriptor, t Trace, _ int64) []Trace {
	var out []Trace

	for i := range t.Ops {
		if isDeletionCandidate(funcs, t, i) {
			out = append(out, t.withoutOp(i))
		}
	}

	return out
}

// BulkDeletionProposals proposes one randomized bulk edit when more than
// ten ops are deletion candidates: keep every non-candidate op, keep
// each candidate op with probability 1/2 using a coin seeded
// deterministically from seed and the trace's current complexity, then
// drop the final retained op to guarantee strict reduction.
func BulkDeletionProposals(funcs []*fndesc.Descriptor, t Trace, seed int64) []Trace {
	isCandidate := make([]bool, len(t.Ops))

	candidates := 0

	for i := range t.Ops {
		isCandidate[i] = isDeletionCandidate(funcs, t, i)
		if isCandidate[i] {
			candidates++
		}
	}

	if candidates <= 10 {
		return nil
	}

	coinSeed := uint64(seed) + uint64(Complexity(t))
	rng := rand.New(rand.NewPCG(coinSeed, coinSeed^0x9e3779b97f4a7c15))

	var keep []int

	for i, cand := range isCandidate {
		if !cand {
			keep = append(keep, i)

			continue
		}

		if rng.Float64() < 0.5 {
			keep = append(keep, i)
		}
	}

	if len(keep) == 0 {
		return nil
	}

	keep = keep[:len(keep)-1] // drop the final op to guarantee strict reduction

	newOps := make([]Op, 0, len(keep))
	for _, i := range keep {
		newOps = append(newOps, t.Ops[i])
	}

	return []Trace{{EquivalenceIndex: t.EquivalenceIndex, Ops: newOps}}
}

// RenameProposals proposes, for every type with used slot indices,
// renaming its highest-indexed live slot down to each lower index,
// updating every return slot and argument reference of that type.
func RenameProposals(funcs []*fndesc.Descriptor, t Trace, _ int64) []Trace {
	highest := map[reflect.Type]int{}

	note := func(typ reflect.Type, idx int) {
		if idx < 0 {
			return
		}

		if cur, ok := highest[typ]; !ok || idx > cur {
			highest[typ] = idx
		}
	}

	for _, op := range t.Ops {
		note(returnType(funcs, op), op.ReturnValueIdx)

		for k, idx := range op.ArgIndices {
			note(argType(funcs, op, k), idx)
		}
	}

	var out []Trace

	for typ, max := range highest {
		for lower := 0; lower < max; lower++ {
			out = append(out, renameSlot(funcs, t, typ, max, lower))
		}
	}

	return out
}

func renameSlot(funcs []*fndesc.Descriptor, t Trace, typ reflect.Type, from, to int) Trace {
	c := t.Clone()

	for i, op := range c.Ops {
		if op.ReturnValueIdx == from && returnType(funcs, op) == typ {
			c.Ops[i].ReturnValueIdx = to
		}

		for k, idx := range op.ArgIndices {
			if idx == from && argType(funcs, op, k) == typ {
				c.Ops[i].ArgIndices[k] = to
			}
		}
	}

	return c
}

// RewireProposals proposes, for every op and argument position,
// redirecting that argument to any lower-indexed slot of the same type
// that was already written by an earlier op.
func RewireProposals(funcs []*fndesc.Descriptor, t Trace, _ int64) []Trace {
	var out []Trace

	for i, op := range t.Ops {
		for k, idx := range op.ArgIndices {
			typ := argType(funcs, op, k)

			for lower := 0; lower < idx; lower++ {
				if wasWrittenBefore(funcs, t, i, typ, lower) {
					out = append(out, t.withArgRewired(i, k, lower))
				}
			}
		}
	}

	return out
}

func wasWrittenBefore(funcs []*fndesc.Descriptor, t Trace, beforeOpIdx int, typ reflect.Type, slot int) bool {
	for j := 0; j < beforeOpIdx; j++ {
		op := t.Ops[j]
		if op.ReturnValueIdx == slot && returnType(funcs, op) == typ {
			return true
		}
	}

	return false
}

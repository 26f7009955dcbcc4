// Package trace implements the recorded reproduction trace and its
// minimizer. A trace is the linear record of one machine run: which
// function executed, which pool slots its arguments came from, and
// which slot its result was written to. Replaying the record is
// deterministic, which makes the trace both the unit of reproduction
// and the thing the minimizer shrinks.
package trace

// Op is one executed operation recorded into a Trace: which function ran,
// the pool slot indices its arguments were read from, and the pool slot
// its (possibly void) result was written to.
type Op struct {
	FunctionIndex  int
	ArgIndices     []int
	ReturnValueIdx int // -1 means void return
}

// Trace is the ordered op log produced by one machine (or pair of
// machines, in equivalence mode) run.
//
// EquivalenceIndex is -1 for a normal-mode trace, or the index into the
// ordered list of registered equivalence declarations that this trace
// was recorded under.
type Trace struct {
	EquivalenceIndex int
	Ops              []Op
}

// Clone returns a deep copy so callers can mutate it freely.
func (t Trace) Clone() Trace {
	ops := make([]Op, len(t.Ops))

	for i, op := range t.Ops {
		var args []int
		if len(op.ArgIndices) > 0 {
			args = make([]int, len(op.ArgIndices))
			copy(args, op.ArgIndices)
		}

		ops[i] = Op{FunctionIndex: op.FunctionIndex, ArgIndices: args, ReturnValueIdx: op.ReturnValueIdx}
	}

	return Trace{EquivalenceIndex: t.EquivalenceIndex, Ops: ops}
}

func (t Trace) withoutOp(i int) Trace {
	c := t.Clone()
	c.Ops = append(c.Ops[:i:i], c.Ops[i+1:]...)

	return c
}

func (t Trace) withArgRewired(opIdx, argPos, newSlot int) Trace {
	c := t.Clone()
	c.Ops[opIdx].ArgIndices[argPos] = newSlot

	return c
}

// Complexity is the non-negative, size-monotone measure every minimizer
// proposal must strictly reduce: for each op, 1 + max(return slot, 0) +
// the sum of its argument slot indices. Strict reduction per accepted
// edit makes the minimization loop well-founded.
func Complexity(t Trace) int {
	total := 0

	for _, op := range t.Ops {
		rv := op.ReturnValueIdx
		if rv < 0 {
			rv = 0
		}

		c := 1 + rv
		for _, a := range op.ArgIndices {
			c += a
		}

		total += c
	}

	return total
}

// Flatten renders t as a flat integer sequence: the equivalence index,
// then per op in order its function index, return slot, arity, and
// argument slot indices. The result is what internal/tracecodec.Encode
// turns into a reproduction string.
func Flatten(t Trace) []int {
	out := make([]int, 0, 1+4*len(t.Ops))
	out = append(out, t.EquivalenceIndex)

	for _, op := range t.Ops {
		out = append(out, op.FunctionIndex, op.ReturnValueIdx, len(op.ArgIndices))
		out = append(out, op.ArgIndices...)
	}

	return out
}

// Unflatten reverses Flatten.
func Unflatten(data []int) Trace {
	if len(data) == 0 {
		return Trace{EquivalenceIndex: -1}
	}

	t := Trace{EquivalenceIndex: data[0]}

	pos := 1
	for pos < len(data) {
		fn := data[pos]
		rv := data[pos+1]
		argc := data[pos+2]
		pos += 3

		var args []int
		if argc > 0 {
			args = make([]int, argc)
			copy(args, data[pos:pos+argc])
			pos += argc
		}

		t.Ops = append(t.Ops, Op{FunctionIndex: fn, ArgIndices: args, ReturnValueIdx: rv})
	}

	return t
}

package trace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcana-nexus/nexus/internal/fndesc"
	"github.com/arcana-nexus/nexus/internal/trace"
)

func intFuncs() []*fndesc.Descriptor {
	return []*fndesc.Descriptor{
		fndesc.New("genInt", func() int { return 0 }),
		fndesc.New("addOne", func(n int) int { return n + 1 }),
	}
}

// chain builds genInt -> addOne -> addOne, where the middle result is
// consumed by the final op but the final op's own result is never read
// again: slot2 is the only deletion candidate.
func chain() trace.Trace {
	return trace.Trace{
		EquivalenceIndex: -1,
		Ops: []trace.Op{
			{FunctionIndex: 0, ArgIndices: nil, ReturnValueIdx: 0},
			{FunctionIndex: 1, ArgIndices: []int{0}, ReturnValueIdx: 1},
			{FunctionIndex: 1, ArgIndices: []int{1}, ReturnValueIdx: 2},
		},
	}
}

func TestDeletionProposals_OnlyProposesUnreferencedOps(t *testing.T) {
	funcs := intFuncs()
	tr := chain()

	proposals := trace.DeletionProposals(funcs, tr, 0)

	require.Len(t, proposals, 1)
	require.Len(t, proposals[0].Ops, 2)
	require.Equal(t, tr.Ops[0], proposals[0].Ops[0])
	require.Equal(t, tr.Ops[1], proposals[0].Ops[1])
}

func TestBulkDeletionProposals_NoopBelowThreshold(t *testing.T) {
	funcs := intFuncs()
	require.Nil(t, trace.BulkDeletionProposals(funcs, chain(), 1))
}

func TestBulkDeletionProposals_ProposesStrictlySmallerTraceAboveThreshold(t *testing.T) {
	funcs := intFuncs()

	ops := []trace.Op{{FunctionIndex: 0, ArgIndices: nil, ReturnValueIdx: 0}}
	for i := 0; i < 15; i++ {
		ops = append(ops, trace.Op{FunctionIndex: 1, ArgIndices: []int{0}, ReturnValueIdx: -1})
	}

	tr := trace.Trace{EquivalenceIndex: -1, Ops: ops}

	proposals := trace.BulkDeletionProposals(funcs, tr, 42)
	require.Len(t, proposals, 1)
	require.Less(t, trace.Complexity(proposals[0]), trace.Complexity(tr))
	require.Less(t, len(proposals[0].Ops), len(tr.Ops))
}

func TestRenameProposals_ProducesLowerSlotVariants(t *testing.T) {
	funcs := intFuncs()
	tr := chain()

	proposals := trace.RenameProposals(funcs, tr, 0)
	require.NotEmpty(t, proposals)

	for _, p := range proposals {
		require.LessOrEqual(t, trace.Complexity(p), trace.Complexity(tr))
	}
}

func TestRewireProposals_RedirectsToEarlierWrittenSlot(t *testing.T) {
	funcs := intFuncs()
	tr := chain()

	proposals := trace.RewireProposals(funcs, tr, 0)
	require.NotEmpty(t, proposals)

	found := false

	for _, p := range proposals {
		if p.Ops[2].ArgIndices[0] == 0 {
			found = true
		}
	}

	require.True(t, found, "expected a proposal rewiring op 2's argument to slot 0")
}

func TestMinimize_ConvergesToEmptyTraceWhenAlwaysFailing(t *testing.T) {
	funcs := intFuncs()
	tr := chain()

	min := trace.Minimize(funcs, tr, 0, trace.DefaultProposals, func(trace.Trace) bool { return true })

	require.Empty(t, min.Ops)
}

func TestMinimize_ReturnsInputUnchangedWhenNoCandidateReproduces(t *testing.T) {
	funcs := intFuncs()
	tr := chain()

	// isFailing rejects every candidate, so no proposal is ever adopted.
	min := trace.Minimize(funcs, tr, 0, trace.DefaultProposals, func(trace.Trace) bool { return false })

	require.Equal(t, tr, min)
}

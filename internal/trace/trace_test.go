package trace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcana-nexus/nexus/internal/trace"
)

func sampleTrace() trace.Trace {
	return trace.Trace{
		EquivalenceIndex: -1,
		Ops: []trace.Op{
			{FunctionIndex: 0, ArgIndices: nil, ReturnValueIdx: 0},
			{FunctionIndex: 2, ArgIndices: []int{0, 0}, ReturnValueIdx: -1},
			{FunctionIndex: 1, ArgIndices: []int{0}, ReturnValueIdx: 1},
		},
	}
}

func TestFlatten_Unflatten_RoundTrips(t *testing.T) {
	tr := sampleTrace()

	flat := trace.Flatten(tr)
	got := trace.Unflatten(flat)

	require.Equal(t, tr, got)
}

func TestFlatten_LeadsWithEquivalenceIndex(t *testing.T) {
	tr := trace.Trace{EquivalenceIndex: 3}

	flat := trace.Flatten(tr)
	require.Equal(t, []int{3}, flat)
}

func TestUnflatten_EmptyInputYieldsNormalModeTrace(t *testing.T) {
	got := trace.Unflatten(nil)
	require.Equal(t, -1, got.EquivalenceIndex)
	require.Empty(t, got.Ops)
}

func TestClone_IsIndependentOfOriginal(t *testing.T) {
	tr := sampleTrace()
	c := tr.Clone()

	c.Ops[0].ArgIndices = append(c.Ops[0].ArgIndices, 99)
	c.Ops[1].FunctionIndex = 77

	require.NotEqual(t, tr.Ops[1].FunctionIndex, c.Ops[1].FunctionIndex)
}

func TestComplexity_SumsPerOpCost(t *testing.T) {
	tr := trace.Trace{Ops: []trace.Op{
		{ReturnValueIdx: -1, ArgIndices: nil},        // cost 1
		{ReturnValueIdx: 2, ArgIndices: []int{1, 3}}, // cost 1+2+1+3 = 7
	}}

	require.Equal(t, 1+7, trace.Complexity(tr))
}

func TestComplexity_IsZeroForEmptyTrace(t *testing.T) {
	require.Equal(t, 0, trace.Complexity(trace.Trace{}))
}

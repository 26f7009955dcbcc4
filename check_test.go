package nexus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcana-nexus/nexus/internal/assertbus"
	"github.com/arcana-nexus/nexus/internal/registry"
)

func newCheckT() *T {
	return &T{handle: &registry.Handle{Test: &registry.Test{Name: "t"}, Bus: assertbus.New()}}
}

func TestCheckEqual_CountsAndRecordsRepresentativeStrings(t *testing.T) {
	tt := newCheckT()

	require.True(t, CheckEqual(tt, 2, 2))
	require.False(t, CheckEqual(tt, 2, 3))

	bus := tt.handle.Bus
	require.Equal(t, 2, bus.NumChecks)
	require.Equal(t, 1, bus.NumFailedChecks)
	require.Contains(t, bus.FirstFailure().Message, "lhs: 2, rhs: 3")
}

// opaque has no exported fields and no Equal method, the shape go-cmp
// refuses to compare.
type opaque struct {
	hidden int
}

func TestCheckEqual_UnexportedFieldsRecordAFailureInsteadOfPanicking(t *testing.T) {
	tt := newCheckT()

	require.True(t, CheckEqual(tt, opaque{hidden: 1}, opaque{hidden: 1}))
	require.False(t, CheckEqual(tt, opaque{hidden: 1}, opaque{hidden: 2}))

	bus := tt.handle.Bus
	require.Equal(t, 1, bus.NumFailedChecks)
	require.Contains(t, bus.FirstFailure().Message, "lhs: {1}, rhs: {2}")
}

func TestRequireEqual_UnexportedFieldsStillRaiseTheSignal(t *testing.T) {
	tt := newCheckT()

	_, failed := assertbus.Catch(func() {
		RequireEqual(tt, opaque{hidden: 1}, opaque{hidden: 2})
	})

	require.True(t, failed)
	require.Equal(t, 1, tt.handle.Bus.NumFailedChecks)
}

func TestCheckNotEqual(t *testing.T) {
	tt := newCheckT()

	require.True(t, CheckNotEqual(tt, 1, 2))
	require.False(t, CheckNotEqual(tt, []int{1}, []int{1}))
	require.Equal(t, 1, tt.handle.Bus.NumFailedChecks)
}

type revisioned struct {
	ID  int
	Rev int
}

func TestRegisterTypeEqual_OverridesComparisonForCheckEqual(t *testing.T) {
	RegisterTypeEqual(func(a, b revisioned) bool { return a.ID == b.ID })

	tt := newCheckT()

	// Revisions differ but IDs match: the registered equality wins over
	// field-by-field comparison.
	require.True(t, CheckEqual(tt, revisioned{ID: 1, Rev: 3}, revisioned{ID: 1, Rev: 9}))
	require.False(t, CheckEqual(tt, revisioned{ID: 1}, revisioned{ID: 2}))
}

func TestRegisterTypeString_FormatsFailureMessages(t *testing.T) {
	RegisterTypeString(func(v revisioned) string { return fmt.Sprintf("rev<%d>", v.ID) })

	tt := newCheckT()

	require.False(t, CheckEqual(tt, revisioned{ID: 1}, revisioned{ID: 2}))
	require.Contains(t, tt.handle.Bus.FirstFailure().Message, "lhs: rev<1>, rhs: rev<2>")
}

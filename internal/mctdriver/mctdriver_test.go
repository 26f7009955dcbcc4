package mctdriver_test

import (
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcana-nexus/nexus/internal/assertbus"
	"github.com/arcana-nexus/nexus/internal/mctdriver"
	"github.com/arcana-nexus/nexus/internal/registry"
	"github.com/arcana-nexus/nexus/internal/trace"
	"github.com/arcana-nexus/nexus/internal/tracecodec"
	"github.com/arcana-nexus/nexus/internal/valuepool"
)

type counter struct {
	n int
}

func buildCounterDriver(bus *assertbus.Bus, test *registry.Test) *mctdriver.Driver {
	d := mctdriver.New(bus, test)
	d.AddOp("zero", func() counter { return counter{} }).ExecuteAtLeast(0)
	d.AddOp("inc", func(c *counter) { c.n++ }).ExecuteAtLeast(30)

	return d
}

func TestExecute_NormalModeRecordsATrace(t *testing.T) {
	bus := assertbus.New()
	d := buildCounterDriver(bus, nil)

	require.NoError(t, d.Execute(rand.New(rand.NewPCG(1, 2))))

	tr := d.LastTrace()
	require.Equal(t, -1, tr.EquivalenceIndex)
	require.NotEmpty(t, tr.Ops)
	require.False(t, bus.DidFail())
}

func TestExecute_ReproductionTraceReplaysDeterministically(t *testing.T) {
	bus := assertbus.New()
	recordTest := &registry.Test{Name: "record"}
	d := buildCounterDriver(bus, recordTest)

	rng := rand.New(rand.NewPCG(11, 22))
	require.NoError(t, d.Execute(rng))

	recorded := d.LastTrace()
	flat := trace.Flatten(recorded)

	encoded, err := tracecodec.Encode(flat)
	require.NoError(t, err)

	replayTest := &registry.Test{
		Name:         "replay",
		Reproduction: &registry.Reproduction{Kind: registry.ReproductionTrace, Trace: encoded},
	}

	bus2 := assertbus.New()
	d2 := buildCounterDriver(bus2, replayTest)

	require.NoError(t, d2.Execute(rand.New(rand.NewPCG(99, 99))))
	require.Equal(t, recorded, d2.LastTrace())
}

type aType struct{ V int }
type bType struct{ V int }

func TestExecute_EquivalenceModeRejectsBridgingFunctions(t *testing.T) {
	bus := assertbus.New()
	d := mctdriver.New(bus, nil)

	d.AddOp("genA", func() aType { return aType{} }).ExecuteAtLeast(0)
	d.AddOp("genB", func() bType { return bType{} }).ExecuteAtLeast(0)
	d.AddOp("bridge", func(a aType, b bType) {}).ExecuteAtLeast(10)

	d.TestEquivalence(reflect.TypeOf(aType{}), reflect.TypeOf(bType{}), func(a, b valuepool.Value) bool { return true })

	err := d.Execute(rand.New(rand.NewPCG(1, 1)))
	require.ErrorContains(t, err, "bridging violation")
}

func buildEquivalenceDriver(bus *assertbus.Bus, incBDelta int) *mctdriver.Driver {
	d := mctdriver.New(bus, nil)

	d.AddOp("gen", func() aType { return aType{} }).ExecuteAtLeast(0)
	d.AddOp("gen", func() bType { return bType{} }).ExecuteAtLeast(0)
	d.AddOp("inc", func(a *aType) { a.V++ }).ExecuteAtLeast(20)
	d.AddOp("inc", func(b *bType) { b.V += incBDelta }).ExecuteAtLeast(20)

	d.TestEquivalence(reflect.TypeOf(aType{}), reflect.TypeOf(bType{}), func(a, b valuepool.Value) bool {
		return a.Data.(*aType).V == b.Data.(*bType).V
	})

	return d
}

func TestExecute_EquivalenceModeAgreesWhenSidesMatch(t *testing.T) {
	bus := assertbus.New()
	d := buildEquivalenceDriver(bus, 1)

	require.NoError(t, d.Execute(rand.New(rand.NewPCG(5, 9))))
	require.False(t, bus.DidFail())

	tr := d.LastTrace()
	require.Equal(t, 0, tr.EquivalenceIndex)
}

func TestExecute_EquivalenceModeReportsMismatchWithoutErroring(t *testing.T) {
	bus := assertbus.New()
	d := buildEquivalenceDriver(bus, 2) // B increments twice as fast as A: sides diverge

	require.NoError(t, d.Execute(rand.New(rand.NewPCG(5, 9))))
	require.True(t, bus.DidFail())
}

type boundedStack struct {
	items []int
}

// buildOverflowDriver registers a stack whose invariant tolerates at
// most two elements, while push runs often enough to always break it.
func buildOverflowDriver(bus *assertbus.Bus, test *registry.Test) *mctdriver.Driver {
	d := mctdriver.New(bus, test)

	d.AddOp("newStack", func() boundedStack { return boundedStack{} }).ExecuteAtLeast(0)
	d.AddOp("one", func() int { return 1 }).ExecuteAtLeast(0)
	d.AddOp("push", func(s *boundedStack, v int) { s.items = append(s.items, v) }).ExecuteAtLeast(30)
	d.AddInvariant("atMostTwo", func(s boundedStack) bool { return len(s.items) <= 2 })

	return d
}

func TestMinimizedFailingTrace_ShrinksAReplayableFailure(t *testing.T) {
	bus := assertbus.New()
	d := buildOverflowDriver(bus, nil)

	require.NoError(t, d.Execute(rand.New(rand.NewPCG(8, 16))))
	require.True(t, bus.DidFail())

	recorded := d.LastTrace()

	minimized, shrunk := d.MinimizedFailingTrace(99)
	require.True(t, shrunk)
	require.Less(t, trace.Complexity(minimized), trace.Complexity(recorded))
	require.NotEmpty(t, minimized.Ops)

	// The escalated replay probe must not leak its settings back into
	// the test's bus.
	require.False(t, bus.AlwaysTerminate)
	require.False(t, bus.Silenced)
}

func TestMinimizedFailingTrace_RefusesAPassingTrace(t *testing.T) {
	bus := assertbus.New()
	d := buildCounterDriver(bus, nil)

	require.NoError(t, d.Execute(rand.New(rand.NewPCG(1, 2))))
	require.False(t, bus.DidFail())

	_, shrunk := d.MinimizedFailingTrace(1)
	require.False(t, shrunk)
}

func TestMinimizedFailingTrace_ShrinksAnEquivalenceMismatch(t *testing.T) {
	bus := assertbus.New()
	d := buildEquivalenceDriver(bus, 2)

	require.NoError(t, d.Execute(rand.New(rand.NewPCG(5, 9))))
	require.True(t, bus.DidFail())

	recorded := d.LastTrace()

	minimized, shrunk := d.MinimizedFailingTrace(7)
	require.True(t, shrunk)
	require.LessOrEqual(t, trace.Complexity(minimized), trace.Complexity(recorded))
	require.Equal(t, recorded.EquivalenceIndex, minimized.EquivalenceIndex)
}

func TestExecute_EquivalenceUsesRegisteredEqualityForNonBridgeValues(t *testing.T) {
	bus := assertbus.New()
	d := mctdriver.New(bus, nil)
	d.Types = valuepool.NewRegistry()

	d.AddOp("gen", func() aType { return aType{} }).ExecuteAtLeast(0)
	d.AddOp("gen", func() bType { return bType{} }).ExecuteAtLeast(0)
	d.AddOp("inc", func(a *aType) { a.V++ }).ExecuteAtLeast(5)
	d.AddOp("inc", func(b *bType) { b.V++ }).ExecuteAtLeast(5)

	// count is unrelated to either compared type, so both sides return
	// identical ints; only the registered equality can flag them.
	d.AddOp("count", func() int { return 0 }).ExecuteAtLeast(5)

	d.Types.SetEqual(reflect.TypeOf(0), func(a, b any) bool { return false })

	d.TestEquivalence(reflect.TypeOf(aType{}), reflect.TypeOf(bType{}), func(a, b valuepool.Value) bool {
		return a.Data.(*aType).V == b.Data.(*bType).V
	})

	require.NoError(t, d.Execute(rand.New(rand.NewPCG(2, 4))))
	require.True(t, bus.DidFail())
	require.Contains(t, bus.FirstFailure().Message, `equivalence mismatch for op "count"`)
}

func TestAddValue_SeedsPoolWithoutAGenerator(t *testing.T) {
	bus := assertbus.New()
	d := mctdriver.New(bus, nil)

	d.AddOp("inc", func(c *counter) { c.n++ }).ExecuteAtLeast(10)
	d.AddValue(counter{n: 5})

	require.NoError(t, d.Execute(rand.New(rand.NewPCG(3, 4))))
	require.False(t, bus.DidFail())
}

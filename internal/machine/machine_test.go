package machine_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcana-nexus/nexus/internal/assertbus"
	"github.com/arcana-nexus/nexus/internal/fndesc"
	"github.com/arcana-nexus/nexus/internal/machine"
)

type stack struct {
	items []int
}

func stackOps() []*fndesc.Descriptor {
	return []*fndesc.Descriptor{
		fndesc.New("emptyStack", func() stack { return stack{} }).ExecuteAtLeast(0),
		fndesc.New("smallInt", func() int { return 1 }).ExecuteAtLeast(0),
		fndesc.New("push", func(s *stack, v int) { s.items = append(s.items, v) }).ExecuteAtLeast(50),
		fndesc.New("pop", func(s *stack) int {
			n := len(s.items)
			if n == 0 {
				return 0
			}

			v := s.items[n-1]
			s.items = s.items[:n-1]

			return v
		}).ExecuteAtLeast(20),
		fndesc.New("size", func(s stack) int { return len(s.items) }).ExecuteAtLeast(20),
	}
}

func TestBuild_RejectsMissingSafeGenerator(t *testing.T) {
	push := fndesc.New("push", func(s *stack, v int) { s.items = append(s.items, v) })

	_, err := machine.Build([]*fndesc.Descriptor{push}, nil)
	require.Error(t, err)
}

func TestBuild_RejectsEmptyTestFunctions(t *testing.T) {
	inv := fndesc.New("nonNegative", func(n int) bool { return n >= 0 }).ExecuteAtLeast(0)
	inv.MarkInvariant()

	// A seeded int satisfies the generator check, so only the missing
	// test functions can reject the setup.
	_, err := machine.Build([]*fndesc.Descriptor{inv}, nil, fndesc.Box(1))
	require.ErrorContains(t, err, "no functions to test")
}

func TestRun_ExecutesEveryFunctionAtLeastMinTimes(t *testing.T) {
	descs := stackOps()

	m, err := machine.Build(descs, assertbus.New())
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(42, 7))
	require.NoError(t, m.Run(rng))

	for _, f := range descs {
		require.GreaterOrEqualf(t, f.Executions, f.MinExecutions, "function %q under-executed", f.Name)
	}
}

func TestRun_FallbackPerturbsPoolUntilPreconditionHolds(t *testing.T) {
	descs := []*fndesc.Descriptor{
		fndesc.New("zero", func() int { return 0 }).ExecuteAtLeast(0),
		fndesc.New("increment", func(n *int) { *n++ }).ExecuteAtLeast(0),
		fndesc.New("consumePositive", func(n int) int { return n }).
			ExecuteAtLeast(5).
			When(func(n int) bool { return n > 0 }),
	}

	m, err := machine.Build(descs, assertbus.New())
	require.NoError(t, err)

	// Every pool value starts at zero, so consumePositive's precondition
	// only ever holds after a fallback ran increment on some slot.
	rng := rand.New(rand.NewPCG(3, 4))
	require.NoError(t, m.Run(rng))

	require.GreaterOrEqual(t, descs[2].Executions, 5)
}

func TestRun_InvariantFailureRaisesOnBus(t *testing.T) {
	descs := []*fndesc.Descriptor{
		fndesc.New("zero", func() int { return 0 }).ExecuteAtLeast(0),
		fndesc.New("increment", func(n *int) { *n++ }).ExecuteAtLeast(30),
	}

	tooSmall := fndesc.New("neverIncremented", func(n int) bool { return n == 0 })
	tooSmall.MarkInvariant()
	descs = append(descs, tooSmall)

	bus := assertbus.New()
	bus.AlwaysTerminate = true

	m, err := machine.Build(descs, bus)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))

	reason, failed := assertbus.Catch(func() {
		_ = m.Run(rng)
	})

	require.True(t, failed)
	require.Contains(t, reason, "neverIncremented")
}

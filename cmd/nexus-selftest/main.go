// Command nexus-selftest is a small example test binary exercising the
// nexus public API end to end: a machine-based test over a toy stack, a
// fuzz test, and a plain check-based test. It doubles as a smoke test of
// the whole pipeline (registration -> selection -> machine -> trace ->
// report).
package main

import (
	"math/rand/v2"
	"os"

	"github.com/arcana-nexus/nexus"
)

type intStack struct {
	items []int
}

func init() {
	nexus.Test("stack/push-pop-invariants", func(t *nexus.T) {
		mt := nexus.NewMachineTest(t)

		mt.AddOp("newStack", func() intStack {
			return intStack{}
		})

		mt.AddOp("smallInt", func() int {
			return 7
		})

		mt.AddOp("push", func(s *intStack, v int) {
			s.items = append(s.items, v)
		})

		mt.AddOp("pop", func(s *intStack) int {
			if len(s.items) == 0 {
				return 0
			}

			last := s.items[len(s.items)-1]
			s.items = s.items[:len(s.items)-1]

			return last
		}).ExecuteAtLeast(20)

		mt.AddInvariant("neverNegativeLength", func(s intStack) bool {
			return len(s.items) >= 0
		})

		mt.Execute()
	})

	nexus.Test("arith/commutative-add-fuzz", func(t *nexus.T) {
		nexus.Fuzz(t, nexus.FuzzOptions{MaxIterations: 2000}, func(t *nexus.T, rng *rand.Rand) {
			a, b := rng.IntN(1000), rng.IntN(1000)
			nexus.CheckEqual(t, a+b, b+a)
		})
	})

	nexus.Test("check/basic-arithmetic", func(t *nexus.T) {
		nexus.RequireEqual(t, 2+2, 4)
		nexus.CheckTrue(t, 1 < 2)
	})
}

func main() {
	os.Exit(nexus.Run(os.Args[1:]))
}

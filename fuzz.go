package nexus

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/arcana-nexus/nexus/internal/fuzzdriver"
	"github.com/arcana-nexus/nexus/internal/registry"
)

// FuzzOptions configures a Fuzz run. Leaving both fields zero applies
// a default iteration budget; the loop only runs unbounded when the
// test (or the --endless flag) asks for endless mode.
type FuzzOptions struct {
	MaxIterations int
	MaxDuration   time.Duration
}

// defaultFuzzIterations bounds a Fuzz call whose options carry no
// budget of their own.
const defaultFuzzIterations = 10000

// Fuzz repeatedly calls f with a fresh, deterministically-derived *rand.Rand
// until f raises an assertion failure (a failed Require, or a failed
// Check on a bus that escalates every failure) or the budget in opts
// expires, whichever comes first. A failed Check that does not raise is
// counted on the test but does not stop the loop. On failure it records a
// reproduction string on t's Test so the Runner's report and a later
// `--repr <seed>` invocation can replay exactly that iteration.
func Fuzz(t *T, opts FuzzOptions, f func(t *T, rng *rand.Rand)) {
	test := t.handle.Test

	if test.Reproduction != nil && test.Reproduction.Kind == registry.ReproductionSeed {
		fuzzdriver.Reproduce(test.Reproduction.Seed, func(rng *rand.Rand) {
			f(t, rng)
		})

		return
	}

	if opts.MaxIterations <= 0 && opts.MaxDuration <= 0 {
		opts.MaxIterations = defaultFuzzIterations
	}

	result := fuzzdriver.Run(fuzzdriver.Options{
		Seed:          test.Seed,
		MaxIterations: opts.MaxIterations,
		MaxDuration:   opts.MaxDuration,
		Endless:       test.Endless,
		Progress: func(iterations int) {
			fmt.Fprintf(os.Stderr, "%s: %d iterations\n", test.Name, iterations)
		},
	}, func(rng *rand.Rand) {
		f(t, rng)
	})

	if result.Failed {
		test.Outcome.ReproduceString = strconv.FormatUint(result.FailedAtSeed, 10)

		RequireTrue(t, false, result.FailureReason)
	}
}

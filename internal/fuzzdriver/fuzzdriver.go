// Package fuzzdriver implements the seeded fuzzing loop: given a user
// closure, it repeatedly draws a fresh per-iteration seed from a base
// RNG and calls the closure with an RNG derived from it, until a budget
// expires or the closure raises the assertion-failure signal. Carving
// every iteration's randomness out of one top-level seed keeps any
// single iteration reproducible from its seed alone.
package fuzzdriver

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/arcana-nexus/nexus/internal/assertbus"
)

// Options configures one Run call.
type Options struct {
	// Seed is the test's top-level seed; every iteration's RNG is
	// derived from it plus the iteration count, never from wall-clock
	// time.
	Seed uint64

	// MaxIterations bounds the loop by iteration count. Zero means
	// unbounded by iteration count.
	MaxIterations int

	// MaxDuration bounds the loop by elapsed wall-clock time. Zero
	// means unbounded by time.
	MaxDuration time.Duration

	// Endless, when true, ignores both budgets and never stops on its
	// own.
	Endless bool

	// Progress, if set, is called roughly once a second in Endless mode
	// with the iteration count so far.
	Progress func(iterations int)
}

// Result is what Run reports back to the caller (the Runner).
type Result struct {
	Iterations int
	// FailedAtSeed is set when the closure raised the assertion-failure
	// signal; it is the per-iteration seed that reproduces the failure.
	FailedAtSeed  uint64
	Failed        bool
	FailureReason string
}

// Run drives f(rng) repeatedly under opts until it fails or its budget
// expires.
func Run(opts Options, f func(rng *rand.Rand)) Result {
	base := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0xd6e8feb86659fd93))

	start := time.Now()
	lastProgress := start

	for i := 0; opts.Endless || opts.MaxIterations <= 0 || i < opts.MaxIterations; i++ {
		if !opts.Endless && opts.MaxDuration > 0 && time.Since(start) >= opts.MaxDuration {
			return Result{Iterations: i}
		}

		iterSeed := base.Uint64()
		iterRNG := rand.New(rand.NewPCG(iterSeed, iterSeed^0x9e3779b97f4a7c15))

		reason, failed := assertbus.Catch(func() {
			f(iterRNG)
		})

		if failed {
			return Result{Iterations: i + 1, Failed: true, FailedAtSeed: iterSeed, FailureReason: reason}
		}

		if opts.Endless && opts.Progress != nil && time.Since(lastProgress) >= time.Second {
			opts.Progress(i + 1)
			lastProgress = time.Now()
		}
	}

	return Result{Iterations: opts.MaxIterations}
}

// Reproduce replays exactly one iteration seeded from seed, without
// catching the assertion-failure signal, letting it propagate to a
// debugger.
func Reproduce(seed uint64, f func(rng *rand.Rand)) {
	iterRNG := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	f(iterRNG)
}

// ParseReproduceArg parses a `--repr` value as a fuzz seed (decimal
// uint64). The whole string must be digits; anything else is a trace
// string, not a seed.
func ParseReproduceArg(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("fuzzdriver: empty reproduction string")
	}

	var v uint64

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("fuzzdriver: %q is not a valid numeric seed", s)
		}

		v = v*10 + uint64(c-'0')
	}

	return v, nil
}

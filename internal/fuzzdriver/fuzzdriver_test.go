package fuzzdriver_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcana-nexus/nexus/internal/assertbus"
	"github.com/arcana-nexus/nexus/internal/fuzzdriver"
)

func TestRun_StopsAtMaxIterationsWhenNeverFailing(t *testing.T) {
	var calls int

	res := fuzzdriver.Run(fuzzdriver.Options{Seed: 1, MaxIterations: 50}, func(rng *rand.Rand) {
		calls++
	})

	require.Equal(t, 50, calls)
	require.Equal(t, 50, res.Iterations)
	require.False(t, res.Failed)
}

func TestRun_StopsOnFailureAndRecordsIterationSeed(t *testing.T) {
	bus := assertbus.New()

	res := fuzzdriver.Run(fuzzdriver.Options{Seed: 42, MaxIterations: 200000}, func(rng *rand.Rand) {
		n := rng.IntN(1000)
		bus.RecordResult(n != 777 && n != 0, true, "f.go", 1, "hit forbidden value")
	})

	require.True(t, res.Failed)
	require.LessOrEqual(t, res.Iterations, 200000)
}

func TestRun_MaxDurationBoundsTheLoop(t *testing.T) {
	res := fuzzdriver.Run(fuzzdriver.Options{Seed: 7, MaxDuration: 10 * time.Millisecond}, func(rng *rand.Rand) {
		time.Sleep(time.Millisecond)
	})

	require.False(t, res.Failed)
	require.Greater(t, res.Iterations, 0)
}

func TestRun_SameSeedProducesSameIterationSequence(t *testing.T) {
	collect := func(seed uint64) []uint64 {
		var vals []uint64

		fuzzdriver.Run(fuzzdriver.Options{Seed: seed, MaxIterations: 10}, func(rng *rand.Rand) {
			vals = append(vals, rng.Uint64())
		})

		return vals
	}

	require.Equal(t, collect(99), collect(99))
}

func TestReproduce_ReplaysTheExactIterationForAFailingSeed(t *testing.T) {
	bus := assertbus.New()

	res := fuzzdriver.Run(fuzzdriver.Options{Seed: 5, MaxIterations: 200000}, func(rng *rand.Rand) {
		n := rng.IntN(1000)
		bus.RecordResult(n != 321, true, "f.go", 1, "hit forbidden value")
	})
	require.True(t, res.Failed)

	var replayedN int

	reason, failed := assertbus.Catch(func() {
		fuzzdriver.Reproduce(res.FailedAtSeed, func(rng *rand.Rand) {
			replayedN = rng.IntN(1000)
			bus.RecordResult(replayedN != 321, true, "f.go", 1, "hit forbidden value")
		})
	})

	require.True(t, failed)
	require.NotEmpty(t, reason)
	require.Equal(t, 321, replayedN)
}

func TestParseReproduceArg(t *testing.T) {
	v, err := fuzzdriver.ParseReproduceArg("123456")
	require.NoError(t, err)
	require.Equal(t, uint64(123456), v)

	_, err = fuzzdriver.ParseReproduceArg("")
	require.Error(t, err)

	_, err = fuzzdriver.ParseReproduceArg("12x34")
	require.Error(t, err)

	// A trace-codec string starting with digits must not be silently
	// accepted as a partial numeric match.
	_, err = fuzzdriver.ParseReproduceArg("5A2")
	require.Error(t, err)
}

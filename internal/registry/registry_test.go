package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcana-nexus/nexus/internal/registry"
)

func TestRegisterTest_PreservesRegistrationOrder(t *testing.T) {
	r := &registry.Registry{}

	first := r.RegisterTest(&registry.Test{Name: "a"})
	second := r.RegisterTest(&registry.Test{Name: "b"})

	got := r.AllTests()
	require.Len(t, got, 2)
	require.Same(t, first, got[0])
	require.Same(t, second, got[1])
}

func TestConfigure_AppliesOptionsInOrder(t *testing.T) {
	test := &registry.Test{Name: "t"}

	registry.Configure(test,
		registry.ShouldFail(),
		registry.Seed(42),
		registry.OptInGroup("slow"),
		registry.OptInGroup("flaky"),
	)

	require.True(t, test.ShouldFail)
	require.True(t, test.SeedOverwritten)
	require.Equal(t, uint64(42), test.Seed)
	require.Equal(t, []string{"slow", "flaky"}, test.OptInGroups)
}

func TestConfigure_ReproduceTrace(t *testing.T) {
	test := &registry.Test{Name: "t"}
	registry.Configure(test, registry.ReproduceTrace("ab:cd"))

	require.NotNil(t, test.Reproduction)
	require.Equal(t, registry.ReproductionTrace, test.Reproduction.Kind)
	require.Equal(t, "ab:cd", test.Reproduction.Trace)
}

func TestRegisterApp(t *testing.T) {
	r := &registry.Registry{}
	app := r.RegisterApp(&registry.App{Name: "mytool"})

	got := r.AllApps()
	require.Len(t, got, 1)
	require.Same(t, app, got[0])
}

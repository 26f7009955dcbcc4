package fndesc_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcana-nexus/nexus/internal/fndesc"
	"github.com/arcana-nexus/nexus/internal/valuepool"
)

type stack struct {
	items []int
}

func TestNew_ClassifiesArgsAndReturn(t *testing.T) {
	push := func(s *stack, v int) { s.items = append(s.items, v) }
	d := fndesc.New("push", push)

	require.Equal(t, "push", d.Name)
	require.Equal(t, 2, d.Arity())
	require.Equal(t, reflect.TypeOf(stack{}), d.ArgTypes[0])
	require.True(t, d.ArgIsMutable[0])
	require.Equal(t, reflect.TypeOf(0), d.ArgTypes[1])
	require.False(t, d.ArgIsMutable[1])
	require.Equal(t, valuepool.Void, d.ReturnType)
}

func TestExecute_MutatesInPlace(t *testing.T) {
	push := func(s *stack, v int) { s.items = append(s.items, v) }
	d := fndesc.New("push", push)

	s := &stack{}
	sVal := valuepool.Value{Type: reflect.TypeOf(stack{}), Data: s}
	vVal := valuepool.NewValue(0)
	box := reflect.New(reflect.TypeOf(0))
	box.Elem().SetInt(7)
	vVal.Data = box.Interface()

	result := d.Execute([]valuepool.Value{sVal, vVal})

	require.True(t, result.IsVoid())
	require.Equal(t, []int{7}, s.items)
}

func TestExecute_ReturnsBoxedValue(t *testing.T) {
	gen := func() int { return 42 }
	d := fndesc.New("gen", gen)

	result := d.Execute(nil)

	require.False(t, result.IsVoid())
	require.Equal(t, 42, *(result.Data.(*int)))
}

func TestMarkInvariant_RequiresArityAndReturnType(t *testing.T) {
	ok := fndesc.New("nonNegative", func(i int) bool { return i >= 0 })
	require.NotPanics(t, func() { ok.MarkInvariant() })
	require.True(t, ok.IsInvariant)

	badReturn := fndesc.New("bad", func(i int) int { return i })
	require.Panics(t, func() { badReturn.MarkInvariant() })

	badArity := fndesc.New("bad2", func() bool { return true })
	require.Panics(t, func() { badArity.MarkInvariant() })
}

func TestWhen_SingleArgPreconditionAppliesToEveryMatchingArg(t *testing.T) {
	add := fndesc.New("add", func(a, b int) int { return a + b })
	add.When(func(x int) bool { return x >= 0 })

	pass := []valuepool.Value{intVal(1), intVal(2)}
	require.True(t, add.CheckPrecondition(pass))

	fail := []valuepool.Value{intVal(1), intVal(-2)}
	require.False(t, add.CheckPrecondition(fail))
}

func TestWhen_MultiArgPreconditionMatchesPrefix(t *testing.T) {
	add := fndesc.New("add", func(a, b int) int { return a + b })
	add.When(func(a, b int) bool { return a < b })

	require.True(t, add.CheckPrecondition([]valuepool.Value{intVal(1), intVal(2)}))
	require.False(t, add.CheckPrecondition([]valuepool.Value{intVal(5), intVal(2)}))
}

func TestWhenNot_NegatesPredicate(t *testing.T) {
	add := fndesc.New("add", func(a, b int) int { return a + b })
	add.WhenNot(func(a, b int) bool { return a < b })

	require.False(t, add.CheckPrecondition([]valuepool.Value{intVal(1), intVal(2)}))
	require.True(t, add.CheckPrecondition([]valuepool.Value{intVal(5), intVal(2)}))
}

func TestWhenGreaterThan(t *testing.T) {
	pop := fndesc.New("sized", func(n int) int { return n })
	pop.WhenGreaterThan(func(n int) int { return n }, 0)

	require.True(t, pop.CheckPrecondition([]valuepool.Value{intVal(5)}))
	require.False(t, pop.CheckPrecondition([]valuepool.Value{intVal(0)}))
}

func TestWhen_PanicsOnSecondPrecondition(t *testing.T) {
	d := fndesc.New("f", func(a int) int { return a })
	d.When(func(a int) bool { return true })

	require.Panics(t, func() { d.When(func(a int) bool { return true }) })
}

func intVal(n int) valuepool.Value {
	box := reflect.New(reflect.TypeOf(0))
	box.Elem().SetInt(int64(n))

	return valuepool.Value{Type: reflect.TypeOf(0), Data: box.Interface()}
}

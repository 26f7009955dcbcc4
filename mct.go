package nexus

import (
	"fmt"
	"reflect"

	"github.com/arcana-nexus/nexus/internal/fndesc"
	"github.com/arcana-nexus/nexus/internal/mctdriver"
	"github.com/arcana-nexus/nexus/internal/valuepool"
)

// MachineTest is the public model-based testing driver: a thin
// registration facade over internal/mctdriver.Driver whose Execute()
// call triggers the actual run.
type MachineTest struct {
	t      *T
	driver *mctdriver.Driver
}

// NewMachineTest returns a MachineTest bound to t's AssertionBus.
func NewMachineTest(t *T) *MachineTest {
	driver := mctdriver.New(t.handle.Bus, t.handle.Test)
	t.handle.Test.SetMCTOwner(driver)

	return &MachineTest{t: t, driver: driver}
}

// AddOp registers an operation. fn's parameter list and return value
// determine its arity, mutability, and generator classification; chain
// `.ExecuteAtLeast(n)`/`.When(pred)` on the returned Descriptor to
// configure it further.
func (m *MachineTest) AddOp(name string, fn any) *fndesc.Descriptor {
	return m.driver.AddOp(name, fn)
}

// AddInvariant registers an invariant, auto-run after any write (a
// mutation or a returned value) to a value of one of its argument types.
func (m *MachineTest) AddInvariant(name string, fn any) *fndesc.Descriptor {
	return m.driver.AddInvariant(name, fn)
}

// AddValue seeds the pool with a literal value, letting ops that take
// v's type run even without a registered generator for it.
func (m *MachineTest) AddValue(v any) {
	m.driver.AddValue(v)
}

// TestEquivalence registers an equivalence check between two types,
// inferred from test's two parameter types. test must be
// `func(a A, b B) bool`: after every step that produced or mutated an A
// value, it receives that value and its structurally-paired B value.
func (m *MachineTest) TestEquivalence(test any) {
	fnVal := reflect.ValueOf(test)
	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func || fnType.NumIn() != 2 || fnType.NumOut() != 1 || fnType.Out(0).Kind() != reflect.Bool {
		panic(fmt.Sprintf("nexus: TestEquivalence(%v): test must be func(a, b T) bool", fnType))
	}

	typeA, typeB := fnType.In(0), fnType.In(1)

	m.driver.TestEquivalence(typeA, typeB, func(a, b valuepool.Value) bool {
		out := fnVal.Call([]reflect.Value{reflect.ValueOf(a.Data).Elem(), reflect.ValueOf(b.Data).Elem()})

		return out[0].Bool()
	})
}

// Execute runs the registered machine to completion, recording a trace
// and reporting any invariant or equivalence failure as a failed check
// on t.
func (m *MachineTest) Execute() {
	if err := m.driver.Execute(m.t.handle.Rand); err != nil {
		RequireTrue(m.t, false, err.Error())
	}
}

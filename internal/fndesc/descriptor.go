// Package fndesc wraps an arbitrary Go callable in the runtime metadata
// the machine scheduler needs for dynamic dispatch: argument types, a
// per-argument mutability mask, the return type, an optional
// precondition, and execution bookkeeping. The signature is read with
// package reflect, so any func with a fixed arity and at most one
// return value works.
//
// Convention: a pointer parameter (*T) denotes a mutable argument of
// logical type T; that is where an operation writes back into the
// pool. A value stored in the pool for logical type T is always
// internally boxed as *T so that mutation in place is possible
// regardless of how any given operation happens to consume it.
package fndesc

import (
	"fmt"
	"reflect"

	"github.com/arcana-nexus/nexus/internal/valuepool"
)

// Descriptor is the runtime metadata wrapping one user-supplied
// operation for dynamic dispatch by the machine scheduler.
type Descriptor struct {
	Name          string
	ArgTypes      []reflect.Type
	ArgIsMutable  []bool
	ReturnType    reflect.Type // valuepool.Void if the op returns nothing
	IsInvariant   bool
	IsOptional    bool
	MinExecutions int
	Executions    int
	InternalIndex int

	fn           reflect.Value
	precondition *precondition
}

type precondition struct {
	fn       reflect.Value
	argTypes []reflect.Type // logical (non-pointer) types
}

// New builds a Descriptor from name and an arbitrary function value fn.
// fn's parameter list determines ArgTypes/ArgIsMutable; its (0 or 1)
// return value determines ReturnType.
func New(name string, fn any) *Descriptor {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func {
		panic(fmt.Sprintf("fndesc.New(%q): fn must be a function, got %s", name, fnType.Kind()))
	}

	d := &Descriptor{
		Name:          name,
		fn:            fnVal,
		MinExecutions: 100,
		InternalIndex: -1,
	}

	for i := 0; i < fnType.NumIn(); i++ {
		paramType := fnType.In(i)

		if paramType.Kind() == reflect.Pointer {
			d.ArgTypes = append(d.ArgTypes, paramType.Elem())
			d.ArgIsMutable = append(d.ArgIsMutable, true)
		} else {
			d.ArgTypes = append(d.ArgTypes, paramType)
			d.ArgIsMutable = append(d.ArgIsMutable, false)
		}
	}

	switch fnType.NumOut() {
	case 0:
		d.ReturnType = valuepool.Void
	case 1:
		d.ReturnType = fnType.Out(0)
	default:
		panic(fmt.Sprintf("fndesc.New(%q): fn must return 0 or 1 values, got %d", name, fnType.NumOut()))
	}

	return d
}

// Arity returns the number of arguments this op takes.
func (d *Descriptor) Arity() int {
	return len(d.ArgTypes)
}

// ExecuteAtLeast sets the minimum number of executions the machine must
// reach before this op is no longer a test function.
func (d *Descriptor) ExecuteAtLeast(n int) *Descriptor {
	d.MinExecutions = n

	return d
}

// MarkInvariant marks this op as an invariant. An invariant must return
// nothing or bool and take at least one argument.
func (d *Descriptor) MarkInvariant() *Descriptor {
	if d.ReturnType != valuepool.Void && d.ReturnType.Kind() != reflect.Bool {
		panic(fmt.Sprintf("fndesc: invariant %q must return void or bool", d.Name))
	}

	if d.Arity() < 1 {
		panic(fmt.Sprintf("fndesc: invariant %q must have arity >= 1", d.Name))
	}

	d.IsInvariant = true

	return d
}

// box wraps v (a reflect.Value of the op's logical return/arg type) into
// an addressable *T so the pool can store it and later mutate it in
// place.
func box(v reflect.Value) valuepool.Value {
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)

	return valuepool.Value{Type: v.Type(), Data: ptr.Interface()}
}

// Box wraps v the same way a Descriptor's return value is boxed: as a
// fresh addressable *T so the pool can later mutate it in place. Used by
// package nexus's MachineTest.AddValue to seed the pool with a literal
// value instead of only ever producing one via a generator.
func Box(v any) valuepool.Value {
	return box(reflect.ValueOf(v))
}

// unboxForCall returns the reflect.Value to pass as the callable's i-th
// argument: the stored pointer itself if the parameter is mutable, or a
// dereferenced copy otherwise.
func unboxForCall(val valuepool.Value, mutable bool) reflect.Value {
	ptr := reflect.ValueOf(val.Data)

	if mutable {
		return ptr
	}

	return ptr.Elem()
}

// Execute invokes the wrapped callable with args (one valuepool.Value
// per ArgTypes entry, in order) and returns its boxed result, or
// valuepool.VoidValue() if the op returns nothing.
func (d *Descriptor) Execute(args []valuepool.Value) valuepool.Value {
	if len(args) != len(d.ArgTypes) {
		panic(fmt.Sprintf("fndesc: %q expects %d args, got %d", d.Name, len(d.ArgTypes), len(args)))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = unboxForCall(a, d.ArgIsMutable[i])
	}

	out := d.fn.Call(in)

	if d.ReturnType == valuepool.Void || len(out) == 0 {
		return valuepool.VoidValue()
	}

	return box(out[0])
}

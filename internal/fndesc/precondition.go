package fndesc

import (
	"fmt"
	"reflect"

	"github.com/arcana-nexus/nexus/internal/valuepool"
)

// When attaches a precondition predicate.
//
// pred's parameter list must either:
//   - have length 1, matching at least one of d's argument types; the
//     precondition is then applied to every argument of that type, and
//     all of them must pass, or
//   - match d's argument-type prefix one-for-one.
//
// pred must return a single bool.
func (d *Descriptor) When(pred any) *Descriptor {
	if d.precondition != nil {
		panic(fmt.Sprintf("fndesc: %q already has a precondition", d.Name))
	}

	predVal := reflect.ValueOf(pred)
	predType := predVal.Type()

	if predType.Kind() != reflect.Func || predType.NumOut() != 1 || predType.Out(0).Kind() != reflect.Bool {
		panic(fmt.Sprintf("fndesc: %q precondition must be a func(...) bool", d.Name))
	}

	argTypes := make([]reflect.Type, predType.NumIn())
	for i := range argTypes {
		argTypes[i] = predType.In(i)
	}

	if len(argTypes) == 1 {
		matches := false
		for _, at := range d.ArgTypes {
			if at == argTypes[0] {
				matches = true

				break
			}
		}

		if !matches {
			panic(fmt.Sprintf("fndesc: %q precondition arg type %s matches none of the op's argument types", d.Name, argTypes[0]))
		}
	} else {
		if len(argTypes) > len(d.ArgTypes) {
			panic(fmt.Sprintf("fndesc: %q precondition has more arguments than the op", d.Name))
		}

		for i, at := range argTypes {
			if at != d.ArgTypes[i] {
				panic(fmt.Sprintf("fndesc: %q precondition argument %d type %s does not match op argument type %s", d.Name, i, at, d.ArgTypes[i]))
			}
		}
	}

	d.precondition = &precondition{fn: predVal, argTypes: argTypes}

	return d
}

// WhenNot attaches the logical negation of pred as a precondition.
func (d *Descriptor) WhenNot(pred any) *Descriptor {
	predVal := reflect.ValueOf(pred)
	predType := predVal.Type()

	negated := reflect.MakeFunc(predType, func(args []reflect.Value) []reflect.Value {
		result := predVal.Call(args)

		return []reflect.Value{reflect.ValueOf(!result[0].Bool())}
	})

	return d.When(negated.Interface())
}

// compareBuilder returns a When-compatible predicate composing getter
// (a func(...) V) with a comparison against want, using cmp to decide
// the verdict from the getter's three-way-ish outcome.
//
// cmp receives (got, want reflect.Value) of the getter's return type and
// must return the precondition's bool verdict.
func compareBuilder(getter any, want any, cmp func(got, want reflect.Value) bool) any {
	getterVal := reflect.ValueOf(getter)
	getterType := getterVal.Type()
	wantVal := reflect.ValueOf(want)

	boolType := reflect.TypeOf(false)
	outTypes := make([]reflect.Type, getterType.NumIn())

	for i := range outTypes {
		outTypes[i] = getterType.In(i)
	}

	predType := reflect.FuncOf(outTypes, []reflect.Type{boolType}, false)

	composed := reflect.MakeFunc(predType, func(args []reflect.Value) []reflect.Value {
		got := getterVal.Call(args)[0]

		return []reflect.Value{reflect.ValueOf(cmp(got, wantVal))}
	})

	return composed.Interface()
}

// WhenEqual attaches a precondition requiring getter(...) == value.
func (d *Descriptor) WhenEqual(getter any, value any) *Descriptor {
	return d.When(compareBuilder(getter, value, func(got, want reflect.Value) bool {
		return got.Interface() == want.Interface()
	}))
}

// WhenNotEqual attaches a precondition requiring getter(...) != value.
func (d *Descriptor) WhenNotEqual(getter any, value any) *Descriptor {
	return d.When(compareBuilder(getter, value, func(got, want reflect.Value) bool {
		return got.Interface() != want.Interface()
	}))
}

// ordered compares two reflect.Values of the same ordered kind, -1/0/1.
func ordered(got, want reflect.Value) int {
	switch got.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch a, b := got.Int(), want.Int(); {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch a, b := got.Uint(), want.Uint(); {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case reflect.Float32, reflect.Float64:
		switch a, b := got.Float(), want.Float(); {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case reflect.String:
		switch a, b := got.String(), want.String(); {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	default:
		panic(fmt.Sprintf("fndesc: ordered comparison unsupported for kind %s", got.Kind()))
	}
}

// WhenGreaterThan attaches a precondition requiring getter(...) > value.
func (d *Descriptor) WhenGreaterThan(getter any, value any) *Descriptor {
	return d.When(compareBuilder(getter, value, func(got, want reflect.Value) bool { return ordered(got, want) > 0 }))
}

// WhenGreaterOrEqual attaches a precondition requiring getter(...) >= value.
func (d *Descriptor) WhenGreaterOrEqual(getter any, value any) *Descriptor {
	return d.When(compareBuilder(getter, value, func(got, want reflect.Value) bool { return ordered(got, want) >= 0 }))
}

// WhenLessThan attaches a precondition requiring getter(...) < value.
func (d *Descriptor) WhenLessThan(getter any, value any) *Descriptor {
	return d.When(compareBuilder(getter, value, func(got, want reflect.Value) bool { return ordered(got, want) < 0 }))
}

// WhenLessOrEqual attaches a precondition requiring getter(...) <= value.
func (d *Descriptor) WhenLessOrEqual(getter any, value any) *Descriptor {
	return d.When(compareBuilder(getter, value, func(got, want reflect.Value) bool { return ordered(got, want) <= 0 }))
}

// HasPrecondition reports whether a precondition is attached.
func (d *Descriptor) HasPrecondition() bool {
	return d.precondition != nil
}

// CheckPrecondition evaluates the attached precondition (if any)
// against the sampled argument values. It returns true when there is no
// precondition. args must have one entry per ArgTypes, in order;
// preconditions always see read-only (dereferenced) copies.
func (d *Descriptor) CheckPrecondition(args []valuepool.Value) bool {
	if d.precondition == nil {
		return true
	}

	p := d.precondition

	deref := func(i int) reflect.Value { return unboxForCall(args[i], false) }

	if len(p.argTypes) == 1 && len(d.ArgTypes) != 1 {
		// Single-argument precondition: apply to every matching arg.
		allPass := true

		for i, at := range d.ArgTypes {
			if at != p.argTypes[0] {
				continue
			}

			result := p.fn.Call([]reflect.Value{deref(i)})
			if !result[0].Bool() {
				allPass = false

				break
			}
		}

		return allPass
	}

	// Multi-argument (or single-arg-that-is-the-whole-signature) precondition:
	// match the prefix one-for-one.
	in := make([]reflect.Value, len(p.argTypes))
	for i := range in {
		in[i] = deref(i)
	}

	result := p.fn.Call(in)

	return result[0].Bool()
}

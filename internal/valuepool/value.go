// Package valuepool implements the type-erased Value box and the
// per-type ValueSet bookkeeping the machine scheduler samples from.
//
// A Value is just {type, data any}; the garbage collector owns the
// storage. The only per-type hooks are optional Equal and String
// functions: identity equality is never defined on values; comparisons
// use the user-registered per-type equality when one exists, else
// reflect.DeepEqual.
package valuepool

import (
	"fmt"
	"reflect"
)

// Void is the shared type tag for a value carrying no object.
var Void = reflect.TypeOf(struct{}{})

// Value is an owned, type-erased box. IsVoid reports whether it holds
// no object.
type Value struct {
	Type reflect.Type
	Data any
}

// NewValue wraps v with its dynamic type.
func NewValue(v any) Value {
	if v == nil {
		return Value{Type: Void}
	}

	return Value{Type: reflect.TypeOf(v), Data: v}
}

// VoidValue returns the singleton void value.
func VoidValue() Value {
	return Value{Type: Void}
}

// IsVoid reports whether this value holds no object.
func (v Value) IsVoid() bool {
	return v.Type == nil || v.Type == Void
}

// TypeInfo is the small per-type vtable: optional Equal and String
// hooks. Equal defaults to reflect.DeepEqual and String defaults to
// fmt.Sprintf("%v", ...) with a placeholder fallback.
type TypeInfo struct {
	Equal  func(a, b any) bool
	String func(v any) string
}

// Registry maps a reflect.Type to its registered TypeInfo.
type Registry struct {
	infos map[reflect.Type]TypeInfo
}

// NewRegistry returns an empty type-info registry.
func NewRegistry() *Registry {
	return &Registry{infos: make(map[reflect.Type]TypeInfo)}
}

// Default is the process-wide type registry. The public
// RegisterTypeString/RegisterTypeEqual helpers write to it at init
// time, the same discipline as test registration; the Check protocol
// and the equivalence driver read it while tests run.
var Default = NewRegistry()

// SetString registers a custom string-representation hook for T values.
func (r *Registry) SetString(t reflect.Type, fn func(v any) string) {
	info := r.infos[t]
	info.String = fn
	r.infos[t] = info
}

// SetEqual registers a custom equality hook for T values.
func (r *Registry) SetEqual(t reflect.Type, fn func(a, b any) bool) {
	info := r.infos[t]
	info.Equal = fn
	r.infos[t] = info
}

// Repr formats v using its registered printer, falling back to
// fmt.Sprintf and finally to a placeholder if that panics.
func (r *Registry) Repr(v any) (repr string) {
	if v == nil {
		return "<nil>"
	}

	defer func() {
		if recover() != nil {
			repr = "<unprintable>"
		}
	}()

	if r != nil {
		if info, ok := r.infos[reflect.TypeOf(v)]; ok && info.String != nil {
			return info.String(v)
		}
	}

	return fmt.Sprintf("%v", v)
}

// Equal compares a and b using a's registered equality hook, falling
// back to reflect.DeepEqual.
func (r *Registry) Equal(a, b any) bool {
	if r != nil {
		if a != nil {
			if info, ok := r.infos[reflect.TypeOf(a)]; ok && info.Equal != nil {
				return info.Equal(a, b)
			}
		}
	}

	return reflect.DeepEqual(a, b)
}

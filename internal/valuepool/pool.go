package valuepool

// FuncRef is an opaque handle to a Function Descriptor as seen from
// valuepool's point of view. The machine package supplies concrete
// *fndesc.Descriptor values; valuepool only needs to store and hand
// them back, so it is typed as `any` to avoid an import cycle between
// valuepool and fndesc (fndesc itself stores argument/return
// reflect.Types, not ValueSets).
type FuncRef = any

// ValueSet holds every live value of one type inside a single Machine
// run, plus the function classification needed to sample and execute
// ops against that type.
type ValueSet struct {
	Vars []Value

	// Generators return this type, regardless of whether it also
	// appears among their arguments.
	Generators []FuncRef

	// SafeGenerators are Generators whose return type equals none of
	// their argument types: they can produce a value "from nothing".
	SafeGenerators []FuncRef

	// MutatorsOrGenerators is the union of Generators and every op that
	// takes this type by pointer. They are the fallback pool when a
	// precondition keeps rejecting sampled arguments: running one either
	// produces a fresh value of this type or perturbs an existing one.
	MutatorsOrGenerators []FuncRef

	// Invariants are auto-applied after any write to a value of this
	// type.
	Invariants []FuncRef
}

// HasValues reports whether this set currently holds any value.
func (vs *ValueSet) HasValues() bool {
	return len(vs.Vars) > 0
}

// CanSafelyGenerate reports whether at least one safe generator exists
// for this type.
func (vs *ValueSet) CanSafelyGenerate() bool {
	return len(vs.SafeGenerators) > 0
}

// Pool is the per-type value store backing a single Machine.
type Pool struct {
	sets map[any]*ValueSet
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{sets: make(map[any]*ValueSet)}
}

// Set returns the ValueSet for typeKey, creating it if necessary.
// typeKey is conventionally a reflect.Type but kept generic so callers
// can use any stable, comparable key.
func (p *Pool) Set(typeKey any) *ValueSet {
	vs, ok := p.sets[typeKey]
	if !ok {
		vs = &ValueSet{}
		p.sets[typeKey] = vs
	}

	return vs
}

// Lookup returns the ValueSet for typeKey without creating it.
func (p *Pool) Lookup(typeKey any) (*ValueSet, bool) {
	vs, ok := p.sets[typeKey]

	return vs, ok
}

// Types returns every type key currently present in the pool, in
// unspecified order.
func (p *Pool) Types() []any {
	out := make([]any, 0, len(p.sets))
	for k := range p.sets {
		out = append(out, k)
	}

	return out
}

package bridge

import (
	"reflect"

	"github.com/wippyai/rebind/errors"
)

// Ref is a non-owning view of an instance owned elsewhere: address, Index and
// Qualifier. A Ref must not outlive its referent.
type Ref struct {
	ptr  any
	idx  Index
	qual Qualifier
}

// RefOf returns a view of *p qualified as q.
func RefOf[T any](r *Registry, p *T, q Qualifier) Ref {
	if p == nil {
		return Ref{qual: mustQualifier(q)}
	}
	return Ref{ptr: p, idx: TypeOf[T](r), qual: mustQualifier(q)}
}

// MakeRef builds a view from a boxed pointer and its Index. It is the
// construction path for capability sets implementing ToRef.
func MakeRef(idx Index, p any, q Qualifier) Ref {
	if idx.IsNull() || p == nil {
		return Ref{qual: mustQualifier(q)}
	}
	return Ref{ptr: p, idx: idx, qual: mustQualifier(q)}
}

// HasValue reports whether the view addresses an instance.
func (r Ref) HasValue() bool {
	return r.ptr != nil
}

// Address returns the boxed instance pointer, or nil.
func (r Ref) Address() any {
	return r.ptr
}

// Index returns the type of the referent.
func (r Ref) Index() Index {
	if r.ptr == nil {
		return Index{}
	}
	return r.idx
}

// Qualifier returns the view's qualifier.
func (r Ref) Qualifier() Qualifier {
	return r.qual
}

// Name returns the qualified type name, such as "int32 &", or "null".
func (r Ref) Name() string {
	if r.ptr == nil {
		return "null"
	}
	return r.idx.QualifiedName(r.qual)
}

// WithQualifier returns the same view with another qualifier.
func (r Ref) WithQualifier(q Qualifier) Ref {
	r.qual = mustQualifier(q)
	return r
}

// RefTarget returns a typed pointer to the referent when it holds exactly T
// and the view's qualifier may bind a request for want.
func RefTarget[T any](r Ref, want Qualifier) (*T, bool) {
	if r.ptr == nil || !mustQualifier(r.qual).Binds(mustQualifier(want)) {
		return nil, false
	}
	idx, ok := r.idx.t.reg.IndexOf(reflect.TypeFor[T]())
	if !ok || idx != r.idx {
		return nil, false
	}
	p, ok := r.ptr.(*T)
	return p, ok
}

// AssignIf assigns src into the referent through the assign_if capability.
// It fails on const views and on types without the capability.
func (r Ref) AssignIf(src Ref) bool {
	if r.ptr == nil || mustQualifier(r.qual) == Const {
		return false
	}
	a, ok := r.idx.t.Ops().(Assigner)
	if !ok {
		return false
	}
	return a.AssignIf(r.ptr, src)
}

// ToValue materializes an owned Value from the referent. Const and lvalue
// views copy; rvalue views move out of the referent.
func (r Ref) ToValue() (Value, error) {
	if r.ptr == nil {
		return Value{}, errors.TypeMismatch(errors.PhaseCast, nil, "null", "value")
	}
	c, ok := r.idx.t.Ops().(ValueConverter)
	if !ok {
		return Value{}, errors.New(errors.PhaseCast, errors.KindNotCopyable).
			Type(r.Name()).
			Detail("type has no to_value capability").
			Build()
	}
	v, ok := c.ToValue(r.ptr, mustQualifier(r.qual))
	if !ok || !v.HasValue() {
		return Value{}, errors.NotCopyable(r.idx.Name())
	}
	return v, nil
}

// View asks the referent's table, or the nearest base providing to_ref, for
// a view with qualifier q.
func (r Ref) View(q Qualifier) (Ref, bool) {
	if r.ptr == nil {
		return Ref{}, false
	}
	c, _, recv, ok := lookupCap[RefConverter](r.idx.t, r.ptr)
	if !ok || recv == nil {
		return Ref{}, false
	}
	if !mustQualifier(r.qual).Binds(mustQualifier(q)) {
		return Ref{}, false
	}
	return c.ToRef(recv, q)
}

// Method calls the named method with the view as receiver. Methods are found
// on the referent's table or the nearest base defining them.
func (r Ref) Method(name string, args ...Ref) (Value, error) {
	if r.ptr == nil {
		return Value{}, errors.CallFailed(name, errors.InvalidInput(errors.PhaseCall, "method on null reference"))
	}
	fn, at, recv, ok := r.idx.t.lookupMethod(name, r.ptr)
	if !ok {
		return Value{}, errors.CallFailed(name, errors.New(errors.PhaseCall, errors.KindLookupFailed).
			Type(r.idx.Name()).
			Detail("no method %q", name).
			Build())
	}
	if recv == nil {
		return Value{}, errors.CallFailed(name, errors.InvalidInput(errors.PhaseCall, "nil embedded receiver"))
	}
	self := Ref{ptr: recv, idx: Index{t: at}, qual: r.qual}
	full := make([]Ref, 0, len(args)+1)
	full = append(full, self)
	full = append(full, args...)
	return fn.Ref(Const).call(name, full)
}

// Call invokes the referent as a callable and returns an owned result.
func (r Ref) Call(args ...Ref) (Value, error) {
	return r.call(r.Name(), args)
}

// CallRef invokes the referent as a callable returning a view.
func (r Ref) CallRef(args ...Ref) (Ref, error) {
	return r.callRef(r.Name(), args)
}

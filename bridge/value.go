package bridge

import (
	"reflect"

	"github.com/wippyai/rebind/errors"
)

// box is the shared ownership cell of a Value. Copies of a Value struct share
// one box, so destroy fires at most once however the struct was duplicated.
type box struct {
	ptr any
	idx Index
}

func newBox(p any, idx Index) *box {
	return &box{ptr: p, idx: idx}
}

// Value owns exactly one instance of a registered type, or is empty.
// The zero Value is empty.
//
// A Value must be released with Drop, transferred with Move or Set, or
// consumed with Extract. Assigning the struct does not transfer ownership.
type Value struct {
	box *box
}

// New constructs a Value owning a copy of v.
func New[T any](r *Registry, v T) Value {
	idx := TypeOf[T](r)
	p := new(T)
	*p = v
	return Value{box: newBox(p, idx)}
}

// FromPointer constructs a Value that takes ownership of p.
func FromPointer[T any](r *Registry, p *T) Value {
	if p == nil {
		return Value{}
	}
	return Value{box: newBox(p, TypeOf[T](r))}
}

// Adopt wraps p, which must box an instance of idx's type, into an owning
// Value. It is the construction path for capability sets that allocate.
func Adopt(idx Index, p any) Value {
	if idx.IsNull() || p == nil {
		return Value{}
	}
	return Value{box: newBox(p, idx)}
}

// newFromReflect boxes rv into a Value of its dynamic Go type.
func newFromReflect(r *Registry, rv reflect.Value) Value {
	if rv.Type() == valueType {
		return rv.Interface().(Value)
	}
	np := reflect.New(rv.Type())
	np.Elem().Set(rv)
	return Value{box: newBox(np.Interface(), r.TypeOf(rv.Type()))}
}

// HasValue reports whether v owns an instance.
func (v Value) HasValue() bool {
	return v.box != nil && v.box.ptr != nil
}

// Index returns the type of the held instance, or the null Index.
func (v Value) Index() Index {
	if !v.HasValue() {
		return Index{}
	}
	return v.box.idx
}

// Name returns the held type's name, or "null".
func (v Value) Name() string {
	return v.Index().Name()
}

// Address returns the boxed instance pointer, or nil.
func (v Value) Address() any {
	if !v.HasValue() {
		return nil
	}
	return v.box.ptr
}

// Ref returns a view of the held instance qualified as q.
func (v Value) Ref(q Qualifier) Ref {
	if !v.HasValue() {
		return Ref{qual: mustQualifier(q)}
	}
	return Ref{ptr: v.box.ptr, idx: v.box.idx, qual: mustQualifier(q)}
}

// Clone copies the held instance through its type's copy capability.
// Cloning an empty Value yields an empty Value.
func (v Value) Clone() (Value, error) {
	if !v.HasValue() {
		return Value{}, nil
	}
	t := v.box.idx.t
	c, ok := t.Ops().(Copier)
	if !ok {
		return Value{}, errors.NotCopyable(t.Name())
	}
	p, ok := c.Copy(v.box.ptr)
	if !ok || p == nil {
		return Value{}, errors.NotCopyable(t.Name())
	}
	return Value{box: newBox(p, v.box.idx)}, nil
}

// Drop destroys the held instance exactly once and leaves v empty.
// Dropping an empty or moved-from Value does nothing.
func (v *Value) Drop() {
	if v.box == nil {
		return
	}
	b := v.box
	v.box = nil
	if b.ptr == nil {
		return
	}
	p := b.ptr
	b.ptr = nil
	b.idx.t.destroy(p)
}

// Move transfers ownership to the returned Value and leaves v empty.
func (v *Value) Move() Value {
	b := v.box
	v.box = nil
	return Value{box: b}
}

// Set drops v's current content and takes ownership from src.
func (v *Value) Set(src *Value) {
	if v == src {
		return
	}
	v.Drop()
	v.box = src.box
	src.box = nil
}

// release empties the box without destroying, after its content moved out.
func (v *Value) release() {
	if v.box != nil {
		v.box.ptr = nil
		v.box = nil
	}
}

// Is reports whether v holds an instance of exactly T.
func Is[T any](v Value) bool {
	if !v.HasValue() {
		return false
	}
	idx, ok := v.box.idx.t.reg.IndexOf(reflect.TypeFor[T]())
	return ok && idx == v.box.idx
}

// Extract consumes v and returns the held T. On a type mismatch v is left
// intact and a type_mismatch error is returned.
func Extract[T any](v *Value) (T, error) {
	var zero T
	if !v.HasValue() {
		return zero, errors.TypeMismatch(errors.PhaseValue, nil, "null", reflect.TypeFor[T]().String())
	}
	p, ok := v.box.ptr.(*T)
	if !ok || !Is[T](*v) {
		return zero, errors.TypeMismatch(errors.PhaseValue, nil, v.Name(), reflect.TypeFor[T]().String())
	}
	out := *p
	v.release()
	return out, nil
}

// Target returns a borrowed pointer to the held T without transferring ownership.
func Target[T any](v Value) (*T, bool) {
	if !Is[T](v) {
		return nil, false
	}
	p, ok := v.box.ptr.(*T)
	return p, ok
}

// Method calls the named method with v as an lvalue receiver.
func (v *Value) Method(name string, args ...Ref) (Value, error) {
	return v.Ref(Lvalue).Method(name, args...)
}

// Call invokes v as a callable and returns an owned result.
func (v *Value) Call(args ...Ref) (Value, error) {
	return v.Ref(Lvalue).Call(args...)
}

// CallRef invokes v as a callable and returns a view of state owned
// elsewhere. The view is valid only while that state is alive.
func (v *Value) CallRef(args ...Ref) (Ref, error) {
	return v.Ref(Lvalue).CallRef(args...)
}

var valueType = reflect.TypeFor[Value]()

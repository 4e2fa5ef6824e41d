package bridge

import (
	"reflect"
)

// TypeOption adjusts the default capability set generated for a type.
type TypeOption func(*typeConfig)

type typeConfig struct {
	destructor func(any)
	name       string
	noCopy     bool
}

// WithoutCopy leaves the copy capability absent.
func WithoutCopy() TypeOption {
	return func(c *typeConfig) { c.noCopy = true }
}

// WithName overrides the display name of the type.
func WithName(name string) TypeOption {
	return func(c *typeConfig) { c.name = name }
}

// WithDestructor runs fn on every destroyed instance before its storage is cleared.
func WithDestructor[T any](fn func(*T)) TypeOption {
	return func(c *typeConfig) {
		c.destructor = func(p any) {
			if tp, ok := p.(*T); ok {
				fn(tp)
			}
		}
	}
}

// DefaultOps returns the default capability set for T: destroy, copy (unless
// WithoutCopy), to_value, to_ref, assign_if and from_ref. Implicit conversions
// cover lossless numeric conversions and conversions between string kinds.
func DefaultOps[T any](opts ...TypeOption) Ops {
	return newDefaultOps(reflect.TypeFor[T](), opts...)
}

func newDefaultOps(rt reflect.Type, opts ...TypeOption) Ops {
	var cfg typeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	base := &baseOps{
		typ:        rt,
		name:       cfg.name,
		destructor: cfg.destructor,
		copyable:   !cfg.noCopy,
		clone:      cloneMethod(rt),
	}
	if cfg.noCopy {
		return base
	}
	return &copyOps{baseOps: base}
}

// cloneMethod returns the Clone method of *T when it has the form func() T.
func cloneMethod(rt reflect.Type) *reflect.Method {
	m, ok := reflect.PointerTo(rt).MethodByName("Clone")
	if !ok {
		return nil
	}
	mt := m.Type
	if mt.NumIn() != 1 || mt.NumOut() != 1 || mt.Out(0) != rt {
		return nil
	}
	return &m
}

// baseOps is the default capability set without copy.
type baseOps struct {
	typ        reflect.Type
	table      *Table
	clone      *reflect.Method
	destructor func(any)
	name       string
	copyable   bool
}

// copyOps adds the copy capability to baseOps.
type copyOps struct {
	*baseOps
}

func (o *baseOps) bindTable(t *Table) { o.table = t }

func (o *baseOps) TypeName() string { return o.name }

func (o *baseOps) index() Index { return Index{t: o.table} }

// elem returns the addressable instance behind p when p boxes this type.
func (o *baseOps) elem(p any) (reflect.Value, bool) {
	rv := reflect.ValueOf(p)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Type().Elem() != o.typ {
		return reflect.Value{}, false
	}
	return rv.Elem(), true
}

func (o *baseOps) Destroy(p any) {
	rv, ok := o.elem(p)
	if !ok {
		return
	}
	if o.destructor != nil {
		o.destructor(p)
	}
	if d, ok := p.(Dropper); ok {
		d.Drop()
	}
	rv.SetZero()
}

func (o *baseOps) dup(p any) (any, bool) {
	if !o.copyable {
		return nil, false
	}
	rv, ok := o.elem(p)
	if !ok {
		return nil, false
	}
	np := reflect.New(o.typ)
	if o.clone != nil {
		out := o.clone.Func.Call([]reflect.Value{reflect.ValueOf(p)})
		np.Elem().Set(out[0])
	} else {
		np.Elem().Set(rv)
	}
	return np.Interface(), true
}

func (o *copyOps) Copy(p any) (any, bool) {
	return o.dup(p)
}

func (o *baseOps) ToValue(p any, q Qualifier) (Value, bool) {
	if mustQualifier(q) == Rvalue {
		rv, ok := o.elem(p)
		if !ok {
			return Value{}, false
		}
		np := reflect.New(o.typ)
		np.Elem().Set(rv)
		rv.SetZero()
		return Value{box: newBox(np.Interface(), o.index())}, true
	}
	cp, ok := o.dup(p)
	if !ok {
		return Value{}, false
	}
	return Value{box: newBox(cp, o.index())}, true
}

func (o *baseOps) ToRef(p any, q Qualifier) (Ref, bool) {
	if _, ok := o.elem(p); !ok {
		return Ref{}, false
	}
	return Ref{ptr: p, idx: o.index(), qual: mustQualifier(q)}, true
}

func (o *baseOps) AssignIf(p any, src Ref) bool {
	dst, ok := o.elem(p)
	if !ok || !src.HasValue() {
		return false
	}

	if src.idx == o.index() {
		if src.ptr == p {
			return true
		}
		sv := reflect.ValueOf(src.ptr).Elem()
		if src.qual == Rvalue {
			dst.Set(sv)
			sv.SetZero()
			return true
		}
		cp, ok := o.dup(src.ptr)
		if !ok {
			return false
		}
		dst.Set(reflect.ValueOf(cp).Elem())
		return true
	}

	v, ok := o.FromRef(src, nil)
	if !ok {
		return false
	}
	dst.Set(reflect.ValueOf(v.box.ptr).Elem())
	v.release()
	return true
}

func (o *baseOps) FromRef(src Ref, s *Scope) (Value, bool) {
	if !src.HasValue() {
		return Value{}, false
	}
	sv := reflect.ValueOf(src.ptr)
	if sv.Kind() != reflect.Pointer || sv.IsNil() {
		return Value{}, false
	}
	sv = sv.Elem()

	converted, ok := convertImplicit(sv, o.typ)
	if !ok {
		s.fail(src.Index(), o.index(), "no implicit conversion")
		return Value{}, false
	}
	np := reflect.New(o.typ)
	np.Elem().Set(converted)
	return Value{box: newBox(np.Interface(), o.index())}, true
}

// convertImplicit converts between numeric kinds when no precision is lost,
// and between string kinds or bool kinds.
func convertImplicit(v reflect.Value, to reflect.Type) (reflect.Value, bool) {
	from := v.Type()
	if from == to || !from.ConvertibleTo(to) {
		return reflect.Value{}, false
	}
	switch {
	case isNumeric(from.Kind()) && isNumeric(to.Kind()):
		out := v.Convert(to)
		if !out.Convert(from).Equal(v) {
			return reflect.Value{}, false
		}
		// round trips hide sign flips between signed and unsigned integers
		if isSigned(from.Kind()) && isUnsigned(to.Kind()) && v.Int() < 0 {
			return reflect.Value{}, false
		}
		if isUnsigned(from.Kind()) && isSigned(to.Kind()) && out.Int() < 0 {
			return reflect.Value{}, false
		}
		return out, true
	case from.Kind() == to.Kind() && (from.Kind() == reflect.String || from.Kind() == reflect.Bool):
		return v.Convert(to), true
	}
	return reflect.Value{}, false
}

func isNumeric(k reflect.Kind) bool {
	return isSigned(k) || isUnsigned(k) || k == reflect.Float32 || k == reflect.Float64
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

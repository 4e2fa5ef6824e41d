package bridge

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/wippyai/rebind/errors"
)

// Function is a callable wrapping one or more Go functions. Overloads are
// tried in order and the first signature whose parameters all bind wins.
type Function struct {
	sigs []*signature
}

// Signatures returns the Go signature of every overload.
func (f *Function) Signatures() []string {
	out := make([]string, len(f.sigs))
	for i, s := range f.sigs {
		out[i] = s.fn.Type().String()
	}
	return out
}

type paramMode uint8

const (
	paramCopy    paramMode = iota // T: copy, convert, or move from an rvalue
	paramPointer                  // *T: bind existing storage, never const
	paramRef                      // Ref: the raw view
	paramOwned                    // Value: owned copy, or moved from an rvalue
	paramIface                    // interface: any referent implementing it
)

type param struct {
	typ      reflect.Type
	table    *Table
	mode     paramMode
	receiver bool // value receiver: bound by copying storage, not through Copier
}

type resultMode uint8

const (
	resultNone resultMode = iota
	resultValue
	resultOwned
	resultRef
	resultIface
)

type signature struct {
	fn     reflect.Value
	result reflect.Type
	params []param
	mode   resultMode
	scope  bool
	hasErr bool
}

var (
	errorType = reflect.TypeFor[error]()
	refType   = reflect.TypeFor[Ref]()
	scopeType = reflect.TypeFor[*Scope]()
	funcType  = reflect.TypeFor[Function]()
)

// Func wraps fn, which must be a non-variadic Go function, into a callable
// Value. Supported results are (), (R), (error) and (R, error).
func Func(r *Registry, fn any) (Value, error) {
	return Overload(r, fn)
}

// Overload wraps several Go functions into one callable Value.
func Overload(r *Registry, fns ...any) (Value, error) {
	if len(fns) == 0 {
		return Value{}, errors.InvalidInput(errors.PhaseRegister, "overload set is empty")
	}
	if r.Closed() {
		return Value{}, errors.Closed(errors.PhaseRegister, "registry")
	}
	f := &Function{sigs: make([]*signature, 0, len(fns))}
	for _, fn := range fns {
		sig, err := newSignature(r, fn)
		if err != nil {
			return Value{}, err
		}
		f.sigs = append(f.sigs, sig)
	}
	return Value{box: newBox(f, r.fnIndex)}, nil
}

func newSignature(r *Registry, fn any) (*signature, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		b := errors.New(errors.PhaseRegister, errors.KindTypeMismatch).Detail("handler must be a function")
		if fn != nil {
			b.Type(reflect.TypeOf(fn).String())
		}
		return nil, b.Build()
	}
	rt := rv.Type()
	if rt.IsVariadic() {
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Type(rt.String()).
			Detail("variadic functions are not supported").
			Build()
	}

	sig := &signature{fn: rv}
	for i := 0; i < rt.NumIn(); i++ {
		pt := rt.In(i)
		if pt == scopeType {
			if i != 0 {
				return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
					Type(rt.String()).
					Detail("*bridge.Scope must be the first parameter").
					Build()
			}
			sig.scope = true
			continue
		}
		sig.params = append(sig.params, newParam(r, pt))
	}

	switch rt.NumOut() {
	case 0:
	case 1:
		if rt.Out(0) == errorType {
			sig.hasErr = true
		} else {
			sig.setResult(r, rt.Out(0))
		}
	case 2:
		if rt.Out(1) != errorType {
			return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
				Type(rt.String()).
				Detail("second result must be error").
				Build()
		}
		sig.hasErr = true
		sig.setResult(r, rt.Out(0))
	default:
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Type(rt.String()).
			Detail("at most two results are supported").
			Build()
	}
	return sig, nil
}

func newParam(r *Registry, pt reflect.Type) param {
	switch {
	case pt == refType:
		return param{typ: pt, mode: paramRef}
	case pt == valueType:
		return param{typ: pt, mode: paramOwned}
	case pt.Kind() == reflect.Interface:
		return param{typ: pt, mode: paramIface}
	case pt.Kind() == reflect.Pointer:
		return param{typ: pt, table: r.TypeOf(pt.Elem()).t, mode: paramPointer}
	default:
		return param{typ: pt, table: r.TypeOf(pt).t, mode: paramCopy}
	}
}

func (s *signature) setResult(r *Registry, rt reflect.Type) {
	s.result = rt
	switch {
	case rt == valueType:
		s.mode = resultOwned
	case rt == refType:
		s.mode = resultRef
	case rt.Kind() == reflect.Interface:
		s.mode = resultIface
	default:
		s.mode = resultValue
		r.TypeOf(rt)
	}
}

// functionOps is the capability set of Function: the defaults plus call.
type functionOps struct {
	*copyOps
}

func (r *Registry) installFunctionType() Index {
	idx := r.Register(funcType)
	ops := newDefaultOps(funcType, WithName("function")).(*copyOps)
	r.Install(idx, &functionOps{copyOps: ops})
	return idx
}

// FunctionIndex returns the Index of callables built by Func and Overload.
func (r *Registry) FunctionIndex() Index {
	return r.fnIndex
}

func (o *functionOps) Call(p any, s *Scope, args []Ref) (Value, error) {
	f, ok := p.(*Function)
	if !ok {
		return Value{}, errors.InvalidInput(errors.PhaseCall, "receiver is not a function")
	}
	return f.call(s, args)
}

func (o *functionOps) CallRef(p any, s *Scope, args []Ref) (Ref, error) {
	f, ok := p.(*Function)
	if !ok {
		return Ref{}, errors.InvalidInput(errors.PhaseCall, "receiver is not a function")
	}
	return f.callRef(s, args)
}

// BindMethods defines every exported method of T on T's table, named in
// kebab-case. Methods declared on T accept any receiver qualifier; methods
// declared only on *T need an lvalue or rvalue receiver.
func BindMethods[T any](r *Registry) error {
	if r.Closed() {
		return errors.Closed(errors.PhaseRegister, "registry")
	}
	rt := reflect.TypeFor[T]()
	idx := r.TypeOf(rt)
	pt := reflect.PointerTo(rt)
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if !m.IsExported() {
			continue
		}
		fn := m.Func
		if vm, ok := rt.MethodByName(m.Name); ok && rt.Kind() != reflect.Interface {
			fn = vm.Func
		}
		sig, err := newSignature(r, fn.Interface())
		if err != nil {
			return err
		}
		if sig.params[0].mode == paramCopy {
			sig.params[0].receiver = true
		}
		v := Value{box: newBox(&Function{sigs: []*signature{sig}}, r.fnIndex)}
		if err := r.DefineMethod(idx, toKebabCase(m.Name), v); err != nil {
			v.Drop()
			return err
		}
	}
	return nil
}

// toKebabCase converts PascalCase to kebab-case. A word starts at an upper
// case rune after a lower case one, or at the last rune of an acronym that is
// followed by lower case: HTTPServer -> http-server. Adjacent acronyms stay
// one word: GetHTTPURL -> get-httpurl.
func toKebabCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		if i > 0 && (!unicode.IsUpper(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

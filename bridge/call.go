package bridge

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/rebind/errors"
)

// CallState tracks one invocation:
// Idle -> ArgsMarshaled -> Dispatched -> ResultOwned | Failed.
type CallState uint8

const (
	CallIdle CallState = iota
	CallArgsMarshaled
	CallDispatched
	CallResultOwned
	CallFailed
)

var callStateNames = [...]string{"idle", "args_marshaled", "dispatched", "result_owned", "failed"}

func (s CallState) String() string {
	if int(s) < len(callStateNames) {
		return callStateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition follows s.
func (s CallState) Terminal() bool {
	return s == CallResultOwned || s == CallFailed
}

// CallObserver receives every state transition of every call on a registry.
type CallObserver func(callee string, state CallState)

// WithCallObserver installs an observer of call state transitions.
func WithCallObserver(fn CallObserver) Option {
	return func(o *Options) { o.CallObserver = fn }
}

func (s *Scope) transition(st CallState) {
	s.state = st
	if s.reg == nil {
		return
	}
	s.reg.log.Debug("call state", zap.String("callee", s.callee), zap.Stringer("state", st))
	if obs := s.reg.opts.CallObserver; obs != nil {
		obs(s.callee, st)
	}
}

// State returns the call state of the scope's invocation.
func (s *Scope) State() CallState {
	return s.state
}

func (r Ref) callScope(callee string) *Scope {
	s := NewScope(r.idx.t.reg)
	s.callee = callee
	s.transition(CallIdle)
	return s
}

func callError(callee string, err error) error {
	if k, ok := errors.KindOf(err); ok && k == errors.KindCallFailed {
		return err
	}
	return errors.CallFailed(callee, err)
}

func (r Ref) call(callee string, args []Ref) (v Value, err error) {
	if r.ptr == nil {
		return Value{}, errors.CallFailed(callee, errors.InvalidInput(errors.PhaseCall, "call on null reference"))
	}
	s := r.callScope(callee)
	defer s.Close()
	defer func() {
		if p := recover(); p != nil {
			err = errors.Recover(p)
			v = Value{}
		}
		if err != nil {
			err = callError(callee, err)
			s.transition(CallFailed)
			return
		}
		s.transition(CallResultOwned)
	}()

	c, _, recv, ok := lookupCap[Caller](r.idx.t, r.ptr)
	if !ok || recv == nil {
		return Value{}, errors.CallFailed(callee, errors.New(errors.PhaseCall, errors.KindTypeMismatch).
			Type(r.idx.Name()).
			Detail("type is not callable").
			Build())
	}
	// Function reports its own binding progress
	if _, ok := c.(*functionOps); !ok {
		s.transition(CallArgsMarshaled)
		s.transition(CallDispatched)
	}
	return c.Call(recv, s, args)
}

func (r Ref) callRef(callee string, args []Ref) (out Ref, err error) {
	if r.ptr == nil {
		return Ref{}, errors.CallFailed(callee, errors.InvalidInput(errors.PhaseCall, "call on null reference"))
	}
	s := r.callScope(callee)
	defer s.Close()
	defer func() {
		if p := recover(); p != nil {
			err = errors.Recover(p)
			out = Ref{}
		}
		if err != nil {
			err = callError(callee, err)
			s.transition(CallFailed)
			return
		}
		s.transition(CallResultOwned)
	}()

	c, _, recv, ok := lookupCap[RefCaller](r.idx.t, r.ptr)
	if !ok || recv == nil {
		return Ref{}, errors.CallFailed(callee, errors.New(errors.PhaseCall, errors.KindTypeMismatch).
			Type(r.idx.Name()).
			Detail("type is not callable by reference").
			Build())
	}
	if _, ok := c.(*functionOps); !ok {
		s.transition(CallArgsMarshaled)
		s.transition(CallDispatched)
	}
	return c.CallRef(recv, s, args)
}

// binding is the marshaled argument list of one signature. Work that
// consumes arguments is deferred to commit so a failed bind consumes nothing;
// moves out of rvalue arguments bound by value wait for the callee to return
// without an error.
type binding struct {
	in      []reflect.Value
	commits []func()
	aborts  []func()
	moves   []func()
}

func (b *binding) abort() {
	for i := len(b.aborts) - 1; i >= 0; i-- {
		b.aborts[i]()
	}
}

func (b *binding) commit() {
	for _, c := range b.commits {
		c()
	}
}

func (b *binding) finish() {
	for _, m := range b.moves {
		m()
	}
}

// resolveCall binds args against each overload and commits the first match.
// With refOnly set, only overloads returning a Ref are considered.
func (f *Function) resolveCall(s *Scope, args []Ref, refOnly bool) (*signature, *binding, error) {
	var first, typed error
	for _, sig := range f.sigs {
		if refOnly && sig.mode != resultRef {
			continue
		}
		s.reset()
		b, err := sig.bind(s, args)
		if err == nil {
			b.commit()
			s.at(-1)
			s.transition(CallArgsMarshaled)
			return sig, b, nil
		}
		if first == nil {
			first = err
		}
		if typed == nil && errors.IsKind(err, errors.KindWrongType) {
			typed = err
		}
	}
	switch {
	case typed != nil:
		return nil, nil, typed
	case first != nil:
		return nil, nil, first
	}
	return nil, nil, errors.New(errors.PhaseCall, errors.KindTypeMismatch).
		Want("bridge.Ref").
		Detail("no overload returns a reference").
		Build()
}

func (f *Function) call(s *Scope, args []Ref) (Value, error) {
	sig, b, err := f.resolveCall(s, args, false)
	if err != nil {
		return Value{}, err
	}
	s.transition(CallDispatched)
	outs, err := sig.invoke(b.in)
	if err != nil {
		return Value{}, err
	}
	b.finish()

	switch sig.mode {
	case resultNone:
		return Value{}, nil
	case resultOwned:
		return outs[0].Interface().(Value), nil
	case resultRef:
		ref := outs[0].Interface().(Ref)
		if !ref.HasValue() {
			return Value{}, nil
		}
		return ref.ToValue()
	case resultIface:
		if outs[0].IsNil() {
			return Value{}, nil
		}
		return newFromReflect(s.reg, outs[0].Elem()), nil
	default:
		return newFromReflect(s.reg, outs[0]), nil
	}
}

func (f *Function) callRef(s *Scope, args []Ref) (Ref, error) {
	sig, b, err := f.resolveCall(s, args, true)
	if err != nil {
		return Ref{}, err
	}
	s.transition(CallDispatched)
	outs, err := sig.invoke(b.in)
	if err != nil {
		return Ref{}, err
	}
	b.finish()
	return outs[0].Interface().(Ref), nil
}

// invoke calls the Go function and splits off the error result.
func (sig *signature) invoke(in []reflect.Value) ([]reflect.Value, error) {
	outs := sig.fn.Call(in)
	if sig.hasErr {
		last := outs[len(outs)-1]
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		outs = outs[:len(outs)-1]
	}
	return outs, nil
}

func (sig *signature) bind(s *Scope, args []Ref) (*binding, error) {
	if len(args) != len(sig.params) {
		return nil, errors.WrongNumber(len(sig.params), len(args))
	}
	b := &binding{in: make([]reflect.Value, 0, len(args)+1)}
	if sig.scope {
		b.in = append(b.in, reflect.ValueOf(s))
	}
	for i, arg := range args {
		s.at(i)
		in, err := sig.params[i].bind(s, b, arg)
		if err != nil {
			b.abort()
			return nil, err
		}
		b.in = append(b.in, in)
	}
	return b, nil
}

func (p param) wrongType(s *Scope, arg Ref, detail string) error {
	if e := s.Err(); e != nil {
		return e
	}
	want := p.typ.String()
	if p.table != nil {
		want = p.table.Name()
		if p.mode == paramPointer {
			want = "*" + want
		}
	}
	return errors.WrongType(s.Position(), arg.Name(), want, arg.qual.String(), detail)
}

// bind converts one argument. Work that consumes arg is queued on b.commits.
func (p param) bind(s *Scope, b *binding, arg Ref) (reflect.Value, error) {
	switch p.mode {
	case paramRef:
		return reflect.ValueOf(arg), nil
	case paramOwned:
		return p.bindOwned(s, b, arg)
	case paramIface:
		return p.bindIface(s, arg)
	case paramPointer:
		return p.bindPointer(s, arg)
	default:
		return p.bindCopy(s, b, arg)
	}
}

func (p param) bindCopy(s *Scope, b *binding, arg Ref) (reflect.Value, error) {
	res, ok := resolve(s, arg, p.table, Const, true)
	if !ok {
		return reflect.Value{}, p.wrongType(s, arg, "no conversion")
	}
	src := reflect.ValueOf(res.ref.ptr)
	if src.Kind() != reflect.Pointer || src.IsNil() || src.Type().Elem() != p.typ {
		res.temp.Drop()
		return reflect.Value{}, p.wrongType(s, arg, "storage does not hold the parameter type")
	}

	switch {
	case res.temp.HasValue():
		temp := res.temp
		b.commits = append(b.commits, func() { temp.release() })
		b.aborts = append(b.aborts, func() { temp.Drop() })
		return detach(src.Elem()), nil
	case res.direct && arg.qual == Rvalue:
		elem := src.Elem()
		b.moves = append(b.moves, func() { elem.SetZero() })
		return detach(elem), nil
	case p.receiver:
		return detach(src.Elem()), nil
	}

	c, ok := p.table.Ops().(Copier)
	if !ok {
		return reflect.Value{}, p.wrongType(s, arg, "not copyable")
	}
	cp, ok := c.Copy(res.ref.ptr)
	if !ok {
		return reflect.Value{}, p.wrongType(s, arg, "not copyable")
	}
	return reflect.ValueOf(cp).Elem(), nil
}

func (p param) bindPointer(s *Scope, arg Ref) (reflect.Value, error) {
	if arg.qual == Const {
		s.failQualified(arg, Index{t: p.table}, Lvalue, "pointer parameter needs a mutable reference")
		return reflect.Value{}, p.wrongType(s, arg, "const reference")
	}
	res, ok := resolve(s, arg, p.table, arg.qual, arg.qual == Rvalue)
	if !ok {
		return reflect.Value{}, p.wrongType(s, arg, "no conversion")
	}
	ptr := reflect.ValueOf(res.ref.ptr)
	if ptr.Type() != p.typ {
		res.temp.Drop()
		return reflect.Value{}, p.wrongType(s, arg, "storage does not hold the parameter type")
	}
	if res.temp.HasValue() {
		s.Keep(&res.temp, Rvalue)
	}
	return ptr, nil
}

func (p param) bindOwned(s *Scope, b *binding, arg Ref) (reflect.Value, error) {
	if !arg.HasValue() {
		return reflect.ValueOf(Value{}), nil
	}
	if arg.qual == Rvalue {
		src := reflect.ValueOf(arg.ptr)
		if src.Kind() == reflect.Pointer && !src.IsNil() {
			elem := src.Elem()
			np := reflect.New(elem.Type())
			np.Elem().Set(elem)
			v := Value{box: newBox(np.Interface(), arg.idx)}
			b.commits = append(b.commits, func() { elem.SetZero() })
			b.aborts = append(b.aborts, func() { v.release() })
			return reflect.ValueOf(v), nil
		}
	}
	v, err := arg.ToValue()
	if err != nil {
		return reflect.Value{}, p.wrongType(s, arg, err.Error())
	}
	b.aborts = append(b.aborts, func() { v.Drop() })
	return reflect.ValueOf(v), nil
}

func (p param) bindIface(s *Scope, arg Ref) (reflect.Value, error) {
	if !arg.HasValue() {
		return reflect.Zero(p.typ), nil
	}
	ptr := reflect.ValueOf(arg.ptr)
	if ptr.Kind() == reflect.Pointer && ptr.Type().Elem().Implements(p.typ) {
		return detach(ptr.Elem()), nil
	}
	if ptr.Type().Implements(p.typ) {
		if arg.qual == Const {
			return reflect.Value{}, p.wrongType(s, arg, "pointer method set needs a mutable reference")
		}
		return ptr, nil
	}
	return reflect.Value{}, p.wrongType(s, arg, "does not implement "+p.typ.String())
}

// detach copies v out of its storage.
func detach(v reflect.Value) reflect.Value {
	out := reflect.New(v.Type()).Elem()
	out.Set(v)
	return out
}

package bridge

import (
	"reflect"

	"github.com/wippyai/rebind/errors"
)

// maxIndirection bounds chains of to_ref views followed during resolution.
const maxIndirection = 8

// resolution is a view of storage holding the target type.
type resolution struct {
	ref    Ref
	temp   Value // owned conversion result, when one was constructed
	direct bool  // ref addresses the source's own storage with the exact type
}

// resolve finds storage of type target behind src. It tries, in order, the
// exact type, a declared base, to_ref indirection, and finally the target's
// from_ref conversion when temporaries are allowed.
func resolve(s *Scope, src Ref, target *Table, want Qualifier, allowTemp bool) (resolution, bool) {
	if !src.HasValue() {
		s.fail(Index{}, Index{t: target}, "null reference")
		return resolution{}, false
	}
	if !mustQualifier(src.qual).Binds(mustQualifier(want)) {
		s.failQualified(src, Index{t: target}, want, "qualifier does not bind")
		return resolution{}, false
	}

	cur := src
	for depth := 0; depth < maxIndirection; depth++ {
		if cur.idx.t == target {
			return resolution{ref: cur, direct: depth == 0}, true
		}
		if p, ok := cur.idx.t.upcastTo(target, cur.ptr); ok && p != nil {
			return resolution{ref: Ref{ptr: p, idx: Index{t: target}, qual: cur.qual}}, true
		}
		c, ok := cur.idx.t.Ops().(RefConverter)
		if !ok {
			break
		}
		next, ok := c.ToRef(cur.ptr, cur.qual)
		if !ok || !next.HasValue() || next.idx == cur.idx {
			break
		}
		cur = next
	}

	if allowTemp {
		if rc, ok := target.Ops().(RefConstructor); ok {
			if v, ok := rc.FromRef(src, s); ok && v.HasValue() {
				return resolution{ref: v.Ref(Rvalue), temp: v}, true
			}
		}
	}
	s.fail(src.Index(), Index{t: target}, "no conversion")
	return resolution{}, false
}

func castError(src Ref, want string, s *Scope) error {
	b := errors.New(errors.PhaseCast, errors.KindTypeMismatch).
		Type(src.Name()).
		Want(want)
	if e := s.Err(); e != nil {
		b.Cause(e)
	}
	return b.Build()
}

// Request returns a pointer to a T behind ref. Temporaries created by an
// implicit conversion are kept alive by s; with a nil scope only existing
// storage is considered.
func Request[T any](ref Ref, s *Scope) (*T, error) {
	want := reflect.TypeFor[T]().String()
	if !ref.HasValue() {
		return nil, errors.TypeMismatch(errors.PhaseCast, nil, "null", want)
	}
	target, err := typeFor[T](ref.idx.t.reg)
	if err != nil {
		return nil, err
	}
	local := s
	if local == nil {
		local = NewScope(ref.idx.t.reg)
		defer local.Close()
	}

	res, ok := resolve(local, ref, target.t, Const, s != nil)
	if !ok {
		return nil, castError(ref, target.Name(), local)
	}
	p, ok := res.ref.ptr.(*T)
	if !ok {
		res.temp.Drop()
		return nil, errors.TypeMismatch(errors.PhaseCast, nil, ref.Name(), want)
	}
	if res.temp.HasValue() {
		s.Keep(&res.temp, Rvalue)
	}
	return p, nil
}

// Cast converts the referent of ref to a T. Rvalue references to an exact T
// are moved from; otherwise the referent is copied through the copy
// capability or converted.
func Cast[T any](ref Ref, s *Scope) (T, error) {
	var zero T
	want := reflect.TypeFor[T]().String()
	if !ref.HasValue() {
		return zero, errors.TypeMismatch(errors.PhaseCast, nil, "null", want)
	}
	target, err := typeFor[T](ref.idx.t.reg)
	if err != nil {
		return zero, err
	}
	if s == nil {
		s = NewScope(ref.idx.t.reg)
		defer s.Close()
	}

	res, ok := resolve(s, ref, target.t, Const, true)
	if !ok {
		return zero, castError(ref, target.Name(), s)
	}
	p, ok := res.ref.ptr.(*T)
	if !ok {
		res.temp.Drop()
		return zero, errors.TypeMismatch(errors.PhaseCast, nil, ref.Name(), want)
	}

	switch {
	case res.temp.HasValue():
		out := *p
		res.temp.release()
		return out, nil
	case res.direct && ref.qual == Rvalue:
		out := *p
		*p = zero
		return out, nil
	}

	c, ok := target.t.Ops().(Copier)
	if !ok {
		return zero, errors.NotCopyable(target.Name())
	}
	cp, ok := c.Copy(p)
	if !ok {
		return zero, errors.NotCopyable(target.Name())
	}
	out, ok := cp.(*T)
	if !ok {
		target.t.destroy(cp)
		return zero, errors.TypeMismatch(errors.PhaseCast, nil, target.Name(), want)
	}
	return *out, nil
}

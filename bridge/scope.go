package bridge

import (
	"github.com/wippyai/rebind/errors"
)

// Scope is the resolution context of one conversion or call. It keeps
// temporaries alive until Close and records the first argument that failed
// to convert.
type Scope struct {
	reg    *Registry
	err    *errors.Error
	callee string
	kept   []Value
	pos    int
	state  CallState
}

// NewScope returns an empty scope bound to r.
func NewScope(r *Registry) *Scope {
	return &Scope{reg: r, pos: -1}
}

// Registry returns the registry the scope resolves against.
func (s *Scope) Registry() *Registry {
	return s.reg
}

// Keep takes ownership of v until Close and returns a view of it.
func (s *Scope) Keep(v *Value, q Qualifier) Ref {
	if !v.HasValue() {
		return Ref{qual: mustQualifier(q)}
	}
	kept := v.Move()
	s.kept = append(s.kept, kept)
	return kept.Ref(q)
}

// Len returns the number of temporaries kept alive.
func (s *Scope) Len() int {
	return len(s.kept)
}

// Err returns the recorded conversion failure, or nil.
func (s *Scope) Err() *errors.Error {
	if s == nil {
		return nil
	}
	return s.err
}

// Position returns the argument position being converted, or -1.
func (s *Scope) Position() int {
	if s == nil {
		return -1
	}
	return s.pos
}

func (s *Scope) at(pos int) {
	s.pos = pos
}

// fail records the first conversion failure. A nil scope records nothing.
func (s *Scope) fail(have, want Index, detail string) {
	if s == nil || s.err != nil {
		return
	}
	s.err = errors.WrongType(s.pos, have.Name(), want.Name(), "", detail)
}

func (s *Scope) failQualified(have Ref, want Index, q Qualifier, detail string) {
	if s == nil || s.err != nil {
		return
	}
	s.err = errors.WrongType(s.pos, have.Name(), want.Name(), q.String(), detail)
}

func (s *Scope) reset() {
	s.err = nil
	s.pos = -1
}

// Close drops kept temporaries in reverse order of creation.
func (s *Scope) Close() {
	if s == nil {
		return
	}
	for i := len(s.kept) - 1; i >= 0; i-- {
		s.kept[i].Drop()
	}
	s.kept = nil
}

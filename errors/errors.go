package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister Phase = "register" // type registration
	PhaseInstall  Phase = "install"  // capability install, bases, methods
	PhaseValue    Phase = "value"    // value lifecycle
	PhaseCast     Phase = "cast"     // ref conversion
	PhaseCall     Phase = "call"     // function and method dispatch
	PhaseLookup   Phase = "lookup"   // global name resolution
	PhaseBoundary Phase = "boundary" // binary boundary crossing
)

// Kind categorizes the error
type Kind string

const (
	KindNotCopyable          Kind = "not_copyable"
	KindTypeMismatch         Kind = "type_mismatch"
	KindCallFailed           Kind = "call_failed"
	KindLookupFailed         Kind = "lookup_failed"
	KindRegistrationConflict Kind = "registration_conflict"
	KindCorruption           Kind = "corruption"
	KindWrongNumber          Kind = "wrong_number"
	KindWrongType            Kind = "wrong_type"
	KindDuplicate            Kind = "duplicate"
	KindExhausted            Kind = "exhausted"
	KindClosed               Kind = "closed"
	KindInvalidInput         Kind = "invalid_input"
)

// IsFatal reports whether errors of this kind indicate a broken invariant.
// Fatal errors are raised with Fatal and never returned.
func IsFatal(k Kind) bool {
	switch k {
	case KindRegistrationConflict, KindCorruption, KindExhausted:
		return true
	}
	return false
}

// Error is the structured error type used throughout the bridge
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Type      string // type name held by the value or ref
	Want      string // type name that was requested
	Qualifier string
	Detail    string
	Path      []string
	Expected  int
	Received  int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Type != "" || e.Want != "" {
		b.WriteString(": ")
		if e.Type != "" && e.Want != "" {
			b.WriteString("have ")
			b.WriteString(e.Type)
			b.WriteString(", want ")
			b.WriteString(e.Want)
		} else if e.Type != "" {
			b.WriteString("type ")
			b.WriteString(e.Type)
		} else {
			b.WriteString("want ")
			b.WriteString(e.Want)
		}
		if e.Qualifier != "" {
			b.WriteString(" (")
			b.WriteString(e.Qualifier)
			b.WriteByte(')')
		}
	}

	if e.Detail != "" {
		if e.Type != "" || e.Want != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:    phase,
			Kind:     kind,
			Expected: -1,
			Received: -1,
		},
	}
}

// Path sets the argument or field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Type sets the held type name
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

// Want sets the requested type name
func (b *Builder) Want(t string) *Builder {
	b.err.Want = t
	return b
}

// Qualifier sets the qualifier name involved
func (b *Builder) Qualifier(q string) *Builder {
	b.err.Qualifier = q
	return b
}

// Counts sets expected and received counts
func (b *Builder) Counts(expected, received int) *Builder {
	b.err.Expected = expected
	b.err.Received = received
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Fatal panics with the error. Used for broken invariants that must not be
// continued past, such as double installs or corrupt boundary encodings.
func Fatal(err *Error) {
	panic(err)
}

// Recover converts a recovered panic value into an error. Fatal bridge
// errors are re-raised; anything else is wrapped as a call failure.
func Recover(r any) error {
	if r == nil {
		return nil
	}
	if e, ok := r.(*Error); ok && IsFatal(e.Kind) {
		panic(e)
	}
	if err, ok := r.(error); ok {
		return Wrap(PhaseCall, KindCallFailed, err, "callee panicked")
	}
	return &Error{
		Phase:    PhaseCall,
		Kind:     KindCallFailed,
		Detail:   fmt.Sprintf("callee panicked: %v", r),
		Value:    r,
		Expected: -1,
		Received: -1,
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return "", false
		}
		err = u.Unwrap()
	}
	return "", false
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Convenience constructors for common error patterns

// NotCopyable creates an error for a copy of a type without copy capability
func NotCopyable(typeName string) *Error {
	return &Error{
		Phase:    PhaseValue,
		Kind:     KindNotCopyable,
		Type:     typeName,
		Detail:   "held type is not copyable",
		Expected: -1,
		Received: -1,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, have, want string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		Type:     have,
		Want:     want,
		Expected: -1,
		Received: -1,
	}
}

// WrongNumber creates an arity error
func WrongNumber(expected, received int) *Error {
	return &Error{
		Phase:    PhaseCall,
		Kind:     KindWrongNumber,
		Detail:   fmt.Sprintf("wrong number of arguments: expected %d, received %d", expected, received),
		Expected: expected,
		Received: received,
	}
}

// WrongType creates an argument conversion error
// A negative position means the value was not a call argument.
func WrongType(position int, have, want, qualifier, detail string) *Error {
	var path []string
	if position >= 0 {
		path = []string{fmt.Sprintf("arg%d", position)}
	}
	return &Error{
		Phase:     PhaseCall,
		Kind:      KindWrongType,
		Path:      path,
		Type:      have,
		Want:      want,
		Qualifier: qualifier,
		Detail:    detail,
		Expected:  -1,
		Received:  position,
	}
}

// CallFailed wraps a dispatch failure for the named callee
func CallFailed(callee string, cause error) *Error {
	return &Error{
		Phase:    PhaseCall,
		Kind:     KindCallFailed,
		Detail:   fmt.Sprintf("call %s", callee),
		Cause:    cause,
		Expected: -1,
		Received: -1,
	}
}

// LookupFailed creates a not-found error for a global name
func LookupFailed(name string) *Error {
	return &Error{
		Phase:    PhaseLookup,
		Kind:     KindLookupFailed,
		Detail:   fmt.Sprintf("name %q not found", name),
		Value:    name,
		Expected: -1,
		Received: -1,
	}
}

// RegistrationConflict creates a double-install error
func RegistrationConflict(typeName, detail string) *Error {
	return &Error{
		Phase:    PhaseInstall,
		Kind:     KindRegistrationConflict,
		Type:     typeName,
		Detail:   detail,
		Expected: -1,
		Received: -1,
	}
}

// Corruption creates an error for an out-of-range boundary encoding
func Corruption(what string, value any) *Error {
	return &Error{
		Phase:    PhaseBoundary,
		Kind:     KindCorruption,
		Detail:   fmt.Sprintf("invalid %s encoding %v", what, value),
		Value:    value,
		Expected: -1,
		Received: -1,
	}
}

// Exhausted creates an error for a full type table
func Exhausted(capacity int) *Error {
	return &Error{
		Phase:    PhaseRegister,
		Kind:     KindExhausted,
		Detail:   fmt.Sprintf("type table exhausted (capacity %d)", capacity),
		Expected: capacity,
		Received: -1,
	}
}

// Duplicate creates an error for a name that is already defined
func Duplicate(phase Phase, what, name string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindDuplicate,
		Detail:   fmt.Sprintf("%s %q already defined", what, name),
		Value:    name,
		Expected: -1,
		Received: -1,
	}
}

// Closed creates an error for use after shutdown
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindClosed,
		Detail:   fmt.Sprintf("%s closed", what),
		Expected: -1,
		Received: -1,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindInvalidInput,
		Detail:   detail,
		Expected: -1,
		Received: -1,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     kind,
		Detail:   detail,
		Cause:    cause,
		Expected: -1,
		Received: -1,
	}
}

package bridge

// Ops is the capability set installed on a type's Table. Destroy is the only
// required capability; the others are optional interfaces discovered by type
// assertion. A missing interface means the capability is absent.
//
// Every pointer passed to a capability is the boxed instance (*T for a Go
// type T) exactly as it is held by a Value or addressed by a Ref.
type Ops interface {
	// Destroy releases one owned instance.
	Destroy(p any)
}

// Copier duplicates an instance into new owned storage.
// Returning false reports that this instance cannot be copied.
type Copier interface {
	Copy(p any) (any, bool)
}

// ValueConverter materializes an owned Value from referenced storage.
// Const and Lvalue must not consume p; Rvalue may.
type ValueConverter interface {
	ToValue(p any, q Qualifier) (Value, bool)
}

// RefConverter produces a non-owning view of p, possibly of another type.
type RefConverter interface {
	ToRef(p any, q Qualifier) (Ref, bool)
}

// Assigner conditionally assigns into p from src.
type Assigner interface {
	AssignIf(p any, src Ref) bool
}

// RefConstructor constructs a new owned Value of the table's type from src.
// It backs implicit conversions.
type RefConstructor interface {
	FromRef(src Ref, s *Scope) (Value, bool)
}

// Caller invokes p as a callable and returns an owned result.
type Caller interface {
	Call(p any, s *Scope, args []Ref) (Value, error)
}

// RefCaller invokes p as a callable and returns a view of state owned elsewhere.
type RefCaller interface {
	CallRef(p any, s *Scope, args []Ref) (Ref, error)
}

// Namer lets a capability set override the table's display name at install.
type Namer interface {
	TypeName() string
}

// Dropper is optionally implemented by held types that need cleanup
// when their owning Value is destroyed.
type Dropper interface {
	Drop()
}

// Cloner is optionally implemented by *T to customize copies of T.
type Cloner[T any] interface {
	Clone() T
}

// tableBinder is implemented by capability sets that need their Index.
type tableBinder interface {
	bindTable(t *Table)
}

// Capability names one slot of a capability set.
type Capability uint8

const (
	CapDestroy Capability = iota
	CapCopy
	CapToValue
	CapToRef
	CapAssignIf
	CapFromRef
	CapCall
	CapCallRef
)

var capabilityNames = [...]string{"destroy", "copy", "to_value", "to_ref", "assign_if", "from_ref", "call", "call_ref"}

func (c Capability) String() string {
	if int(c) < len(capabilityNames) {
		return capabilityNames[c]
	}
	return "unknown"
}

// Capabilities lists the capabilities provided directly by ops.
func Capabilities(ops Ops) []Capability {
	if ops == nil {
		return nil
	}
	caps := []Capability{CapDestroy}
	if _, ok := ops.(Copier); ok {
		caps = append(caps, CapCopy)
	}
	if _, ok := ops.(ValueConverter); ok {
		caps = append(caps, CapToValue)
	}
	if _, ok := ops.(RefConverter); ok {
		caps = append(caps, CapToRef)
	}
	if _, ok := ops.(Assigner); ok {
		caps = append(caps, CapAssignIf)
	}
	if _, ok := ops.(RefConstructor); ok {
		caps = append(caps, CapFromRef)
	}
	if _, ok := ops.(Caller); ok {
		caps = append(caps, CapCall)
	}
	if _, ok := ops.(RefCaller); ok {
		caps = append(caps, CapCallRef)
	}
	return caps
}

// DestroyFunc adapts a function to a capability set holding only Destroy.
type DestroyFunc func(p any)

// Destroy calls f(p).
func (f DestroyFunc) Destroy(p any) { f(p) }

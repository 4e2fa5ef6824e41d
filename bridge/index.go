package bridge

import (
	"reflect"
)

// Index is the identity token of a registered type. Indexes are comparable:
// two Indexes are equal iff they denote the same registered type. The zero
// Index is the null Index.
type Index struct {
	t *Table
}

// IsNull reports whether i denotes no type.
func (i Index) IsNull() bool {
	return i.t == nil
}

// ID returns the dense boundary encoding of i. The null Index encodes as 0.
func (i Index) ID() uint32 {
	if i.t == nil {
		return 0
	}
	return i.t.id
}

// Name returns the display name of the type, or "null".
func (i Index) Name() string {
	if i.t == nil {
		return "null"
	}
	return i.t.Name()
}

// QualifiedName returns the name with the reference suffix of q.
func (i Index) QualifiedName(q Qualifier) string {
	return i.Name() + q.Suffix()
}

func (i Index) String() string {
	return i.Name()
}

// Type returns the Go type token, or nil for null and anonymous types.
func (i Index) Type() reflect.Type {
	if i.t == nil {
		return nil
	}
	return i.t.typ
}

// Table returns the dispatch table behind i, or nil for the null Index.
func (i Index) Table() *Table {
	return i.t
}

// Installed reports whether a capability set has been installed.
func (i Index) Installed() bool {
	return i.t != nil && i.t.Ops() != nil
}

// Bases returns the declared bases of i in registration order.
func (i Index) Bases() []Index {
	if i.t == nil {
		return nil
	}
	return i.t.Bases()
}

// DerivesFrom reports whether base is reachable from i through declared bases.
func (i Index) DerivesFrom(base Index) bool {
	if i.t == nil || base.t == nil {
		return false
	}
	_, ok := i.t.upcastTo(base.t, nil)
	return ok
}

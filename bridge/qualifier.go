package bridge

import (
	"strconv"

	"github.com/wippyai/rebind/errors"
)

// Qualifier governs whether an operation may mutate or consume a referent.
type Qualifier uint8

const (
	Const Qualifier = iota
	Lvalue
	Rvalue
)

var (
	qualifierNames    = [...]string{"const", "lvalue", "rvalue"}
	qualifierSuffixes = [...]string{" const &", " &", " &&"}
)

// Valid reports whether q is one of Const, Lvalue or Rvalue.
func (q Qualifier) Valid() bool {
	return q <= Rvalue
}

func (q Qualifier) String() string {
	if !q.Valid() {
		return "qualifier(" + strconv.Itoa(int(q)) + ")"
	}
	return qualifierNames[q]
}

// Suffix returns the reference suffix appended to qualified type names.
func (q Qualifier) Suffix() string {
	if !q.Valid() {
		return ""
	}
	return qualifierSuffixes[q]
}

// Binds reports whether a reference qualified as q may satisfy a request
// for want. Const requests accept anything; otherwise qualifiers must match.
func (q Qualifier) Binds(want Qualifier) bool {
	return want == Const || q == want
}

// DecodeQualifier validates a qualifier received across a boundary.
// An out-of-range encoding is corruption and panics.
func DecodeQualifier(code uint32) Qualifier {
	if code > uint32(Rvalue) {
		errors.Fatal(errors.Corruption("qualifier", code))
	}
	return Qualifier(code)
}

func mustQualifier(q Qualifier) Qualifier {
	if !q.Valid() {
		errors.Fatal(errors.Corruption("qualifier", uint8(q)))
	}
	return q
}

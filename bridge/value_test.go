package bridge

import (
	"reflect"
	"testing"

	"github.com/wippyai/rebind/errors"
)

type widget struct {
	id int
}

type tracked struct {
	name string
	log  *[]string
}

type closer struct {
	closed *bool
}

func (c *closer) Drop() { *c.closed = true }

type counted struct {
	n int
}

func (c *counted) Clone() counted { return counted{n: c.n + 100} }

func expectPanicKind(t *testing.T, kind errors.Kind, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		e, ok := r.(*errors.Error)
		if !ok {
			t.Fatalf("panic = %v, want *errors.Error", r)
		}
		if e.Kind != kind {
			t.Errorf("panic kind = %s, want %s", e.Kind, kind)
		}
	}()
	fn()
}

func TestValue_Empty(t *testing.T) {
	var v Value
	if v.HasValue() {
		t.Error("zero Value should be empty")
	}
	if !v.Index().IsNull() {
		t.Error("zero Value should have the null Index")
	}
	if v.Name() != "null" {
		t.Errorf("Name() = %q, want null", v.Name())
	}
	if v.Address() != nil {
		t.Error("zero Value should have no address")
	}
	v.Drop()
	v.Drop()

	c, err := v.Clone()
	if err != nil {
		t.Fatalf("Clone of empty Value: %v", err)
	}
	if c.HasValue() {
		t.Error("clone of empty Value should be empty")
	}
}

func TestValue_Int32Scenario(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	v := New[int32](r, 5)
	c, err := v.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if v.Address() == c.Address() {
		t.Error("clone should have independent storage")
	}

	a, err := Extract[int32](&v)
	if err != nil {
		t.Fatalf("Extract original: %v", err)
	}
	b, err := Extract[int32](&c)
	if err != nil {
		t.Fatalf("Extract clone: %v", err)
	}
	if a != 5 || b != 5 {
		t.Errorf("extracted %d and %d, want 5 and 5", a, b)
	}
	if v.HasValue() || c.HasValue() {
		t.Error("Extract should leave the Value empty")
	}
}

func TestValue_CloneRoundTrip(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	tests := []struct {
		name string
		make func() Value
		eq   func(a, b Value) bool
	}{
		{"string", func() Value { return New(r, "hello") }, func(a, b Value) bool {
			x, _ := Extract[string](&a)
			y, _ := Extract[string](&b)
			return x == y && x == "hello"
		}},
		{"float64", func() Value { return New(r, 2.5) }, func(a, b Value) bool {
			x, _ := Extract[float64](&a)
			y, _ := Extract[float64](&b)
			return x == y && x == 2.5
		}},
		{"struct", func() Value { return New(r, widget{id: 3}) }, func(a, b Value) bool {
			x, _ := Extract[widget](&a)
			y, _ := Extract[widget](&b)
			return x == y && x.id == 3
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.make()
			c, err := v.Clone()
			if err != nil {
				t.Fatalf("Clone: %v", err)
			}
			if !tt.eq(v, c) {
				t.Error("clone does not extract equal to the original")
			}
		})
	}
}

func TestValue_WidgetNotCopyable(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	Declare[widget](r, WithoutCopy())
	v := New(r, widget{id: 7})

	c, err := v.Clone()
	if err == nil {
		t.Fatal("Clone of non-copyable type should fail")
	}
	if !errors.IsKind(err, errors.KindNotCopyable) {
		t.Errorf("error kind = %v, want not_copyable", err)
	}
	if c.HasValue() {
		t.Error("failed Clone must not return a Value")
	}
	if !v.HasValue() {
		t.Fatal("original should still hold its content")
	}

	w, err := Extract[widget](&v)
	if err != nil {
		t.Fatalf("Extract after failed Clone: %v", err)
	}
	if w.id != 7 {
		t.Errorf("id = %d, want 7", w.id)
	}
}

func TestValue_ExtractMismatch(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	v := New[int32](r, 5)
	if _, err := Extract[string](&v); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Fatalf("Extract[string] error = %v, want type_mismatch", err)
	}
	if _, err := Extract[int64](&v); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Fatalf("Extract[int64] error = %v, want type_mismatch", err)
	}
	if !v.HasValue() {
		t.Fatal("failed Extract must leave the Value intact")
	}
	n, err := Extract[int32](&v)
	if err != nil || n != 5 {
		t.Errorf("Extract[int32] = %d, %v; want 5, nil", n, err)
	}

	var empty Value
	if _, err := Extract[int32](&empty); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("Extract on empty Value error = %v, want type_mismatch", err)
	}
}

func TestValue_Is(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	v := New[int32](r, 1)
	defer v.Drop()
	if !Is[int32](v) {
		t.Error("Is[int32] = false")
	}
	if Is[uint32](v) {
		t.Error("Is[uint32] = true")
	}
	if _, ok := r.IndexOf(reflect.TypeFor[uint32]()); ok {
		t.Error("Is must not register the queried type")
	}
	if Is[int32](Value{}) {
		t.Error("Is on empty Value = true")
	}
}

func TestValue_DropOnce(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var log []string
	Declare[tracked](r, WithDestructor(func(p *tracked) {
		*p.log = append(*p.log, p.name)
	}))

	v := New(r, tracked{name: "a", log: &log})
	alias := v
	v.Drop()
	alias.Drop()
	v.Drop()

	if len(log) != 1 {
		t.Fatalf("destroy fired %d times, want 1", len(log))
	}
	if v.HasValue() || alias.HasValue() {
		t.Error("dropped Value should be empty through every copy")
	}
}

func TestValue_Move(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var log []string
	Declare[tracked](r, WithDestructor(func(p *tracked) {
		*p.log = append(*p.log, p.name)
	}))

	v := New(r, tracked{name: "a", log: &log})
	m := v.Move()
	if v.HasValue() {
		t.Error("moved-from Value should be empty")
	}
	if !m.HasValue() {
		t.Fatal("moved-to Value should hold the content")
	}
	v.Drop()
	if len(log) != 0 {
		t.Fatal("dropping a moved-from Value must not destroy")
	}
	m.Drop()
	if len(log) != 1 {
		t.Errorf("destroy fired %d times, want 1", len(log))
	}
}

func TestValue_Set(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var log []string
	Declare[tracked](r, WithDestructor(func(p *tracked) {
		*p.log = append(*p.log, p.name)
	}))

	dst := New(r, tracked{name: "old", log: &log})
	src := New(r, tracked{name: "new", log: &log})
	dst.Set(&src)

	if len(log) != 1 || log[0] != "old" {
		t.Fatalf("log = %v, want [old]", log)
	}
	if src.HasValue() {
		t.Error("source should be empty after Set")
	}
	p, ok := Target[tracked](dst)
	if !ok || p.name != "new" {
		t.Errorf("destination holds %v, want new", p)
	}

	dst.Set(&dst)
	if !dst.HasValue() {
		t.Error("self Set should keep the content")
	}
	dst.Drop()
	if len(log) != 2 {
		t.Errorf("log = %v, want two destroys", log)
	}
}

func TestValue_Dropper(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	closed := false
	v := New(r, closer{closed: &closed})
	v.Drop()
	if !closed {
		t.Error("Drop should call the held type's Drop method")
	}
}

func TestValue_ExtractDoesNotDestroy(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var log []string
	Declare[tracked](r, WithDestructor(func(p *tracked) {
		*p.log = append(*p.log, p.name)
	}))

	v := New(r, tracked{name: "a", log: &log})
	out, err := Extract[tracked](&v)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	v.Drop()
	if len(log) != 0 {
		t.Errorf("log = %v, extracted storage must not be destroyed", log)
	}
	if out.name != "a" {
		t.Errorf("name = %q, want a", out.name)
	}
}

func TestValue_CloneUsesCloner(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	v := New(r, counted{n: 1})
	c, err := v.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	out, _ := Extract[counted](&c)
	if out.n != 101 {
		t.Errorf("n = %d, want 101", out.n)
	}
}

func TestValue_Target(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	v := New[int32](r, 1)
	p, ok := Target[int32](v)
	if !ok {
		t.Fatal("Target[int32] failed")
	}
	*p = 9
	if _, ok := Target[string](v); ok {
		t.Error("Target[string] should fail")
	}
	n, _ := Extract[int32](&v)
	if n != 9 {
		t.Errorf("n = %d, want 9", n)
	}
}

func TestValue_Ref(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	v := New[int32](r, 1)
	defer v.Drop()

	tests := []struct {
		q    Qualifier
		want string
	}{
		{Const, "int32 const &"},
		{Lvalue, "int32 &"},
		{Rvalue, "int32 &&"},
	}
	for _, tt := range tests {
		ref := v.Ref(tt.q)
		if ref.Name() != tt.want {
			t.Errorf("Ref(%s).Name() = %q, want %q", tt.q, ref.Name(), tt.want)
		}
		if ref.Address() != v.Address() {
			t.Errorf("Ref(%s) should alias the Value's storage", tt.q)
		}
	}
	if (Value{}).Ref(Const).HasValue() {
		t.Error("Ref of empty Value should be empty")
	}
}

func TestFromPointer(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	if FromPointer[int](r, nil).HasValue() {
		t.Error("FromPointer(nil) should be empty")
	}

	closed := false
	p := &closer{closed: &closed}
	v := FromPointer(r, p)
	if got, ok := Target[closer](v); !ok || got != p {
		t.Fatal("FromPointer should adopt p without copying")
	}
	v.Drop()
	if !closed {
		t.Error("Drop of an adopted pointer should destroy it")
	}
}

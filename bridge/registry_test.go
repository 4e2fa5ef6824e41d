package bridge

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/rebind/errors"
)

type payload struct {
	data []byte
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	a := Register[int32](r)
	b := Register[int32](r)
	if a != b {
		t.Fatal("Register returned different Indexes for one type")
	}
	if a.Name() != "int32" || b.Name() != a.Name() {
		t.Errorf("Name() = %q, want int32", a.Name())
	}
	if a == Register[uint32](r) {
		t.Error("distinct types share an Index")
	}
	if a.IsNull() || a.ID() == 0 {
		t.Error("registered Index should not be null")
	}
}

func TestRegistry_IndexOf(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	rt := reflect.TypeFor[payload]()
	if _, ok := r.IndexOf(rt); ok {
		t.Fatal("IndexOf found an unregistered type")
	}
	idx := Register[payload](r)
	got, ok := r.IndexOf(rt)
	if !ok || got != idx {
		t.Errorf("IndexOf = %v, %v; want %v, true", got, ok, idx)
	}

	byID, ok := r.Index(idx.ID())
	if !ok || byID != idx {
		t.Errorf("Index(%d) = %v, %v", idx.ID(), byID, ok)
	}
	if _, ok := r.Index(0); ok {
		t.Error("Index(0) should be the null Index")
	}
	if _, ok := r.Index(uint32(r.Len() + 1)); ok {
		t.Error("Index past the table should fail")
	}
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	before := r.Len()
	const workers = 32
	results := make([]Index, workers)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			results[i] = TypeOf[payload](r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i, idx := range results {
		if idx != results[0] {
			t.Fatalf("worker %d observed a second table", i)
		}
	}
	if got := r.Len() - before; got != 1 {
		t.Errorf("registered %d tables, want 1", got)
	}
	if !results[0].Installed() {
		t.Error("TypeOf should install default capabilities")
	}
}

func TestRegistry_InstallTwicePanics(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	idx := Declare[widget](r)
	expectPanicKind(t, errors.KindRegistrationConflict, func() {
		r.Install(idx, DefaultOps[widget]())
	})
	expectPanicKind(t, errors.KindRegistrationConflict, func() {
		Declare[widget](r)
	})
	expectPanicKind(t, errors.KindRegistrationConflict, func() {
		r.Install(Index{}, DefaultOps[widget]())
	})
}

func TestRegistry_Exhausted(t *testing.T) {
	// one slot is taken by the function type
	r := NewRegistry(WithMaxTypes(2))
	defer r.Close()

	Register[int8](r)
	expectPanicKind(t, errors.KindExhausted, func() {
		Register[int16](r)
	})
	Register[int8](r)
}

func TestRegistry_Emplace(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	var destroyed []any
	ops := DestroyFunc(func(p any) { destroyed = append(destroyed, p) })

	anon := r.Emplace("handle", nil, ops)
	if anon.Name() != "handle" {
		t.Errorf("Name() = %q, want handle", anon.Name())
	}
	if anon.Type() != nil {
		t.Error("anonymous type should have no Go type")
	}
	if !anon.Installed() {
		t.Error("Emplace should install the capability set")
	}

	named := r.Emplace("i64", reflect.TypeFor[int64](), ops)
	if named != Register[int64](r) {
		t.Error("Emplace with a token should share the token's Index")
	}
	if named.Name() != "i64" {
		t.Errorf("Name() = %q, want i64", named.Name())
	}

	v := Adopt(anon, new(int))
	if _, err := v.Clone(); !errors.IsKind(err, errors.KindNotCopyable) {
		t.Errorf("Clone error = %v, want not_copyable", err)
	}
	v.Drop()
	if len(destroyed) != 1 {
		t.Errorf("destroy calls = %d, want 1", len(destroyed))
	}

	expectPanicKind(t, errors.KindRegistrationConflict, func() {
		r.Emplace("i64", reflect.TypeFor[int64](), ops)
	})
}

func TestRegistry_TypeName(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	idx := Declare[widget](r, WithName("Widget"))
	if idx.Name() != "Widget" {
		t.Errorf("Name() = %q, want Widget", idx.Name())
	}
	if got := idx.QualifiedName(Lvalue); got != "Widget &" {
		t.Errorf("QualifiedName = %q", got)
	}
	if got := TypeOf[payload](r).Name(); got != "bridge.payload" {
		t.Errorf("Name() = %q, want bridge.payload", got)
	}
	if got := r.FunctionIndex().Name(); got != "function" {
		t.Errorf("function type name = %q", got)
	}
}

func TestRegistry_CloseRefusesRegistration(t *testing.T) {
	r := NewRegistry()
	existing := Register[int32](r)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !r.Closed() {
		t.Error("Closed() = false")
	}
	if Register[int32](r) != existing {
		t.Error("registered types should stay resolvable after Close")
	}
	expectPanicKind(t, errors.KindRegistrationConflict, func() {
		Register[uint64](r)
	})
}

func TestRegistry_Options(t *testing.T) {
	want := Options{MaxTypes: DefaultMaxTypes, SemverMatching: true}
	if diff := cmp.Diff(want, DefaultOptions(), cmp.Comparer(func(a, b CallObserver) bool {
		return a == nil && b == nil
	})); diff != "" {
		t.Errorf("DefaultOptions mismatch (-want +got):\n%s", diff)
	}

	r := NewRegistry(WithRegistryName("demo"), WithSemverMatching(false), WithMaxTypes(-1))
	defer r.Close()
	if r.Name() != "demo" {
		t.Errorf("Name() = %q, want demo", r.Name())
	}
	if r.Options().SemverMatching {
		t.Error("SemverMatching should be disabled")
	}
	if r.Options().MaxTypes != DefaultMaxTypes {
		t.Errorf("MaxTypes = %d, want default", r.Options().MaxTypes)
	}

	anon := NewRegistry()
	defer anon.Close()
	if anon.Name() != anon.ID().String() {
		t.Error("unnamed registry should be labelled by its ID")
	}
	if anon.ID() == r.ID() {
		t.Error("registries should have distinct IDs")
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		name string
		ops  Ops
		want []Capability
	}{
		{"default", DefaultOps[int](), []Capability{CapDestroy, CapCopy, CapToValue, CapToRef, CapAssignIf, CapFromRef}},
		{"no copy", DefaultOps[int](WithoutCopy()), []Capability{CapDestroy, CapToValue, CapToRef, CapAssignIf, CapFromRef}},
		{"destroy only", DestroyFunc(func(any) {}), []Capability{CapDestroy}},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Capabilities(tt.ops)); diff != "" {
				t.Errorf("Capabilities mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRegistry_ErrorsAfterClose(t *testing.T) {
	r := NewRegistry()
	v := New(r, 1)
	defer v.Drop()
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := Func(r, func(x float32) {}); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("Func after Close error = %v, want closed", err)
	}
	if _, err := Cast[uint16](v.Ref(Const), nil); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("Cast to a new type after Close error = %v, want closed", err)
	}
	if n, err := Cast[int](v.Ref(Const), nil); err != nil || n != 1 {
		t.Errorf("Cast to a known type after Close = %d, %v", n, err)
	}
	if err := BindMethods[tally](r); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("BindMethods after Close error = %v, want closed", err)
	}
}

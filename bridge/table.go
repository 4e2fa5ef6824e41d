package bridge

import (
	"reflect"
	"sort"
	"sync"
	"unsafe"

	"github.com/wippyai/rebind/errors"
)

// Table is the dispatch table of one registered type. Its capability set is
// installed once and never replaced; bases and methods only accumulate.
type Table struct {
	reg     *Registry
	typ     reflect.Type
	ops     Ops
	methods map[string]Value
	name    string
	bases   []baseLink
	id      uint32
	mu      sync.RWMutex
}

type baseLink struct {
	table  *Table
	upcast func(any) any
}

// Name returns the display name of the table's type.
func (t *Table) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

// Index returns the identity token of the table.
func (t *Table) Index() Index {
	return Index{t: t}
}

// Registry returns the owning registry.
func (t *Table) Registry() *Registry {
	return t.reg
}

// Ops returns the installed capability set, or nil before install.
func (t *Table) Ops() Ops {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ops
}

// Bases returns the declared bases in registration order.
func (t *Table) Bases() []Index {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Index, len(t.bases))
	for i, b := range t.bases {
		out[i] = Index{t: b.table}
	}
	return out
}

// Methods returns the names of methods defined directly on this table.
func (t *Table) Methods() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.methods))
	for name := range t.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Table) destroy(p any) {
	ops := t.Ops()
	if ops == nil {
		errors.Fatal(errors.New(errors.PhaseValue, errors.KindCorruption).
			Type(t.Name()).
			Detail("destroy on a type without installed capabilities").
			Build())
	}
	ops.Destroy(p)
}

func (t *Table) baseLinks() []baseLink {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]baseLink(nil), t.bases...)
}

func (t *Table) method(name string) (Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.methods[name]
	return v, ok
}

// walk visits t and then its bases breadth-first in declaration order, so
// nearer bases are visited before farther ones. p is upcast along each edge;
// a nil p stays nil. visit returns false to stop.
func (t *Table) walk(p any, visit func(tab *Table, p any) bool) {
	type step struct {
		table *Table
		p     any
	}
	seen := map[*Table]bool{t: true}
	queue := []step{{table: t, p: p}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !visit(cur.table, cur.p) {
			return
		}
		for _, b := range cur.table.baseLinks() {
			if seen[b.table] {
				continue
			}
			seen[b.table] = true
			next := cur.p
			if next != nil {
				next = b.upcast(next)
			}
			queue = append(queue, step{table: b.table, p: next})
		}
	}
}

// upcastTo converts p to a pointer usable by target's capabilities.
func (t *Table) upcastTo(target *Table, p any) (any, bool) {
	var out any
	found := false
	t.walk(p, func(tab *Table, q any) bool {
		if tab == target {
			out, found = q, true
			return false
		}
		return true
	})
	return out, found
}

// lookupCap finds the first table along the base walk whose capability set
// implements C, returning it with the receiver upcast for that table.
func lookupCap[C any](t *Table, p any) (C, *Table, any, bool) {
	var (
		found C
		at    *Table
		recv  any
		ok    bool
	)
	t.walk(p, func(tab *Table, q any) bool {
		if c, is := tab.Ops().(C); is {
			found, at, recv, ok = c, tab, q, true
			return false
		}
		return true
	})
	return found, at, recv, ok
}

// lookupMethod finds a named method along the base walk.
func (t *Table) lookupMethod(name string, p any) (Value, *Table, any, bool) {
	var (
		fn   Value
		at   *Table
		recv any
		ok   bool
	)
	t.walk(p, func(tab *Table, q any) bool {
		if m, is := tab.method(name); is {
			fn, at, recv, ok = m, tab, q, true
			return false
		}
		return true
	})
	return fn, at, recv, ok
}

// embeddedUpcast derives an upcast from derived to base through struct
// embedding of base or *base at any depth.
func embeddedUpcast(derived, base reflect.Type) (func(any) any, bool) {
	if derived == nil || base == nil || derived.Kind() != reflect.Struct {
		return nil, false
	}
	path, viaPointer, ok := findEmbedded(derived, base, nil, 0)
	if !ok {
		return nil, false
	}
	return func(p any) any {
		f := reflect.ValueOf(p).Elem().FieldByIndex(path)
		// unexported embeddings are read-only through reflect; alias the field
		f = reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem()
		if viaPointer {
			if f.IsNil() {
				return nil
			}
			return f.Interface()
		}
		return f.Addr().Interface()
	}, true
}

func findEmbedded(st, base reflect.Type, prefix []int, depth int) ([]int, bool, bool) {
	if depth > 8 {
		return nil, false, false
	}
	var nested []reflect.StructField
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.Anonymous {
			continue
		}
		path := append(append([]int(nil), prefix...), i)
		switch {
		case f.Type == base:
			return path, false, true
		case f.Type.Kind() == reflect.Pointer && f.Type.Elem() == base:
			return path, true, true
		case f.Type.Kind() == reflect.Struct:
			nested = append(nested, f)
		}
	}
	// shallower embeddings win, matching Go's field promotion
	for _, f := range nested {
		path := append(append([]int(nil), prefix...), f.Index...)
		if p, ptr, ok := findEmbedded(f.Type, base, path, depth+1); ok {
			return p, ptr, ok
		}
	}
	return nil, false, false
}

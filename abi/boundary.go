package abi

import (
	"encoding/binary"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/rebind"
	"github.com/wippyai/rebind/arena"
	"github.com/wippyai/rebind/bridge"
	"github.com/wippyai/rebind/errors"
)

// RefSize is the byte size of a ref record {handle, index, qualifier}.
const RefSize = 12

// entry is what a guest handle names: an owned Value, or a view of state
// owned elsewhere (a global, or the result of call_ref).
type entry struct {
	value bridge.Value
	view  bridge.Ref
}

func (e *entry) owned() bool { return e.value.HasValue() }

// Drop destroys owned content. Views own nothing.
func (e *entry) Drop() { e.value.Drop() }

func (e *entry) index() bridge.Index {
	if e.owned() {
		return e.value.Index()
	}
	return e.view.Index()
}

// ref returns the entry as a ref with qualifier q. Views cannot be widened.
func (e *entry) ref(q bridge.Qualifier) (bridge.Ref, bool) {
	if e.owned() {
		return e.value.Ref(q), true
	}
	if !e.view.Qualifier().Binds(q) {
		return bridge.Ref{}, false
	}
	return e.view.WithQualifier(q), true
}

func (e *entry) self() bridge.Ref {
	if e.owned() {
		return e.value.Ref(bridge.Lvalue)
	}
	return e.view
}

// Boundary exposes a Registry to a guest through u32 handles. Each method
// mirrors one export of the host module. Recoverable failures are recorded
// as the last error; corrupt encodings panic with a fatal *errors.Error,
// which traps the guest.
type Boundary struct {
	reg     *bridge.Registry
	values  *arena.Arena[*entry]
	log     *zap.Logger
	lastErr error
	cfg     Config
	mu      sync.Mutex
}

// NewBoundary creates a boundary over reg.
func NewBoundary(reg *bridge.Registry, cfg Config) *Boundary {
	b := &Boundary{
		reg:    reg,
		values: arena.New[*entry](),
		cfg:    cfg.normalize(),
		log:    Logger().With(zap.String("registry", reg.Name())),
	}
	b.values.Subscribe(arena.LogObserver(b.log))
	return b
}

// Registry returns the registry behind the boundary.
func (b *Boundary) Registry() *bridge.Registry {
	return b.reg
}

// Config returns the normalized configuration.
func (b *Boundary) Config() Config {
	return b.cfg
}

// Len returns the number of live guest handles.
func (b *Boundary) Len() int {
	return b.values.Len()
}

// Close drops every value still owned by the guest.
func (b *Boundary) Close() error {
	return b.values.Close()
}

// Err returns the last recorded failure, or nil when the last operation
// succeeded.
func (b *Boundary) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *Boundary) clear() {
	b.mu.Lock()
	b.lastErr = nil
	b.mu.Unlock()
}

func (b *Boundary) fail(op string, err error) {
	b.log.Debug("boundary operation failed", zap.String("op", op), zap.Error(err))
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
}

// Insert hands v to the guest and returns its handle. An empty Value is
// the null handle.
func (b *Boundary) Insert(v bridge.Value) uint32 {
	if !v.HasValue() {
		return 0
	}
	h := b.values.Insert(v.Index().ID(), &entry{value: v})
	if h == 0 {
		v.Drop()
		b.fail("insert", errors.Closed(errors.PhaseBoundary, "boundary"))
	}
	return uint32(h)
}

func (b *Boundary) insertView(r bridge.Ref) uint32 {
	if !r.HasValue() {
		return 0
	}
	h := b.values.Insert(r.Index().ID(), &entry{view: r})
	if h == 0 {
		b.fail("insert", errors.Closed(errors.PhaseBoundary, "boundary"))
	}
	return uint32(h)
}

// Ref returns the value behind handle h as a ref with qualifier q.
func (b *Boundary) Ref(h uint32, q bridge.Qualifier) (bridge.Ref, bool) {
	e, ok := b.values.Get(arena.Handle(h))
	if !ok {
		return bridge.Ref{}, false
	}
	return e.ref(q)
}

func (b *Boundary) get(h uint32) (*entry, error) {
	e, ok := b.values.Get(arena.Handle(h))
	if !ok {
		return nil, errors.New(errors.PhaseBoundary, errors.KindInvalidInput).
			Value(h).
			Detail("unknown handle %d", h).
			Build()
	}
	return e, nil
}

// borrow holds h for the duration of a call so the guest cannot drop it.
func (b *Boundary) borrow(h uint32) func() {
	handle := arena.Handle(h)
	if !b.values.Borrow(handle) {
		return func() {}
	}
	return func() { b.values.ReturnBorrow(handle) }
}

func (b *Boundary) readString(mem rebind.Memory, ptr, n uint32) (string, error) {
	if mem == nil {
		return "", errors.InvalidInput(errors.PhaseBoundary, "guest exports no memory")
	}
	if n > b.cfg.MaxStringLen {
		return "", errors.New(errors.PhaseBoundary, errors.KindInvalidInput).
			Counts(int(b.cfg.MaxStringLen), int(n)).
			Detail("string of %d bytes exceeds limit", n).
			Build()
	}
	data, err := mem.Read(ptr, n)
	if err != nil {
		return "", errors.Wrap(errors.PhaseBoundary, errors.KindInvalidInput, err, "read string")
	}
	return string(data), nil
}

// writeString copies s to out when it fits in capacity and returns its
// length either way.
func writeString(mem rebind.Memory, out, capacity uint32, s string) (int32, error) {
	if mem == nil {
		return -1, errors.InvalidInput(errors.PhaseBoundary, "guest exports no memory")
	}
	if uint32(len(s)) <= capacity {
		if err := mem.Write(out, []byte(s)); err != nil {
			return -1, errors.Wrap(errors.PhaseBoundary, errors.KindInvalidInput, err, "write string")
		}
	}
	return int32(len(s)), nil
}

func writeU32(mem rebind.Memory, out, v uint32) error {
	if mem == nil {
		return errors.InvalidInput(errors.PhaseBoundary, "guest exports no memory")
	}
	if err := mem.WriteU32(out, v); err != nil {
		return errors.Wrap(errors.PhaseBoundary, errors.KindInvalidInput, err, "write result")
	}
	return nil
}

// readRefs decodes n ref records at ptr and borrows their handles. The
// returned release func must run once the call is over, even on error.
func (b *Boundary) readRefs(mem rebind.Memory, ptr, n uint32) ([]bridge.Ref, func(), error) {
	var held []func()
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	if n == 0 {
		return nil, release, nil
	}
	if n > b.cfg.MaxArgs {
		return nil, release, errors.New(errors.PhaseBoundary, errors.KindInvalidInput).
			Counts(int(b.cfg.MaxArgs), int(n)).
			Detail("too many arguments").
			Build()
	}
	if mem == nil {
		return nil, release, errors.InvalidInput(errors.PhaseBoundary, "guest exports no memory")
	}
	raw, err := mem.Read(ptr, n*RefSize)
	if err != nil {
		return nil, release, errors.Wrap(errors.PhaseBoundary, errors.KindInvalidInput, err, "read arguments")
	}

	defer func() {
		if p := recover(); p != nil {
			release()
			panic(p)
		}
	}()

	refs := make([]bridge.Ref, n)
	for i := range refs {
		rec := raw[i*RefSize:]
		h := binary.LittleEndian.Uint32(rec[0:])
		idx := binary.LittleEndian.Uint32(rec[4:])
		q := bridge.DecodeQualifier(binary.LittleEndian.Uint32(rec[8:]))

		if h == 0 {
			if idx != 0 {
				errors.Fatal(errors.Corruption("index", idx))
			}
			continue
		}
		e, ok := b.values.Get(arena.Handle(h))
		if !ok {
			errors.Fatal(errors.Corruption("handle", h))
		}
		if e.index().ID() != idx {
			errors.Fatal(errors.Corruption("index", idx))
		}
		r, ok := e.ref(q)
		if !ok {
			return nil, release, errors.WrongType(i, e.view.Name(), e.view.Index().QualifiedName(q), q.String(),
				"handle is a narrower view")
		}
		refs[i] = r
		held = append(held, b.borrow(h))
	}
	return refs, release, nil
}

// Lookup resolves a global by name and returns a handle viewing it.
func (b *Boundary) Lookup(mem rebind.Memory, namePtr, nameLen uint32) uint32 {
	b.clear()
	name, err := b.readString(mem, namePtr, nameLen)
	if err != nil {
		b.fail("lookup", err)
		return 0
	}
	ref, err := b.reg.Lookup(name)
	if err != nil {
		b.fail("lookup", err)
		return 0
	}
	return b.insertView(ref)
}

// IndexName writes the name of a type index to out and returns its length,
// or -1 for an unknown index. Nothing is written when the name exceeds
// capacity.
func (b *Boundary) IndexName(mem rebind.Memory, index, out, capacity uint32) int32 {
	b.clear()
	idx, ok := b.reg.Index(index)
	if !ok {
		b.fail("index_name", errors.New(errors.PhaseBoundary, errors.KindLookupFailed).
			Value(index).
			Detail("unknown type index %d", index).
			Build())
		return -1
	}
	n, err := writeString(mem, out, capacity, idx.Name())
	if err != nil {
		b.fail("index_name", err)
	}
	return n
}

// ValueIndex returns the type index of the value behind h, 0 for the null
// handle.
func (b *Boundary) ValueIndex(h uint32) uint32 {
	b.clear()
	if h == 0 {
		return 0
	}
	e, err := b.get(h)
	if err != nil {
		b.fail("value_index", err)
		return 0
	}
	return e.index().ID()
}

// Drop releases handle h, destroying owned content.
func (b *Boundary) Drop(h uint32) {
	b.clear()
	if h == 0 {
		return
	}
	e, err := b.values.Take(arena.Handle(h))
	if err != nil {
		b.fail("drop", err)
		return
	}
	e.Drop()
}

// Copy clones the value behind h into a new handle written to out.
func (b *Boundary) Copy(mem rebind.Memory, h, out uint32) bool {
	b.clear()
	e, err := b.get(h)
	if err != nil {
		b.fail("copy", err)
		return false
	}
	var c bridge.Value
	if e.owned() {
		c, err = e.value.Clone()
	} else {
		c, err = e.view.WithQualifier(bridge.Const).ToValue()
	}
	if err != nil {
		b.fail("copy", err)
		return false
	}
	return b.writeHandle(mem, "copy", out, c)
}

func (b *Boundary) writeHandle(mem rebind.Memory, op string, out uint32, v bridge.Value) bool {
	nh := b.Insert(v)
	if v.HasValue() && nh == 0 {
		return false
	}
	if err := writeU32(mem, out, nh); err != nil {
		b.values.Remove(arena.Handle(nh))
		b.fail(op, err)
		return false
	}
	return true
}

func (b *Boundary) callee(op string, h uint32) (bridge.Ref, func(), bool) {
	e, err := b.get(h)
	if err != nil {
		b.fail(op, err)
		return bridge.Ref{}, nil, false
	}
	return e.self(), b.borrow(h), true
}

// CallValue calls the value behind h and writes the handle of the owned
// result to out. A call without result writes the null handle.
func (b *Boundary) CallValue(mem rebind.Memory, out, h, argsPtr, argsLen uint32) bool {
	b.clear()
	fn, done, ok := b.callee("call_value", h)
	if !ok {
		return false
	}
	defer done()

	args, release, err := b.readRefs(mem, argsPtr, argsLen)
	defer release()
	if err != nil {
		b.fail("call_value", err)
		return false
	}
	v, err := fn.Call(args...)
	if err != nil {
		b.fail("call_value", err)
		return false
	}
	return b.writeHandle(mem, "call_value", out, v)
}

// CallRef calls the value behind h and writes a ref record viewing the
// result to out.
func (b *Boundary) CallRef(mem rebind.Memory, h, argsPtr, argsLen, out uint32) bool {
	b.clear()
	fn, done, ok := b.callee("call_ref", h)
	if !ok {
		return false
	}
	defer done()

	args, release, err := b.readRefs(mem, argsPtr, argsLen)
	defer release()
	if err != nil {
		b.fail("call_ref", err)
		return false
	}
	r, err := fn.CallRef(args...)
	if err != nil {
		b.fail("call_ref", err)
		return false
	}

	var rec [RefSize]byte
	vh := b.insertView(r)
	binary.LittleEndian.PutUint32(rec[0:], vh)
	if vh != 0 {
		binary.LittleEndian.PutUint32(rec[4:], r.Index().ID())
		binary.LittleEndian.PutUint32(rec[8:], uint32(r.Qualifier()))
	}
	if mem == nil {
		b.values.Take(arena.Handle(vh))
		b.fail("call_ref", errors.InvalidInput(errors.PhaseBoundary, "guest exports no memory"))
		return false
	}
	if err := mem.Write(out, rec[:]); err != nil {
		b.values.Take(arena.Handle(vh))
		b.fail("call_ref", errors.Wrap(errors.PhaseBoundary, errors.KindInvalidInput, err, "write result"))
		return false
	}
	return true
}

// MethodToValue calls the named method on the value behind h and returns the
// handle of the owned result. It returns 0 on failure or for a method
// without result; the last error tells them apart.
func (b *Boundary) MethodToValue(mem rebind.Memory, h, namePtr, nameLen, argsPtr, argsLen uint32) uint32 {
	b.clear()
	self, done, ok := b.callee("method_to_value", h)
	if !ok {
		return 0
	}
	defer done()

	name, err := b.readString(mem, namePtr, nameLen)
	if err != nil {
		b.fail("method_to_value", err)
		return 0
	}
	args, release, err := b.readRefs(mem, argsPtr, argsLen)
	defer release()
	if err != nil {
		b.fail("method_to_value", err)
		return 0
	}
	v, err := self.Method(name, args...)
	if err != nil {
		b.fail("method_to_value", err)
		return 0
	}
	return b.Insert(v)
}

// AddBase declares base as a base of derived, both given as type indexes.
func (b *Boundary) AddBase(derived, base uint32) bool {
	b.clear()
	d, ok := b.reg.Index(derived)
	if !ok {
		b.fail("add_base", errors.InvalidInput(errors.PhaseBoundary, "unknown derived index"))
		return false
	}
	bs, ok := b.reg.Index(base)
	if !ok {
		b.fail("add_base", errors.InvalidInput(errors.PhaseBoundary, "unknown base index"))
		return false
	}
	if err := b.reg.AddBase(d, bs); err != nil {
		b.fail("add_base", err)
		return false
	}
	return true
}

// NewI64 returns a handle owning n.
func (b *Boundary) NewI64(n int64) uint32 {
	b.clear()
	return b.Insert(bridge.New(b.reg, n))
}

// NewF64 returns a handle owning f.
func (b *Boundary) NewF64(f float64) uint32 {
	b.clear()
	return b.Insert(bridge.New(b.reg, f))
}

// NewString returns a handle owning a copy of the guest string.
func (b *Boundary) NewString(mem rebind.Memory, ptr, n uint32) uint32 {
	b.clear()
	s, err := b.readString(mem, ptr, n)
	if err != nil {
		b.fail("new_string", err)
		return 0
	}
	return b.Insert(bridge.New(b.reg, s))
}

func (b *Boundary) constRef(op string, h uint32) (bridge.Ref, bool) {
	e, err := b.get(h)
	if err != nil {
		b.fail(op, err)
		return bridge.Ref{}, false
	}
	r, _ := e.ref(bridge.Const)
	return r, true
}

// GetI64 converts the value behind h to int64 and writes it to out.
func (b *Boundary) GetI64(mem rebind.Memory, h, out uint32) bool {
	b.clear()
	r, ok := b.constRef("get_i64", h)
	if !ok {
		return false
	}
	n, err := bridge.Cast[int64](r, nil)
	if err != nil {
		b.fail("get_i64", err)
		return false
	}
	return b.writeU64("get_i64", mem, out, uint64(n))
}

// GetF64 converts the value behind h to float64 and writes it to out.
func (b *Boundary) GetF64(mem rebind.Memory, h, out uint32) bool {
	b.clear()
	r, ok := b.constRef("get_f64", h)
	if !ok {
		return false
	}
	f, err := bridge.Cast[float64](r, nil)
	if err != nil {
		b.fail("get_f64", err)
		return false
	}
	return b.writeU64("get_f64", mem, out, math.Float64bits(f))
}

func (b *Boundary) writeU64(op string, mem rebind.Memory, out uint32, v uint64) bool {
	if mem == nil {
		b.fail(op, errors.InvalidInput(errors.PhaseBoundary, "guest exports no memory"))
		return false
	}
	if err := mem.WriteU64(out, v); err != nil {
		b.fail(op, errors.Wrap(errors.PhaseBoundary, errors.KindInvalidInput, err, "write result"))
		return false
	}
	return true
}

// GetString writes the string behind h to out and returns its length, or
// -1 when h does not hold a string.
func (b *Boundary) GetString(mem rebind.Memory, h, out, capacity uint32) int32 {
	b.clear()
	r, ok := b.constRef("get_string", h)
	if !ok {
		return -1
	}
	s, err := bridge.Cast[string](r, nil)
	if err != nil {
		b.fail("get_string", err)
		return -1
	}
	n, err := writeString(mem, out, capacity, s)
	if err != nil {
		b.fail("get_string", err)
	}
	return n
}

// LastError writes the message of the last failure to out and returns its
// length, 0 when there is none.
func (b *Boundary) LastError(mem rebind.Memory, out, capacity uint32) int32 {
	err := b.Err()
	if err == nil {
		return 0
	}
	n, werr := writeString(mem, out, capacity, err.Error())
	if werr != nil {
		return -1
	}
	return n
}

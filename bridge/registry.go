package bridge

import (
	"maps"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/rebind/errors"
)

// DefaultMaxTypes fits type ids in the u16-safe handle space of the boundary.
const DefaultMaxTypes = 65535

// Options configures a Registry.
type Options struct {
	Logger         *zap.Logger
	CallObserver   CallObserver
	Name           string
	MaxTypes       int
	SemverMatching bool
}

// DefaultOptions returns default registry configuration.
func DefaultOptions() Options {
	return Options{
		MaxTypes:       DefaultMaxTypes,
		SemverMatching: true,
	}
}

// Option adjusts Options.
type Option func(*Options)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMaxTypes sets the type capacity. Registering past it is fatal.
func WithMaxTypes(n int) Option {
	return func(o *Options) { o.MaxTypes = n }
}

// WithSemverMatching enables semver-compatible fallback in Lookup.
func WithSemverMatching(enabled bool) Option {
	return func(o *Options) { o.SemverMatching = enabled }
}

// WithRegistryName labels the registry in logs and schemas.
func WithRegistryName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// Registry maps Go types to dispatch tables and holds named globals.
// Thread-safe.
type Registry struct {
	byType  sync.Map // reflect.Type -> *Table
	log     *zap.Logger
	globals *globals
	fnIndex Index
	tables  []*Table
	opts    Options
	id      uuid.UUID
	mu      sync.RWMutex
	closed  atomic.Bool
}

// NewRegistry creates a registry configured by opts.
func NewRegistry(opts ...Option) *Registry {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return NewRegistryWithOptions(o)
}

// NewRegistryWithOptions creates a registry with the given configuration.
func NewRegistryWithOptions(o Options) *Registry {
	if o.MaxTypes <= 0 {
		o.MaxTypes = DefaultMaxTypes
	}
	r := &Registry{
		opts:    o,
		id:      uuid.New(),
		globals: newGlobals(),
	}
	log := o.Logger
	if log == nil {
		log = Logger()
	}
	r.log = log.With(zap.String("registry", r.label()))
	r.fnIndex = r.installFunctionType()
	return r
}

func (r *Registry) label() string {
	if r.opts.Name != "" {
		return r.opts.Name
	}
	return r.id.String()
}

// ID returns the registry's instance identifier.
func (r *Registry) ID() uuid.UUID {
	return r.id
}

// Name returns the configured name, or the instance identifier.
func (r *Registry) Name() string {
	return r.label()
}

// Options returns the configuration.
func (r *Registry) Options() Options {
	return r.opts
}

// Log returns the registry logger.
func (r *Registry) Log() *zap.Logger {
	return r.log
}

// Register returns the Index of T, creating its table on first use.
func Register[T any](r *Registry) Index {
	return r.Register(reflect.TypeFor[T]())
}

// TypeOf returns the Index of T with the default capability set installed
// when nothing was installed before.
func TypeOf[T any](r *Registry) Index {
	return r.TypeOf(reflect.TypeFor[T]())
}

// typeFor is TypeOf for paths that return errors: on a closed registry it
// resolves only types registered before Close.
func typeFor[T any](r *Registry) (Index, error) {
	if r.Closed() {
		if _, ok := r.IndexOf(reflect.TypeFor[T]()); !ok {
			return Index{}, errors.Closed(errors.PhaseCast, "registry")
		}
	}
	return TypeOf[T](r), nil
}

// Declare registers T and installs its default capability set built with opts.
// Declaring an already installed type is a registration conflict.
func Declare[T any](r *Registry, opts ...TypeOption) Index {
	idx := Register[T](r)
	r.Install(idx, DefaultOps[T](opts...))
	return idx
}

// IndexOf returns the Index of rt without registering it.
func (r *Registry) IndexOf(rt reflect.Type) (Index, bool) {
	if rt == nil {
		return Index{}, false
	}
	if t, ok := r.byType.Load(rt); ok {
		return Index{t: t.(*Table)}, true
	}
	return Index{}, false
}

// Index returns the Index with the given boundary id.
func (r *Registry) Index(id uint32) (Index, bool) {
	if id == 0 {
		return Index{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) > len(r.tables) {
		return Index{}, false
	}
	return Index{t: r.tables[id-1]}, true
}

// Register returns the Index of rt. Concurrent first registrations of one
// type agree on a single table.
func (r *Registry) Register(rt reflect.Type) Index {
	if rt == nil {
		errors.Fatal(errors.RegistrationConflict("<nil>", "nil type token"))
	}
	if t, ok := r.byType.Load(rt); ok {
		return Index{t: t.(*Table)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byType.Load(rt); ok {
		return Index{t: t.(*Table)}
	}
	t := r.newTableLocked(rt, rt.String())
	r.byType.Store(rt, t)
	return Index{t: t}
}

// TypeOf returns the Index of rt, installing default capabilities if needed.
func (r *Registry) TypeOf(rt reflect.Type) Index {
	idx := r.Register(rt)
	t := idx.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ops == nil {
		r.installLocked(t, newDefaultOps(rt))
	}
	return idx
}

// Emplace registers a type under an explicit display name with an explicit
// capability set. A nil token creates an anonymous type reachable only
// through the returned Index.
func (r *Registry) Emplace(name string, token reflect.Type, ops Ops) Index {
	var t *Table
	if token == nil {
		t = r.anonymousTable(name)
	} else {
		t = r.Register(token).t
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ops != nil {
		errors.Fatal(errors.RegistrationConflict(t.name, "capabilities already installed"))
	}
	if name != "" {
		t.name = name
	}
	r.installLocked(t, ops)
	return Index{t: t}
}

// Install attaches ops to idx. A table accepts exactly one install.
func (r *Registry) Install(idx Index, ops Ops) {
	if idx.IsNull() {
		errors.Fatal(errors.RegistrationConflict("null", "install on the null index"))
	}
	t := idx.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ops != nil {
		errors.Fatal(errors.RegistrationConflict(t.name, "capabilities already installed"))
	}
	r.installLocked(t, ops)
}

func (r *Registry) installLocked(t *Table, ops Ops) {
	if ops == nil {
		errors.Fatal(errors.RegistrationConflict(t.name, "nil capability set"))
	}
	if b, ok := ops.(tableBinder); ok {
		b.bindTable(t)
	}
	if n, ok := ops.(Namer); ok && n.TypeName() != "" {
		t.name = n.TypeName()
	}
	t.ops = ops
	r.log.Debug("capabilities installed",
		zap.String("type", t.name),
		zap.Uint32("index", t.id),
		zap.Stringers("caps", Capabilities(ops)))
}

func (r *Registry) anonymousTable(name string) *Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newTableLocked(nil, name)
}

func (r *Registry) newTableLocked(rt reflect.Type, name string) *Table {
	if r.closed.Load() {
		errors.Fatal(errors.RegistrationConflict(name, "registry closed"))
	}
	if len(r.tables) >= r.opts.MaxTypes {
		errors.Fatal(errors.Exhausted(r.opts.MaxTypes))
	}
	t := &Table{
		reg:     r,
		typ:     rt,
		name:    name,
		id:      uint32(len(r.tables) + 1),
		methods: make(map[string]Value),
	}
	r.tables = append(r.tables, t)
	r.log.Debug("type registered", zap.String("type", name), zap.Uint32("index", t.id))
	return t
}

// Types returns every registered Index in registration order.
func (r *Registry) Types() []Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Index, len(r.tables))
	for i, t := range r.tables {
		out[i] = Index{t: t}
	}
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

// AddBase declares base as a base of derived. The upcast is derived from
// struct embedding of base or *base in derived.
func (r *Registry) AddBase(derived, base Index) error {
	if derived.IsNull() || base.IsNull() {
		return errors.InvalidInput(errors.PhaseInstall, "base relation on the null index")
	}
	upcast, ok := embeddedUpcast(derived.t.typ, base.t.typ)
	if !ok {
		return errors.New(errors.PhaseInstall, errors.KindTypeMismatch).
			Type(derived.Name()).
			Want(base.Name()).
			Detail("no embedding path from derived to base").
			Build()
	}
	return r.AddBaseFunc(derived, base, upcast)
}

// AddBaseFunc declares base as a base of derived with an explicit upcast from
// a derived instance pointer to a base instance pointer.
func (r *Registry) AddBaseFunc(derived, base Index, upcast func(any) any) error {
	if derived.IsNull() || base.IsNull() {
		return errors.InvalidInput(errors.PhaseInstall, "base relation on the null index")
	}
	if derived == base {
		return errors.InvalidInput(errors.PhaseInstall, "type cannot be its own base")
	}
	if upcast == nil {
		return errors.InvalidInput(errors.PhaseInstall, "nil upcast")
	}

	t := derived.t
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range t.bases {
		if b.table == base.t {
			return nil
		}
	}
	t.bases = append(t.bases, baseLink{table: base.t, upcast: upcast})
	r.log.Debug("base added",
		zap.String("type", t.name),
		zap.String("base", base.Name()))
	return nil
}

// DefineMethod attaches a named callable to idx. The registry owns fn from
// then on. Redefining a name on one table is a registration conflict.
func (r *Registry) DefineMethod(idx Index, name string, fn Value) error {
	if idx.IsNull() {
		return errors.InvalidInput(errors.PhaseInstall, "method on the null index")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseInstall, "empty method name")
	}
	if !fn.HasValue() {
		return errors.InvalidInput(errors.PhaseInstall, "empty method value")
	}
	if _, _, _, ok := lookupCap[Caller](fn.box.idx.t, fn.box.ptr); !ok {
		return errors.New(errors.PhaseInstall, errors.KindTypeMismatch).
			Type(fn.Name()).
			Detail("method %q is not callable", name).
			Build()
	}

	t := idx.t
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.methods[name]; exists {
		errors.Fatal(errors.RegistrationConflict(t.name, "method "+name+" already defined"))
	}
	t.methods[name] = fn
	r.log.Debug("method defined", zap.String("type", t.name), zap.String("method", name))
	return nil
}

// Closed reports whether Close has been called.
func (r *Registry) Closed() bool {
	return r.closed.Load()
}

// Close drops globals in reverse definition order, then methods. Types stay
// resolvable; new registrations are refused.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	n := r.globals.dropAll()

	r.mu.RLock()
	tables := append([]*Table(nil), r.tables...)
	r.mu.RUnlock()
	for i := len(tables) - 1; i >= 0; i-- {
		t := tables[i]
		t.mu.Lock()
		methods := t.methods
		t.methods = make(map[string]Value)
		t.mu.Unlock()
		for _, name := range slices.Sorted(maps.Keys(methods)) {
			m := methods[name]
			m.Drop()
		}
	}
	r.log.Debug("registry closed", zap.Int("globals", n), zap.Int("types", len(tables)))
	return nil
}

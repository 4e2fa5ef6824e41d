package bridge

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/rebind/errors"
)

// Version represents a semantic version attached to a global name
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses a version string like "0.2.0" or "0.2"
func ParseVersion(s string) (Version, bool) {
	if s == "" {
		return Version{}, false
	}

	var v Version
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, false
	}

	for i, p := range parts {
		if p == "" {
			return Version{}, false
		}
		var n uint32
		for _, c := range p {
			if c < '0' || c > '9' {
				return Version{}, false
			}
			if n > 429496729 || (n == 429496729 && c > '5') {
				return Version{}, false
			}
			n = n*10 + uint32(c-'0')
		}
		switch i {
		case 0:
			v.Major = n
		case 1:
			v.Minor = n
		case 2:
			v.Patch = n
		}
	}
	return v, true
}

// Compatible returns true if v can stand in for want: same major, and not older.
func (v Version) Compatible(want Version) bool {
	if v.Major != want.Major {
		return false
	}
	if v.Minor != want.Minor {
		return v.Minor > want.Minor
	}
	return v.Patch >= want.Patch
}

// Less orders versions by major, minor, then patch.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

// String returns the version as "major.minor.patch"
func (v Version) String() string {
	return uintToStr(v.Major) + "." + uintToStr(v.Minor) + "." + uintToStr(v.Patch)
}

func uintToStr(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// parseNameVersion splits "name@version" into name and parsed version.
// A suffix that is not a version stays part of the name.
func parseNameVersion(s string) (string, *Version) {
	idx := strings.LastIndex(s, "@")
	if idx < 0 {
		return s, nil
	}
	if v, ok := ParseVersion(s[idx+1:]); ok {
		return s[:idx], &v
	}
	return s, nil
}

func globalKey(name string, v *Version) string {
	if v == nil {
		return name
	}
	return name + "@" + v.String()
}

type global struct {
	version *Version
	name    string
	key     string
	value   Value
}

// globals is the flat namespace of statically lived values.
type globals struct {
	byKey map[string]*global
	order []*global
	mu    sync.RWMutex
}

func newGlobals() *globals {
	return &globals{byKey: make(map[string]*global)}
}

func (g *globals) define(name string, v Value) (string, error) {
	base, ver := parseNameVersion(name)
	if base == "" {
		return "", errors.InvalidInput(errors.PhaseLookup, "empty global name")
	}
	key := globalKey(base, ver)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.byKey[key]; exists {
		return "", errors.Duplicate(errors.PhaseLookup, "global", key)
	}
	e := &global{name: base, version: ver, key: key, value: v}
	g.byKey[key] = e
	g.order = append(g.order, e)
	return key, nil
}

// find resolves name exactly, then by semver compatibility when enabled.
// An unversioned name also matches the highest defined version.
func (g *globals) find(name string, semver bool) (*global, bool) {
	base, ver := parseNameVersion(name)

	g.mu.RLock()
	defer g.mu.RUnlock()
	if e, ok := g.byKey[globalKey(base, ver)]; ok {
		return e, true
	}
	if !semver {
		return nil, false
	}

	var best *global
	for _, e := range g.order {
		if e.name != base || e.version == nil {
			continue
		}
		if ver != nil && !e.version.Compatible(*ver) {
			continue
		}
		if best == nil || best.version.Less(*e.version) {
			best = e
		}
	}
	return best, best != nil
}

func (g *globals) keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	for i, e := range g.order {
		out[i] = e.key
	}
	return out
}

func (g *globals) dropAll() int {
	g.mu.Lock()
	order := g.order
	g.order = nil
	g.byKey = make(map[string]*global)
	g.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		order[i].value.Drop()
	}
	return len(order)
}

// Define places v in the global namespace under name, which may carry an
// "@major.minor.patch" suffix. The registry owns v on success; on error the
// caller keeps it.
func (r *Registry) Define(name string, v Value) error {
	if r.closed.Load() {
		return errors.Closed(errors.PhaseLookup, "registry")
	}
	if !v.HasValue() {
		return errors.InvalidInput(errors.PhaseLookup, "global "+name+" has no value")
	}
	key, err := r.globals.define(name, v)
	if err != nil {
		return err
	}
	r.log.Debug("global defined", zap.String("name", key), zap.String("type", v.Name()))
	return nil
}

// DefineFunc wraps fn with Func and defines it under name.
func (r *Registry) DefineFunc(name string, fn any) error {
	v, err := Func(r, fn)
	if err != nil {
		return err
	}
	if err := r.Define(name, v); err != nil {
		v.Drop()
		return err
	}
	return nil
}

// Lookup returns a const view of the global defined under name.
func (r *Registry) Lookup(name string) (Ref, error) {
	e, ok := r.globals.find(name, r.opts.SemverMatching)
	if !ok {
		return Ref{}, errors.LookupFailed(name)
	}
	return e.value.Ref(Const), nil
}

// Invoke looks up name and calls it with args.
func (r *Registry) Invoke(name string, args ...Ref) (Value, error) {
	fn, err := r.Lookup(name)
	if err != nil {
		return Value{}, err
	}
	return fn.call(name, args)
}

// Globals returns the defined global keys in definition order.
func (r *Registry) Globals() []string {
	return r.globals.keys()
}

package bridge

import (
	"fmt"
	"reflect"
	"strings"

	"go.bytecodealliance.org/wit"
)

// Schema describes the registered types and globals of a registry.
type Schema struct {
	Registry string         `yaml:"registry"`
	Types    []TypeSchema   `yaml:"types"`
	Globals  []GlobalSchema `yaml:"globals,omitempty"`
}

// TypeSchema describes one registered type.
type TypeSchema struct {
	Name         string         `yaml:"name"`
	GoType       string         `yaml:"go_type,omitempty"`
	WIT          string         `yaml:"wit,omitempty"`
	Capabilities []string       `yaml:"capabilities,omitempty"`
	Bases        []string       `yaml:"bases,omitempty"`
	Methods      []MethodSchema `yaml:"methods,omitempty"`
	Index        uint32         `yaml:"index"`
}

// MethodSchema describes a named method of a type.
type MethodSchema struct {
	Name       string   `yaml:"name"`
	Signatures []string `yaml:"signatures,omitempty"`
}

// GlobalSchema describes a named global.
type GlobalSchema struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Signatures []string `yaml:"signatures,omitempty"`
}

// Schema snapshots the registry.
func (r *Registry) Schema() Schema {
	s := Schema{Registry: r.Name()}
	for _, idx := range r.Types() {
		s.Types = append(s.Types, idx.t.schema())
	}
	for _, key := range r.Globals() {
		ref, err := r.Lookup(key)
		if err != nil {
			continue
		}
		s.Globals = append(s.Globals, GlobalSchema{
			Name:       key,
			Type:       ref.idx.Name(),
			Signatures: signaturesOf(ref.ptr),
		})
	}
	return s
}

func (t *Table) schema() TypeSchema {
	ts := TypeSchema{
		Name:  t.Name(),
		Index: t.id,
	}
	if t.typ != nil {
		ts.GoType = t.typ.String()
		ts.WIT = WITTypeString(WITType(t.typ))
	}
	for _, c := range Capabilities(t.Ops()) {
		ts.Capabilities = append(ts.Capabilities, c.String())
	}
	for _, b := range t.Bases() {
		ts.Bases = append(ts.Bases, b.Name())
	}
	for _, name := range t.Methods() {
		m, _ := t.method(name)
		ts.Methods = append(ts.Methods, MethodSchema{Name: name, Signatures: signaturesOf(m.Address())})
	}
	return ts
}

func signaturesOf(p any) []string {
	f, ok := p.(*Function)
	if !ok {
		return nil
	}
	out := make([]string, len(f.sigs))
	for i, sig := range f.sigs {
		out[i] = sig.wit()
	}
	return out
}

// wit renders the signature as a WIT function type.
func (sig *signature) wit() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range sig.params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "arg%d: %s", i, WITTypeString(WITType(p.typ)))
	}
	b.WriteByte(')')

	var result wit.Type
	if sig.result != nil {
		result = WITType(sig.result)
	}
	switch {
	case sig.hasErr:
		b.WriteString(" -> ")
		b.WriteString(WITTypeString(&wit.TypeDef{Kind: &wit.Result{OK: result, Err: wit.String{}}}))
	case result != nil:
		b.WriteString(" -> ")
		b.WriteString(WITTypeString(result))
	}
	return b.String()
}

// WITType maps a Go type to the closest WIT type. Types without a WIT
// counterpart become named resources, and pointers borrow them.
func WITType(rt reflect.Type) wit.Type {
	return witType(rt, map[reflect.Type]*wit.TypeDef{})
}

func witType(rt reflect.Type, seen map[reflect.Type]*wit.TypeDef) wit.Type {
	switch rt {
	case valueType:
		return namedResource("value")
	case refType:
		return &wit.TypeDef{Kind: &wit.Borrow{Type: namedResource("value")}}
	}

	switch rt.Kind() {
	case reflect.Bool:
		return wit.Bool{}
	case reflect.Int8:
		return wit.S8{}
	case reflect.Int16:
		return wit.S16{}
	case reflect.Int32:
		return wit.S32{}
	case reflect.Int, reflect.Int64:
		return wit.S64{}
	case reflect.Uint8:
		return wit.U8{}
	case reflect.Uint16:
		return wit.U16{}
	case reflect.Uint32:
		return wit.U32{}
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return wit.U64{}
	case reflect.Float32:
		return wit.F32{}
	case reflect.Float64:
		return wit.F64{}
	case reflect.String:
		return wit.String{}
	case reflect.Slice:
		return &wit.TypeDef{Kind: &wit.List{Type: witType(rt.Elem(), seen)}}
	case reflect.Array:
		types := make([]wit.Type, rt.Len())
		for i := range types {
			types[i] = witType(rt.Elem(), seen)
		}
		return &wit.TypeDef{Kind: &wit.Tuple{Types: types}}
	case reflect.Map:
		pair := &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{witType(rt.Key(), seen), witType(rt.Elem(), seen)}}}
		return &wit.TypeDef{Kind: &wit.List{Type: pair}}
	case reflect.Pointer:
		elem := witType(rt.Elem(), seen)
		if td, ok := elem.(*wit.TypeDef); ok {
			if _, isRes := td.Kind.(*wit.Resource); isRes {
				return &wit.TypeDef{Kind: &wit.Borrow{Type: td}}
			}
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}
	case reflect.Struct:
		return witRecord(rt, seen)
	default:
		return namedResource(witName(rt))
	}
}

func witRecord(rt reflect.Type, seen map[reflect.Type]*wit.TypeDef) wit.Type {
	if td, ok := seen[rt]; ok {
		return td
	}
	name := witName(rt)
	td := &wit.TypeDef{Name: &name}
	seen[rt] = td

	var fields []wit.Field
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		fields = append(fields, wit.Field{Name: toKebabCase(f.Name), Type: witType(f.Type, seen)})
	}
	if len(fields) == 0 {
		td.Kind = &wit.Resource{}
		return td
	}
	td.Kind = &wit.Record{Fields: fields}
	return td
}

func namedResource(name string) *wit.TypeDef {
	return &wit.TypeDef{Name: &name, Kind: &wit.Resource{}}
}

func witName(rt reflect.Type) string {
	if rt.Name() == "" {
		return strings.ToLower(rt.Kind().String())
	}
	return toKebabCase(rt.Name())
}

// WITTypeString renders t in WIT syntax. Named type definitions render as
// their name.
func WITTypeString(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return witKindString(v.Kind)
	default:
		return fmt.Sprintf("%T", t)
	}
}

func witKindString(k wit.TypeDefKind) string {
	switch v := k.(type) {
	case *wit.List:
		return "list<" + WITTypeString(v.Type) + ">"
	case *wit.Option:
		return "option<" + WITTypeString(v.Type) + ">"
	case *wit.Tuple:
		parts := make([]string, len(v.Types))
		for i, t := range v.Types {
			parts[i] = WITTypeString(t)
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case *wit.Result:
		return "result<" + WITTypeString(v.OK) + ", " + WITTypeString(v.Err) + ">"
	case *wit.Borrow:
		return "borrow<" + WITTypeString(v.Type) + ">"
	case *wit.Record:
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			parts[i] = f.Name + ": " + WITTypeString(f.Type)
		}
		return "record { " + strings.Join(parts, ", ") + " }"
	case *wit.Resource:
		return "resource"
	default:
		return fmt.Sprintf("%T", k)
	}
}

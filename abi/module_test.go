package abi

import (
	"context"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/rebind/bridge"
)

func TestInstantiate_Exports(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	r := bridge.NewRegistry()
	defer r.Close()
	b := NewBoundary(r, DefaultConfig())
	defer b.Close()

	mod, err := Instantiate(ctx, rt, b)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if mod.Name() != "rebind" {
		t.Errorf("module name = %q", mod.Name())
	}

	want := []string{
		"lookup", "index_name", "value_index", "drop", "copy", "call_value", "call_ref",
		"method_to_value", "add_base", "new_i64", "new_f64", "new_string",
		"get_i64", "get_f64", "get_string", "last_error",
	}
	defs := mod.ExportedFunctionDefinitions()
	for _, name := range want {
		if _, ok := defs[name]; !ok {
			t.Errorf("missing export %q", name)
		}
	}
	if len(defs) != len(want) {
		t.Errorf("exports = %d, want %d", len(defs), len(want))
	}
}

func TestInstantiate_GuestCalls(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	r := bridge.NewRegistry()
	defer r.Close()
	if err := r.DefineFunc("add", func(a, b int64) int64 { return a + b }); err != nil {
		t.Fatal(err)
	}
	b := NewBoundary(r, DefaultConfig())
	defer b.Close()

	if _, err := Instantiate(ctx, rt, b); err != nil {
		t.Fatal(err)
	}
	guest, err := rt.InstantiateWithConfig(ctx, guestModule("rebind", b.HostFuncs()),
		wazero.NewModuleConfig().WithName("guest"))
	if err != nil {
		t.Fatalf("instantiate guest: %v", err)
	}
	mem := guest.Memory()

	call := func(name string, params ...uint64) uint64 {
		t.Helper()
		res, err := guest.ExportedFunction(name).Call(ctx, params...)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(res) == 0 {
			return 0
		}
		return res[0]
	}
	writeRef := func(at uint32, h, idx, q uint32) {
		mem.WriteUint32Le(at, h)
		mem.WriteUint32Le(at+4, idx)
		mem.WriteUint32Le(at+8, q)
	}

	x := uint32(call("new_i64", api.EncodeI64(2)))
	y := uint32(call("new_i64", api.EncodeI64(3)))
	if x == 0 || y == 0 {
		t.Fatal("new_i64 returned the null handle")
	}
	idx := uint32(call("value_index", uint64(x)))
	if idx != bridge.TypeOf[int64](r).ID() {
		t.Errorf("value_index = %d, want the int64 index", idx)
	}

	const name, args, out = 0, 64, 128
	mem.Write(name, []byte("add"))
	fn := uint32(call("lookup", name, 3))
	if fn == 0 {
		t.Fatal("lookup add returned the null handle")
	}

	writeRef(args, x, idx, uint32(bridge.Const))
	writeRef(args+RefSize, y, idx, uint32(bridge.Const))
	if call("call_value", out, uint64(fn), args, 2) != 1 {
		t.Fatalf("call_value failed: %v", b.Err())
	}
	sum, _ := mem.ReadUint32Le(out)
	if call("get_i64", uint64(sum), out) != 1 {
		t.Fatalf("get_i64 failed: %v", b.Err())
	}
	if n, _ := mem.ReadUint64Le(out); n != 5 {
		t.Errorf("add(2, 3) = %d, want 5", n)
	}

	if call("call_value", out, uint64(fn), args, 1) != 0 {
		t.Fatal("call_value with one argument should fail")
	}
	const msg = 256
	n := uint32(call("last_error", msg, 128))
	text, _ := mem.Read(msg, n)
	if !strings.Contains(string(text), "wrong_number") {
		t.Errorf("last_error = %q, want wrong_number", text)
	}

	writeRef(args, x, idx, 7)
	if _, err := guest.ExportedFunction("call_value").Call(ctx, out, uint64(fn), args, 2); err == nil {
		t.Error("a corrupt qualifier should trap the guest")
	}

	for _, h := range []uint32{x, y, sum, fn} {
		call("drop", uint64(h))
	}
	if b.Len() != 0 {
		t.Errorf("handles left after drop: %d", b.Len())
	}
}

// guestModule assembles a wasm module that imports every host function from
// module and re-exports each behind a forwarding function of the same name,
// together with one page of memory.
func guestModule(module string, funcs []HostFunc) []byte {
	vec := func(items ...[]byte) []byte {
		out := uleb(uint32(len(items)))
		for _, it := range items {
			out = append(out, it...)
		}
		return out
	}
	str := func(s string) []byte { return append(uleb(uint32(len(s))), s...) }
	section := func(id byte, body []byte) []byte {
		return append(append([]byte{id}, uleb(uint32(len(body)))...), body...)
	}
	valueTypes := func(ts []api.ValueType) []byte {
		out := uleb(uint32(len(ts)))
		for _, vt := range ts {
			out = append(out, byte(vt))
		}
		return out
	}

	var types, imports, decls, exports, bodies [][]byte
	n := uint32(len(funcs))
	for i, f := range funcs {
		ti := uleb(uint32(i))
		types = append(types, append(append([]byte{0x60}, valueTypes(f.ParamTypes)...), valueTypes(f.ResultTypes)...))
		imports = append(imports, append(append(append(str(module), str(f.Name)...), 0x00), ti...))
		decls = append(decls, ti)
		exports = append(exports, append(append(str(f.Name), 0x00), uleb(n+uint32(i))...))

		code := []byte{0x00}
		for p := range f.ParamTypes {
			code = append(append(code, 0x20), uleb(uint32(p))...)
		}
		code = append(append(code, 0x10), ti...)
		code = append(code, 0x0b)
		bodies = append(bodies, append(uleb(uint32(len(code))), code...))
	}
	exports = append(exports, append(str("memory"), 0x02, 0x00))

	bin := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	bin = append(bin, section(1, vec(types...))...)
	bin = append(bin, section(2, vec(imports...))...)
	bin = append(bin, section(3, vec(decls...))...)
	bin = append(bin, section(5, []byte{0x01, 0x00, 0x01})...)
	bin = append(bin, section(7, vec(exports...))...)
	bin = append(bin, section(10, vec(bodies...))...)
	return bin
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		out = append(out, c)
		if v == 0 {
			return out
		}
	}
}

func TestInstantiate_ModuleName(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	r := bridge.NewRegistry()
	defer r.Close()
	b := NewBoundary(r, Config{ModuleName: "env"})
	defer b.Close()

	mod, err := Instantiate(ctx, rt, b)
	if err != nil {
		t.Fatal(err)
	}
	if mod.Name() != "env" {
		t.Errorf("module name = %q, want env", mod.Name())
	}

	if _, err := Instantiate(ctx, rt, b); err == nil {
		t.Error("instantiating the same module name twice should fail")
	}
}

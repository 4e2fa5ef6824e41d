// Package rebind is a type-erased value bridge between Go and a dynamically
// typed host runtime.
//
// Neither side knows the other's concrete types at compile time. Go code
// registers its types and functions; the host reaches them by name and
// exchanges values through opaque handles across a binary boundary.
//
// # Architecture Overview
//
//	rebind/              Root package with the Memory interface
//	├── bridge/          Registry, Index, Table, Value, Ref, calls and globals
//	├── errors/          Structured error taxonomy
//	├── arena/           Handle table for values crossing the boundary
//	├── abi/             wazero host module exposing the bridge to wasm guests
//	├── examples/basic/  Demo bindings
//	└── cmd/rebind/      CLI: schema dump and interactive explorer
//
// # Quick Start
//
// Register a function and invoke it by name:
//
//	r := bridge.NewRegistry()
//	defer r.Close()
//
//	r.DefineFunc("add", func(a, b int) int { return a + b })
//
//	a, b := bridge.New(r, 2), bridge.New(r, 3)
//	out, err := r.Invoke("add", a.Ref(bridge.Const), b.Ref(bridge.Const))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	n, _ := bridge.Extract[int](&out) // 5
//
// # Ownership
//
// A Value owns its content and destroys it exactly once. A Ref is a view
// with a qualifier: const views read, lvalue views may be written, and
// rvalue views may be moved from. Moves out of rvalue arguments happen only
// after every argument of a call has bound.
//
// # Exposing to WebAssembly
//
//	rt := wazero.NewRuntime(ctx)
//	b := abi.NewBoundary(r, abi.DefaultConfig())
//	defer b.Close()
//	if _, err := abi.Instantiate(ctx, rt, b); err != nil {
//	    log.Fatal(err)
//	}
//
// Guests import the "rebind" module and pass values as u32 handles and refs
// as 12-byte {handle, index, qualifier} records.
package rebind

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/rebind/abi"
	"github.com/wippyai/rebind/bridge"
	"github.com/wippyai/rebind/examples/basic"
)

func main() {
	var (
		funcName    = flag.String("call", "", "Global to invoke")
		callArgs    = flag.String("args", "", "Arguments (comma-separated; ints, floats, bools, otherwise strings)")
		schema      = flag.Bool("schema", false, "Print the registry schema as YAML and exit")
		list        = flag.Bool("list", false, "List globals and exit")
		exports     = flag.Bool("exports", false, "List the host module exports and exit")
		module      = flag.String("module", abi.DefaultConfig().ModuleName, "Host module name for -exports")
		verbose     = flag.Bool("v", false, "Debug logging to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = log.Sync() }()
		bridge.SetLogger(log)
		abi.SetLogger(log)
	}

	r, err := newRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	switch {
	case *schema:
		err = writeSchema(os.Stdout, r)
	case *list:
		listGlobals(os.Stdout, r)
	case *exports:
		err = listExports(os.Stdout, r, *module)
	case *interactive:
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs a terminal")
			os.Exit(1)
		}
		err = runInteractive(r)
	case *funcName != "":
		err = call(os.Stdout, r, *funcName, splitArgs(*callArgs))
	default:
		fmt.Fprintln(os.Stderr, "Usage: rebind -call <name> [-args a,b,...]")
		fmt.Fprintln(os.Stderr, "       rebind -list | -schema | -exports [-module name]")
		fmt.Fprintln(os.Stderr, "       rebind -i  (interactive mode)")
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRegistry() (*bridge.Registry, error) {
	r := bridge.NewRegistry(bridge.WithRegistryName("basic"))
	if err := basic.Register(r); err != nil {
		r.Close()
		return nil, fmt.Errorf("register bindings: %w", err)
	}
	return r, nil
}

func writeSchema(w io.Writer, r *bridge.Registry) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.Schema()); err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	return enc.Close()
}

func listGlobals(w io.Writer, r *bridge.Registry) {
	s := r.Schema()
	fmt.Fprintf(w, "Registry: %s\n", s.Registry)
	fmt.Fprintf(w, "Types: %d\n", len(s.Types))
	fmt.Fprintf(w, "\nGlobals:\n")
	for _, g := range s.Globals {
		if len(g.Signatures) == 0 {
			fmt.Fprintf(w, "  %s: %s\n", g.Name, g.Type)
			continue
		}
		for _, sig := range g.Signatures {
			fmt.Fprintf(w, "  %s: %s\n", g.Name, sig)
		}
	}
}

func listExports(w io.Writer, r *bridge.Registry, name string) error {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	b := abi.NewBoundary(r, abi.Config{ModuleName: name})
	defer b.Close()
	mod, err := abi.Instantiate(ctx, rt, b)
	if err != nil {
		return err
	}

	defs := mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "Module: %s\n\n", mod.Name())
	for _, n := range names {
		d := defs[n]
		fmt.Fprintf(w, "  %s(%s)", n, valueTypes(d.ParamTypes()))
		if res := d.ResultTypes(); len(res) > 0 {
			fmt.Fprintf(w, " -> %s", valueTypes(res))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func valueTypes(ts []api.ValueType) string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = api.ValueTypeName(t)
	}
	return strings.Join(out, ", ")
}

func call(w io.Writer, r *bridge.Registry, name string, args []string) error {
	fmt.Fprintf(w, "Calling %s(%s)...\n", name, strings.Join(args, ", "))
	out, err := invoke(r, name, args)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Result: %s\n", out)
	return nil
}

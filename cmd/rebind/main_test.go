package main

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/rebind/bridge"
	"github.com/wippyai/rebind/errors"
)

func testRegistry(t *testing.T) *bridge.Registry {
	t.Helper()
	r, err := newRegistry()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"1", []string{"1"}},
		{"1, 2.5 ,x", []string{"1", "2.5", "x"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, splitArgs(tt.in)); diff != "" {
			t.Errorf("splitArgs(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestParseArg(t *testing.T) {
	r := testRegistry(t)
	tests := []struct {
		in   string
		name string
	}{
		{"42", "int"},
		{"-3", "int"},
		{"2.5", "float64"},
		{"true", "bool"},
		{"hello", "string"},
		{`"7"`, "string"},
	}
	for _, tt := range tests {
		v := parseArg(r, tt.in)
		if v.Name() != tt.name {
			t.Errorf("parseArg(%q) = %s, want %s", tt.in, v.Name(), tt.name)
		}
		v.Drop()
	}
}

func TestInvoke(t *testing.T) {
	r := testRegistry(t)

	got, err := invoke(r, "add", []string{"2", "3"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "5 (int)" {
		t.Errorf("add = %q", got)
	}

	got, err = invoke(r, "new-goo", []string{"1.5"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Goo(1.5) (Goo)" {
		t.Errorf("new-goo = %q", got)
	}

	got, err = invoke(r, "greet@1.0", []string{"ann"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello ann (string)" {
		t.Errorf("greet@1.0 = %q", got)
	}

	if _, err := invoke(r, "add", []string{"x", "1"}); !errors.IsKind(err, errors.KindWrongType) {
		t.Errorf("add(x, 1) error = %v, want wrong_type", err)
	}
	if _, err := invoke(r, "missing", nil); !errors.IsKind(err, errors.KindLookupFailed) {
		t.Errorf("missing error = %v, want lookup_failed", err)
	}
}

func TestFormatValue(t *testing.T) {
	r := testRegistry(t)
	if got := formatValue(bridge.Value{}); got != "(none)" {
		t.Errorf("empty = %q", got)
	}
	v := bridge.New(r, []float64{1, 2})
	defer v.Drop()
	if got := formatValue(v); got != "[1 2] ([]float64)" {
		t.Errorf("slice = %q", got)
	}
}

func TestWriteSchema(t *testing.T) {
	r := testRegistry(t)
	var buf bytes.Buffer
	if err := writeSchema(&buf, r); err != nil {
		t.Fatal(err)
	}

	var got bridge.Schema
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("schema is not valid YAML: %v", err)
	}
	if got.Registry != "basic" {
		t.Errorf("registry = %q", got.Registry)
	}
	want := r.Schema()
	if len(got.Types) != len(want.Types) {
		t.Errorf("types = %d, want %d", len(got.Types), len(want.Types))
	}
	if diff := cmp.Diff(want.Globals, got.Globals); diff != "" {
		t.Errorf("globals mismatch (-want +got):\n%s", diff)
	}
}

func TestListGlobals(t *testing.T) {
	r := testRegistry(t)
	var buf bytes.Buffer
	listGlobals(&buf, r)
	out := buf.String()
	for _, want := range []string{
		"Registry: basic",
		"add: func(arg0: s64, arg1: s64) -> s64",
		"show: func(arg0: goo) -> string",
		"show: func(arg0: string) -> string",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing is missing %q:\n%s", want, out)
		}
	}
}

func TestListExports(t *testing.T) {
	r := testRegistry(t)
	var buf bytes.Buffer
	if err := listExports(&buf, r, "env"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Module: env",
		"new_i64(i64) -> i32",
		"drop(i32)\n",
		"call_value(i32, i32, i32, i32) -> i32",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exports are missing %q:\n%s", want, out)
		}
	}
}

func TestArity(t *testing.T) {
	tests := []struct {
		sig  string
		want int
	}{
		{"func() -> s64", 0},
		{"func(arg0: string) -> string", 1},
		{"func(arg0: s64, arg1: f64) -> f64", 2},
		{"func(arg0: list<tuple<string, s64>>, arg1: u8)", 2},
		{"not a signature", 0},
	}
	for _, tt := range tests {
		if got := arity(tt.sig); got != tt.want {
			t.Errorf("arity(%q) = %d, want %d", tt.sig, got, tt.want)
		}
	}
}

func TestInteractiveModel(t *testing.T) {
	r := testRegistry(t)
	m := newInteractiveModel(r)
	if len(m.globals) == 0 || m.globals[0].name != "add" || m.globals[0].arity != 2 {
		t.Fatalf("globals = %+v", m.globals)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateInputArgs || len(m.inputs) != 2 {
		t.Fatalf("state = %v, inputs = %d", m.state, len(m.inputs))
	}
	m.inputs[0].SetValue("4")
	m.inputs[1].SetValue("5")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter on arguments should return the call command")
	}
	m.Update(cmd())
	if m.state != stateShowResult || m.err != nil || m.result != "9 (int)" {
		t.Errorf("result = %q, err = %v, state = %v", m.result, m.err, m.state)
	}
	if !strings.Contains(m.View(), "9 (int)") {
		t.Errorf("view does not show the result:\n%s", m.View())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateSelectGlobal {
		t.Errorf("esc should return to the global list, state = %v", m.state)
	}
}

package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/wippyai/rebind/bridge"
)

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseArg boxes a command line argument as the narrowest matching Go value.
// Quoted text is always a string.
func parseArg(r *bridge.Registry, s string) bridge.Value {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return bridge.New(r, u)
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return bridge.New(r, n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return bridge.New(r, f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return bridge.New(r, b)
	}
	return bridge.New(r, s)
}

// invoke calls the global name with parsed args and renders the result.
func invoke(r *bridge.Registry, name string, args []string) (string, error) {
	vals := make([]bridge.Value, len(args))
	refs := make([]bridge.Ref, len(args))
	for i, a := range args {
		vals[i] = parseArg(r, a)
		refs[i] = vals[i].Ref(bridge.Const)
	}
	defer func() {
		for i := range vals {
			vals[i].Drop()
		}
	}()

	out, err := r.Invoke(name, refs...)
	if err != nil {
		return "", err
	}
	defer out.Drop()
	return formatValue(out), nil
}

func formatValue(v bridge.Value) string {
	if !v.HasValue() {
		return "(none)"
	}
	rv := reflect.Indirect(reflect.ValueOf(v.Address()))
	if rv.IsValid() && rv.CanInterface() {
		return fmt.Sprintf("%v (%s)", rv.Interface(), v.Name())
	}
	return v.Name()
}

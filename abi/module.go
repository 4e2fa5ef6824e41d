package abi

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/rebind"
	"github.com/wippyai/rebind/errors"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f64 = api.ValueTypeF64
)

// HostFunc is one export of the host module.
type HostFunc struct {
	Handler     api.GoModuleFunc
	Name        string
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
}

// Instantiate builds the host module for b into rt under the configured
// module name.
func Instantiate(ctx context.Context, rt wazero.Runtime, b *Boundary) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(b.cfg.ModuleName)
	for _, f := range b.HostFuncs() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(b.guard(f.Name, f.Handler), f.ParamTypes, f.ResultTypes).
			Export(f.Name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBoundary, errors.KindInvalidInput, err, "instantiate host module "+b.cfg.ModuleName)
	}
	b.log.Info("host module instantiated", zap.String("module", b.cfg.ModuleName))
	return mod, nil
}

// guard logs fatal boundary errors before they trap the guest.
func (b *Boundary) guard(name string, fn api.GoModuleFunc) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		defer func() {
			if p := recover(); p != nil {
				if e, ok := p.(*errors.Error); ok {
					b.log.Warn("boundary trap", zap.String("func", name), zap.Error(e))
				}
				panic(p)
			}
		}()
		fn(ctx, mod, stack)
	}
}

func memoryOf(mod api.Module) rebind.Memory {
	if mod == nil {
		return nil
	}
	return WrapMemory(mod.Memory())
}

func u32(v uint64) uint32 { return api.DecodeU32(v) }

func boolResult(ok bool) uint64 {
	if ok {
		return 1
	}
	return 0
}

// HostFuncs returns the exports of the host module bound to b.
func (b *Boundary) HostFuncs() []HostFunc {
	return []HostFunc{
		{
			Name:        "lookup",
			ParamTypes:  []api.ValueType{i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeU32(b.Lookup(memoryOf(mod), u32(stack[0]), u32(stack[1])))
			},
		},
		{
			Name:        "index_name",
			ParamTypes:  []api.ValueType{i32, i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(b.IndexName(memoryOf(mod), u32(stack[0]), u32(stack[1]), u32(stack[2])))
			},
		},
		{
			Name:        "value_index",
			ParamTypes:  []api.ValueType{i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeU32(b.ValueIndex(u32(stack[0])))
			},
		},
		{
			Name:       "drop",
			ParamTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, _ api.Module, stack []uint64) {
				b.Drop(u32(stack[0]))
			},
		},
		{
			Name:        "copy",
			ParamTypes:  []api.ValueType{i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = boolResult(b.Copy(memoryOf(mod), u32(stack[0]), u32(stack[1])))
			},
		},
		{
			Name:        "call_value",
			ParamTypes:  []api.ValueType{i32, i32, i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = boolResult(b.CallValue(memoryOf(mod), u32(stack[0]), u32(stack[1]), u32(stack[2]), u32(stack[3])))
			},
		},
		{
			Name:        "call_ref",
			ParamTypes:  []api.ValueType{i32, i32, i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = boolResult(b.CallRef(memoryOf(mod), u32(stack[0]), u32(stack[1]), u32(stack[2]), u32(stack[3])))
			},
		},
		{
			Name:        "method_to_value",
			ParamTypes:  []api.ValueType{i32, i32, i32, i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeU32(b.MethodToValue(memoryOf(mod),
					u32(stack[0]), u32(stack[1]), u32(stack[2]), u32(stack[3]), u32(stack[4])))
			},
		},
		{
			Name:        "add_base",
			ParamTypes:  []api.ValueType{i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = boolResult(b.AddBase(u32(stack[0]), u32(stack[1])))
			},
		},
		{
			Name:        "new_i64",
			ParamTypes:  []api.ValueType{i64},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeU32(b.NewI64(int64(stack[0])))
			},
		},
		{
			Name:        "new_f64",
			ParamTypes:  []api.ValueType{f64},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, _ api.Module, stack []uint64) {
				stack[0] = api.EncodeU32(b.NewF64(api.DecodeF64(stack[0])))
			},
		},
		{
			Name:        "new_string",
			ParamTypes:  []api.ValueType{i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeU32(b.NewString(memoryOf(mod), u32(stack[0]), u32(stack[1])))
			},
		},
		{
			Name:        "get_i64",
			ParamTypes:  []api.ValueType{i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = boolResult(b.GetI64(memoryOf(mod), u32(stack[0]), u32(stack[1])))
			},
		},
		{
			Name:        "get_f64",
			ParamTypes:  []api.ValueType{i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = boolResult(b.GetF64(memoryOf(mod), u32(stack[0]), u32(stack[1])))
			},
		},
		{
			Name:        "get_string",
			ParamTypes:  []api.ValueType{i32, i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(b.GetString(memoryOf(mod), u32(stack[0]), u32(stack[1]), u32(stack[2])))
			},
		},
		{
			Name:        "last_error",
			ParamTypes:  []api.ValueType{i32, i32},
			ResultTypes: []api.ValueType{i32},
			Handler: func(_ context.Context, mod api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(b.LastError(memoryOf(mod), u32(stack[0]), u32(stack[1])))
			},
		},
	}
}

// Package abi exposes a bridge.Registry to WebAssembly guests through a
// wazero host module.
//
// # Conventions
//
//	strings     (ptr, len) pairs in guest memory, never NUL-terminated
//	booleans    i32 0 or 1
//	values      u32 handles into the boundary's arena, 0 is null
//	refs        12-byte records {handle u32, index u32, qualifier u32}
//
// A ref record whose qualifier is outside 0..2, whose handle is unknown, or
// whose index does not match the handle's value is corruption: the host
// function panics with a fatal *errors.Error and the guest traps. Every other
// failure returns a falsy result and is kept as the last error, readable
// with last_error.
//
// # Ownership
//
// Handles returned by new_*, copy, call_value and method_to_value own their
// value; drop destroys it. Handles returned by lookup and call_ref are views:
// drop releases the handle and leaves the referent alone. Arguments are
// borrowed for the duration of a call, so a handle cannot be dropped while a
// call is using it.
package abi

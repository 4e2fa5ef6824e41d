// Package errors provides structured error types for the rebind bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: argument path, held and requested type names,
// qualifier, expected/received counts and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCast, errors.KindTypeMismatch).
//		Path("arg1").
//		Type("int32").
//		Want("string").
//		Detail("no conversion available").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotCopyable("main.Widget")
//	err := errors.LookupFailed("does_not_exist")
//
// Recoverable kinds (not_copyable, type_mismatch, call_failed, lookup_failed)
// are returned to the immediate caller. Fatal kinds (registration_conflict,
// corruption, exhausted) are raised with Fatal, which panics with the *Error.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors

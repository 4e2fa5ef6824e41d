// Package arena provides the handle table that carries owned values across
// the binary boundary.
//
// A guest never sees Go pointers. Every value it owns is a slot in an Arena,
// named by a non-zero uint32 Handle and tagged with the dense type ID of the
// registered type it holds:
//
//	a := arena.New[*bridge.Value]()
//	h := a.Insert(v.Index().ID(), &v)
//
//	// type-checked retrieval
//	p, ok := a.GetTyped(h, idx.ID())
//
//	// remove and destroy
//	a.Remove(h)
//
// # Borrows
//
// A slot lent out for the duration of a call has its borrow count raised.
// A slot with outstanding borrows cannot be removed; Remove reports false
// and the value stays alive.
//
// # Handle reuse
//
// Freed slots are reused LIFO. A stale handle may therefore name a newer
// value; callers that keep handles across frees compare the type ID with
// GetTyped.
//
// # Observers
//
// Observers see every insert, remove and borrow. LogObserver reports them
// to a zap logger at debug level.
package arena

package arena

import (
	"sync"
)

// Arena maps handles to owned values, tracks borrows, and notifies observers.
// Removing a slot drops its value when the value implements Dropper.
type Arena[T any] struct {
	slots     *Slots[T]
	observers map[int]Observer
	nextObs   int
	obsMu     sync.RWMutex
}

// New creates an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{
		slots:     NewSlots[T](),
		observers: make(map[int]Observer),
	}
}

// Insert stores value under typeID and returns its handle, or 0 once the
// arena is closed.
func (a *Arena[T]) Insert(typeID uint32, value T) Handle {
	handle, err := a.slots.Create(typeID, value)
	if err != nil {
		return 0
	}
	a.notify(Event{Type: EventCreated, Handle: handle, TypeID: typeID, Value: value})
	return handle
}

// Get retrieves a value by handle.
func (a *Arena[T]) Get(handle Handle) (T, bool) {
	return a.slots.Get(handle)
}

// GetTyped retrieves a value only if it was inserted under typeID.
func (a *Arena[T]) GetTyped(handle Handle, typeID uint32) (T, bool) {
	actual, ok := a.slots.TypeID(handle)
	if !ok || actual != typeID {
		var zero T
		return zero, false
	}
	return a.slots.Get(handle)
}

// TypeID returns the type ID a handle was inserted under.
func (a *Arena[T]) TypeID(handle Handle) (uint32, bool) {
	return a.slots.TypeID(handle)
}

// Take frees the slot and hands its value to the caller without dropping it.
func (a *Arena[T]) Take(handle Handle) (T, error) {
	typeID, _ := a.slots.TypeID(handle)
	value, err := a.slots.Drop(handle)
	if err != nil {
		return value, err
	}
	a.notify(Event{Type: EventDropped, Handle: handle, TypeID: typeID, Value: value})
	return value, nil
}

// Remove frees the slot and drops its value.
func (a *Arena[T]) Remove(handle Handle) bool {
	value, err := a.Take(handle)
	if err != nil {
		return false
	}
	drop(value)
	return true
}

// Borrow lends handle out until the matching ReturnBorrow.
func (a *Arena[T]) Borrow(handle Handle) bool {
	if !a.slots.Borrow(handle) {
		return false
	}
	typeID, _ := a.slots.TypeID(handle)
	a.notify(Event{Type: EventBorrowed, Handle: handle, TypeID: typeID})
	return true
}

// ReturnBorrow ends one borrow of handle.
func (a *Arena[T]) ReturnBorrow(handle Handle) bool {
	if !a.slots.ReturnBorrow(handle) {
		return false
	}
	typeID, _ := a.slots.TypeID(handle)
	a.notify(Event{Type: EventBorrowReturned, Handle: handle, TypeID: typeID})
	return true
}

// Borrows returns the outstanding borrow count of handle.
func (a *Arena[T]) Borrows(handle Handle) uint32 {
	return a.slots.Borrows(handle)
}

// Subscribe adds an observer and returns a function removing it.
func (a *Arena[T]) Subscribe(o Observer) (cancel func()) {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	id := a.nextObs
	a.nextObs++
	a.observers[id] = o
	return func() {
		a.obsMu.Lock()
		defer a.obsMu.Unlock()
		delete(a.observers, id)
	}
}

// Len returns the number of live slots.
func (a *Arena[T]) Len() int {
	return a.slots.Len()
}

// Each iterates over live slots in handle order.
func (a *Arena[T]) Each(fn func(Handle, uint32, T) bool) {
	a.slots.Each(fn)
}

// Clear removes every slot that has no outstanding borrow.
func (a *Arena[T]) Clear() {
	// collect first; Remove takes the slot lock
	var handles []Handle
	a.slots.Each(func(h Handle, _ uint32, _ T) bool {
		handles = append(handles, h)
		return true
	})
	for i := len(handles) - 1; i >= 0; i-- {
		a.Remove(handles[i])
	}
}

// Close drops every live value, newest slot first, and refuses further
// inserts. Borrows do not keep values alive past Close.
func (a *Arena[T]) Close() error {
	for _, v := range a.slots.Close() {
		drop(v)
	}
	return nil
}

func (a *Arena[T]) notify(e Event) {
	a.obsMu.RLock()
	defer a.obsMu.RUnlock()
	for _, o := range a.observers {
		o.OnArenaEvent(e)
	}
}

func drop[T any](v T) {
	if d, ok := any(v).(Dropper); ok {
		d.Drop()
	}
}

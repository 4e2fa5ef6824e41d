package arena

import (
	"sync"
)

// Slots is the storage behind an Arena: a dense slot slice with a LIFO free
// list and per-slot borrow counts.
type Slots[T any] struct {
	entries  []slot[T]
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type slot[T any] struct {
	value       T
	typeID      uint32
	borrowCount uint32
	valid       bool
}

// NewSlots creates empty slot storage.
func NewSlots[T any]() *Slots[T] {
	return &Slots[T]{
		entries:  make([]slot[T], 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Create stores a value and returns its handle.
func (b *Slots[T]) Create(typeID uint32, value T) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := slot[T]{
		typeID: typeID,
		value:  value,
		valid:  true,
	}

	if len(b.freeList) > 0 {
		handle := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[handle-1] = e
		return handle, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

// lookup returns the live slot for handle. Callers hold b.mu.
func (b *Slots[T]) lookup(handle Handle) *slot[T] {
	if handle == 0 || int(handle-1) >= len(b.entries) {
		return nil
	}
	e := &b.entries[handle-1]
	if !e.valid {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (b *Slots[T]) Get(handle Handle) (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		var zero T
		return zero, false
	}
	return e.value, true
}

// TypeID returns the type ID recorded for handle.
func (b *Slots[T]) TypeID(handle Handle) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.typeID, true
}

// Drop frees the slot and returns its value. It fails for unknown handles
// and for slots with outstanding borrows.
func (b *Slots[T]) Drop(handle Handle) (T, error) {
	var zero T

	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return zero, errInvalidHandle(handle)
	}
	if e.borrowCount > 0 {
		return zero, ErrOutstandingBorrow
	}

	value := e.value
	*e = slot[T]{}
	b.freeList = append(b.freeList, handle)
	return value, nil
}

// Borrow increments the borrow count for handle.
func (b *Slots[T]) Borrow(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return false
	}
	e.borrowCount++
	return true
}

// ReturnBorrow decrements the borrow count for handle.
func (b *Slots[T]) ReturnBorrow(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil || e.borrowCount == 0 {
		return false
	}
	e.borrowCount--
	return true
}

// Borrows returns the outstanding borrow count for handle.
func (b *Slots[T]) Borrows(handle Handle) uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e := b.lookup(handle); e != nil {
		return e.borrowCount
	}
	return 0
}

// Len returns the number of live slots.
func (b *Slots[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over live slots in handle order until fn returns false.
func (b *Slots[T]) Each(fn func(Handle, uint32, T) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(Handle(i+1), e.typeID, e.value) {
				break
			}
		}
	}
}

// Close stops accepting values and returns the live ones, highest handle
// first, without destroying them.
func (b *Slots[T]) Close() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var live []T
	for i := len(b.entries) - 1; i >= 0; i-- {
		if b.entries[i].valid {
			live = append(live, b.entries[i].value)
		}
	}
	b.entries = nil
	b.freeList = nil
	return live
}

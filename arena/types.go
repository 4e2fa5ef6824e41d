package arena

import (
	"github.com/wippyai/rebind/errors"
)

// Handle names a slot in an Arena. Handle 0 is reserved and always invalid.
type Handle uint32

// EventType classifies arena lifecycle events.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
)

var eventNames = [...]string{"created", "dropped", "borrowed", "borrow_returned"}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// Event is one lifecycle notification.
type Event struct {
	Value  any
	Handle Handle
	TypeID uint32
	Type   EventType
}

// Observer receives arena lifecycle events.
type Observer interface {
	OnArenaEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnArenaEvent(e Event) { f(e) }

// Dropper is implemented by values that release state when their slot is
// removed.
type Dropper interface {
	Drop()
}

var (
	ErrClosed            = errors.Closed(errors.PhaseBoundary, "arena")
	ErrOutstandingBorrow = errors.InvalidInput(errors.PhaseBoundary, "cannot drop a slot with outstanding borrows")
)

func errInvalidHandle(h Handle) error {
	return errors.New(errors.PhaseBoundary, errors.KindInvalidInput).
		Value(uint32(h)).
		Detail("invalid handle %d", uint32(h)).
		Build()
}

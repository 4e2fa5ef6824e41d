package arena

import (
	"go.uber.org/zap"
)

// LogObserver reports arena events to l at debug level.
func LogObserver(l *zap.Logger) Observer {
	return ObserverFunc(func(e Event) {
		l.Debug("arena event",
			zap.Stringer("event", e.Type),
			zap.Uint32("handle", uint32(e.Handle)),
			zap.Uint32("index", e.TypeID))
	})
}

package protolog

// Logger receives protocol events. Implementations must be safe for
// concurrent use and should return quickly; Log is called from the
// transport's send path and delivery goroutine.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. The zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}

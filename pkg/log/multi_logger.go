package log

// MultiLogger fans each discovery event out to several sinks. The
// daemon uses it to append events to the on-disk log while mirroring
// them to slog for live inspection.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger creates a logger that forwards to every sink in order.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

// Log forwards the event to every sink. Sinks never see a partial
// event, but a slow sink delays the ones after it.
func (m *MultiLogger) Log(event Event) {
	for _, sink := range m.sinks {
		sink.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)

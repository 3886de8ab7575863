package log

import (
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends discovery events to a CBOR log file, one encoded
// Event per record. Safe for concurrent use.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
}

// NewFileLogger opens path for appending, creating it when absent.
// Events from earlier daemon runs are preserved, so one file can hold
// a device's whole discovery history.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: f, encoder: NewEncoder(f)}, nil
}

// Log appends the event. Encoding failures are dropped; the event log
// is an observability aid and must never stall a discovery loop.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	_ = l.encoder.Encode(event)
}

// Close closes the underlying file. Close is idempotent, and events
// logged afterwards are discarded.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)

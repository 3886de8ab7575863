package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes discovery events to an slog.Logger.
// Useful for development when you want to see events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}

	if event.Fingerprint != "" {
		attrs = append(attrs, slog.String("fingerprint", event.Fingerprint))
	}
	if event.Alias != "" {
		attrs = append(attrs, slog.String("alias", event.Alias))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", event.RemoteAddr))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Discovery event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)

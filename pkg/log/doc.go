// Package log provides structured discovery event logging.
//
// This package defines the Logger interface and Event types for
// capturing discovery activity: devices appearing, announcement loops
// starting and stopping, and trust changes. It is separate from
// operational logging (slog) - the event log is a machine-readable
// trace of what the node saw on the network and when.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.EventLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.EventLogger, _ = log.NewFileLogger("/var/lib/rune/discovery.rlog")
//
//	// Both: use MultiLogger
//	cfg.EventLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys.
// Reader iterates them back, optionally filtered by category, peer,
// or time range.
package log

// Package commands implements the rune-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/balthild/rune/pkg/log"
)

// BuildFilter converts flag values into a log.Filter.
func BuildFilter(category, fingerprint, timeStart, timeEnd string) (log.Filter, error) {
	var filter log.Filter

	if category != "" {
		c, err := ParseCategoryFlag(category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	filter.Fingerprint = fingerprint

	if timeStart != "" {
		t, err := time.Parse(time.RFC3339, timeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start: %w", err)
		}
		filter.TimeStart = &t
	}
	if timeEnd != "" {
		t, err := time.Parse(time.RFC3339, timeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end: %w", err)
		}
		filter.TimeEnd = &t
	}

	return filter, nil
}

// ParseCategoryFlag parses a category name like "device_seen".
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "device_seen":
		return log.CategoryDeviceSeen, nil
	case "broadcast_started":
		return log.CategoryBroadcastStarted, nil
	case "broadcast_stopped":
		return log.CategoryBroadcastStopped, nil
	case "listener_started":
		return log.CategoryListenerStarted, nil
	case "listener_stopped":
		return log.CategoryListenerStopped, nil
	case "trust_added":
		return log.CategoryTrustAdded, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category: %s", s)
	}
}

// RunView prints events matching the filter in human-readable form.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s %s", ts, event.Category)

	if event.Alias != "" {
		fmt.Fprintf(w, " %s", event.Alias)
	}
	if event.Fingerprint != "" {
		fmt.Fprintf(w, " [%s]", shortenFingerprint(event.Fingerprint))
	}
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, " from %s", event.RemoteAddr)
	}
	if event.Detail != "" {
		fmt.Fprintf(w, ": %s", event.Detail)
	}
	fmt.Fprintln(w)
}

// shortenFingerprint returns the first 12 characters of a fingerprint.
func shortenFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/balthild/rune/pkg/log"
)

// exportedEvent is the JSONL representation of an event.
type exportedEvent struct {
	Timestamp   string `json:"timestamp"`
	Category    string `json:"category"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Alias       string `json:"alias,omitempty"`
	RemoteAddr  string `json:"remote_addr,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// RunExport writes the log file as JSON lines to the output path, or
// stdout when the path is empty.
func RunExport(path, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		if err := encoder.Encode(exportedEvent{
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
			Category:    event.Category.String(),
			Fingerprint: event.Fingerprint,
			Alias:       event.Alias,
			RemoteAddr:  event.RemoteAddr,
			Detail:      event.Detail,
		}); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
}

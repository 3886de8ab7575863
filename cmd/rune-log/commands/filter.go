package commands

import (
	"fmt"
	"io"

	"github.com/balthild/rune/pkg/log"
)

// RunFilter copies events matching the filter into a new log file.
func RunFilter(path, output string, filter log.Filter) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	writer, err := log.NewFileLogger(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer writer.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		writer.Log(event)
		count++
	}

	fmt.Printf("Wrote %d events to %s\n", count, output)
	return nil
}

package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/balthild/rune/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	Peers            map[string]*PeerStats
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// PeerStats holds statistics for a single peer.
type PeerStats struct {
	Alias     string
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		Peers:            make(map[string]*PeerStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.Fingerprint != "" {
			peer, ok := stats.Peers[event.Fingerprint]
			if !ok {
				peer = &PeerStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
				stats.Peers[event.Fingerprint] = peer
			}
			peer.Events++
			if event.Timestamp.After(peer.LastSeen) {
				peer.LastSeen = event.Timestamp
			}
			if event.Alias != "" {
				peer.Alias = event.Alias
			}
		}

		if event.Category == log.CategoryError {
			stats.Errors++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Discovery Event Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	fmt.Fprintln(w)

	if len(stats.EventsByCategory) > 0 {
		fmt.Fprintln(w, "Events by Category:")
		categories := make([]log.Category, 0, len(stats.EventsByCategory))
		for c := range stats.EventsByCategory {
			categories = append(categories, c)
		}
		sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
		for _, c := range categories {
			fmt.Fprintf(w, "  %-20s %d\n", c.String(), stats.EventsByCategory[c])
		}
		fmt.Fprintln(w)
	}

	if len(stats.Peers) > 0 {
		fmt.Fprintf(w, "Peers: %d\n", len(stats.Peers))
		fingerprints := make([]string, 0, len(stats.Peers))
		for fp := range stats.Peers {
			fingerprints = append(fingerprints, fp)
		}
		sort.Strings(fingerprints)
		for _, fp := range fingerprints {
			peer := stats.Peers[fp]
			fmt.Fprintf(w, "  %s (%s): %d events, last seen %s\n",
				shortenFingerprint(fp), peer.Alias, peer.Events,
				peer.LastSeen.Format(time.RFC3339))
		}
	}
}

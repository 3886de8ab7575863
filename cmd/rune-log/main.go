// Command rune-log is a tool for viewing and analyzing discovery event
// log files.
//
// Log files are created by running rune-discover with the -event-log
// flag.
//
// Usage:
//
//	rune-log <command> [flags] <file.rlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	rune-log view discovery.rlog
//
//	# View only device sightings
//	rune-log view -category device_seen discovery.rlog
//
//	# Export to JSONL
//	rune-log export discovery.rlog
//
//	# Filter by peer and save to new file
//	rune-log filter -fingerprint 'Abc123...' -o peer.rlog discovery.rlog
//
//	# Show statistics
//	rune-log stats discovery.rlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/balthild/rune/cmd/rune-log/commands"
)

const usage = `rune-log - Discovery Event Log Analyzer

Usage:
  rune-log <command> [flags] <file.rlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "rune-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `rune-log view - View log file in human-readable format

Usage:
  rune-log view [flags] <file.rlog>

Flags:
`)
		fs.PrintDefaults()
	}

	category := fs.String("category", "", "Filter by category (device_seen, broadcast_started, ...)")
	fingerprint := fs.String("fingerprint", "", "Filter by peer fingerprint")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := commands.BuildFilter(*category, *fingerprint, "", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := commands.RunView(fs.Arg(0), filter, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `rune-log export - Export log file to JSONL format

Usage:
  rune-log export [flags] <file.rlog>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunExport(fs.Arg(0), *output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `rune-log filter - Filter log file and write to new file

Usage:
  rune-log filter [flags] <file.rlog>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (required)")
	category := fs.String("category", "", "Filter by category (device_seen, broadcast_started, ...)")
	fingerprint := fs.String("fingerprint", "", "Filter by peer fingerprint")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := commands.BuildFilter(*category, *fingerprint, *timeStart, *timeEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := commands.RunFilter(fs.Arg(0), *output, filter); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `rune-log stats - Show statistics about the log file

Usage:
  rune-log stats <file.rlog>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunStats(fs.Arg(0), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

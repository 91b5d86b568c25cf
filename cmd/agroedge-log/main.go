// Command agroedge-log views and analyzes agroedge event log files.
//
// Event logs are written by the agroedge agent under its data
// directory (events.cbor by default).
//
// Usage:
//
//	agroedge-log <command> [flags] <events.cbor>
//
// Commands:
//
//	view     View events in human-readable format
//	export   Export events as JSON lines
//	stats    Show per-category and per-severity counts
//
// Examples:
//
//	# View everything
//	agroedge-log view events.cbor
//
//	# Only fail-safe events
//	agroedge-log view -min-severity failsafe events.cbor
//
//	# Follow one command's lifecycle
//	agroedge-log view -command-id cmd-42 events.cbor
//
//	# One boot session as JSONL
//	agroedge-log export -boot-id 6f3a... events.cbor
package main

import (
	"flag"
	"fmt"
	"os"
)

const usage = `agroedge-log - agroedge event log analyzer

Usage:
  agroedge-log <command> [flags] <events.cbor>

Commands:
  view     View events in human-readable format
  export   Export events as JSON lines
  stats    Show per-category and per-severity counts

Use "agroedge-log <command> -help" for more information about a command.
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

// filterFlags registers the shared filter flags on fs.
type filterFlags struct {
	bootID      *string
	deviceID    *string
	commandID   *string
	category    *string
	minSeverity *string
}

func newFilterFlags(fs *flag.FlagSet) *filterFlags {
	return &filterFlags{
		bootID:      fs.String("boot-id", "", "Filter by boot session"),
		deviceID:    fs.String("device-id", "", "Filter by device id"),
		commandID:   fs.String("command-id", "", "Filter by command id (command and valve events)"),
		category:    fs.String("category", "", "Filter by category (telemetry, command, valve, storage, network)"),
		minSeverity: fs.String("min-severity", "", "Minimum severity (info, warning, failsafe)"),
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

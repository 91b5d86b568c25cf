package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/agrosmart/edge-go/pkg/log"
)

// buildFilter converts the parsed flags into a reader filter.
func (ff *filterFlags) buildFilter() (*log.Filter, error) {
	f := &log.Filter{
		BootID:    *ff.bootID,
		DeviceID:  *ff.deviceID,
		CommandID: *ff.commandID,
	}

	if *ff.category != "" {
		c, err := parseCategory(*ff.category)
		if err != nil {
			return nil, err
		}
		f.Category = &c
	}
	if *ff.minSeverity != "" {
		s, err := parseSeverity(*ff.minSeverity)
		if err != nil {
			return nil, err
		}
		f.MinSeverity = &s
	}
	return f, nil
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "telemetry":
		return log.CategoryTelemetry, nil
	case "command":
		return log.CategoryCommand, nil
	case "valve":
		return log.CategoryValve, nil
	case "storage":
		return log.CategoryStorage, nil
	case "network":
		return log.CategoryNetwork, nil
	default:
		return 0, fmt.Errorf("unknown category %q", s)
	}
}

func parseSeverity(s string) (log.Severity, error) {
	switch strings.ToLower(s) {
	case "info":
		return log.SeverityInfo, nil
	case "warning":
		return log.SeverityWarning, nil
	case "failsafe":
		return log.SeverityFailsafe, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}

// openReader opens the log file named by the flag set's first argument
// with the given filter applied.
func openReader(fs *flag.FlagSet, ff *filterFlags) *log.Reader {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := ff.buildFilter()
	if err != nil {
		fatalf("%v", err)
	}

	r, err := log.NewReader(fs.Arg(0))
	if err != nil {
		fatalf("open log: %v", err)
	}
	r.SetFilter(filter)
	return r
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	ff := newFilterFlags(fs)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	r := openReader(fs, ff)
	defer r.Close()

	events, err := r.ReadAll()
	if err != nil {
		fatalf("read log: %v", err)
	}
	for _, ev := range events {
		fmt.Println(formatEvent(ev))
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	ff := newFilterFlags(fs)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	r := openReader(fs, ff)
	defer r.Close()

	enc := json.NewEncoder(os.Stdout)
	events, err := r.ReadAll()
	if err != nil {
		fatalf("read log: %v", err)
	}
	for _, ev := range events {
		if err := enc.Encode(exportEvent(ev)); err != nil {
			fatalf("encode: %v", err)
		}
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	ff := newFilterFlags(fs)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	r := openReader(fs, ff)
	defer r.Close()

	events, err := r.ReadAll()
	if err != nil {
		fatalf("read log: %v", err)
	}

	byCategory := make(map[log.Category]int)
	bySeverity := make(map[log.Severity]int)
	boots := make(map[string]bool)
	for _, ev := range events {
		byCategory[ev.Category]++
		bySeverity[ev.Severity]++
		boots[ev.BootID] = true
	}

	fmt.Printf("Events:        %d\n", len(events))
	fmt.Printf("Boot sessions: %d\n", len(boots))
	if len(events) > 0 {
		fmt.Printf("Time range:    %s .. %s\n",
			events[0].Timestamp.Format("2006-01-02 15:04:05"),
			events[len(events)-1].Timestamp.Format("2006-01-02 15:04:05"))
	}

	fmt.Println("\nBy category:")
	for _, c := range []log.Category{log.CategoryTelemetry, log.CategoryCommand, log.CategoryValve, log.CategoryStorage, log.CategoryNetwork} {
		if n := byCategory[c]; n > 0 {
			fmt.Printf("  %-10s %d\n", c, n)
		}
	}

	fmt.Println("\nBy severity:")
	for _, s := range []log.Severity{log.SeverityInfo, log.SeverityWarning, log.SeverityFailsafe} {
		if n := bySeverity[s]; n > 0 {
			fmt.Printf("  %-10s %d\n", s, n)
		}
	}
}

// formatEvent renders one event as a single human-readable line.
func formatEvent(ev log.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %-9s",
		ev.Timestamp.Format("2006-01-02 15:04:05.000"), ev.Severity, ev.Category)

	switch {
	case ev.Delivery != nil:
		fmt.Fprintf(&b, " %s %s (queue=%t pending=%dB cursor=%d)",
			ev.Delivery.Outcome, ev.Delivery.TelemetryID,
			ev.Delivery.FromQueue, ev.Delivery.PendingBytes, ev.Delivery.Cursor)
	case ev.Command != nil:
		fmt.Fprintf(&b, " %s %s", ev.Command.Status, ev.Command.CommandID)
		if ev.Command.Action != "" {
			fmt.Fprintf(&b, " action=%s duration=%ds", ev.Command.Action, ev.Command.DurationS)
		}
		if ev.Command.Reason != "" {
			fmt.Fprintf(&b, " reason=%s", ev.Command.Reason)
		}
	case ev.Valve != nil:
		st := "closed"
		if ev.Valve.Open {
			st = "open"
		}
		fmt.Fprintf(&b, " %s", st)
		if ev.Valve.DurationS > 0 {
			fmt.Fprintf(&b, " duration=%ds", ev.Valve.DurationS)
		}
		if ev.Valve.RemainingMs > 0 {
			fmt.Fprintf(&b, " remaining=%dms", ev.Valve.RemainingMs)
		}
		if ev.Valve.CommandID != "" {
			fmt.Fprintf(&b, " command=%s", ev.Valve.CommandID)
		}
		if ev.Valve.Forced {
			b.WriteString(" FORCED")
		}
	case ev.Storage != nil:
		fmt.Fprintf(&b, " %s", ev.Storage.Op)
		if ev.Storage.Bytes > 0 {
			fmt.Fprintf(&b, " bytes=%d", ev.Storage.Bytes)
		}
		if ev.Storage.Detail != "" {
			fmt.Fprintf(&b, " %s", ev.Storage.Detail)
		}
	case ev.Network != nil:
		fmt.Fprintf(&b, " %s connected=%t", ev.Network.Subsystem, ev.Network.Connected)
		if ev.Network.Attempt > 0 {
			fmt.Fprintf(&b, " attempt=%d", ev.Network.Attempt)
		}
	}

	if ev.Error != nil {
		fmt.Fprintf(&b, " error=%q", ev.Error.Message)
	}
	return b.String()
}

// jsonEvent is the export shape: string names instead of integer keys.
type jsonEvent struct {
	Timestamp string              `json:"timestamp"`
	BootID    string              `json:"boot_id"`
	DeviceID  string              `json:"device_id,omitempty"`
	Category  string              `json:"category"`
	Severity  string              `json:"severity"`
	Delivery  *log.DeliveryEvent  `json:"delivery,omitempty"`
	Command   *log.CommandEvent   `json:"command,omitempty"`
	Valve     *log.ValveEvent     `json:"valve,omitempty"`
	Storage   *log.StorageEvent   `json:"storage,omitempty"`
	Network   *log.NetworkEvent   `json:"network,omitempty"`
	Error     *log.ErrorEventData `json:"error,omitempty"`
}

func exportEvent(ev log.Event) jsonEvent {
	return jsonEvent{
		Timestamp: ev.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		BootID:    ev.BootID,
		DeviceID:  ev.DeviceID,
		Category:  ev.Category.String(),
		Severity:  ev.Severity.String(),
		Delivery:  ev.Delivery,
		Command:   ev.Command,
		Valve:     ev.Valve,
		Storage:   ev.Storage,
		Network:   ev.Network,
		Error:     ev.Error,
	}
}

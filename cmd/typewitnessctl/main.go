// typewitnessctl is the control CLI for typewitness.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"typewitness/internal/analytics"
	"typewitness/internal/config"
	"typewitness/internal/report"
	"typewitness/internal/session"
	"typewitness/internal/store"
)

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	switch cmd {
	case "sessions":
		cmdSessions()
	case "analytics":
		requireArg(2, "Usage: typewitnessctl analytics <session-id>")
		cmdAnalytics(flag.Arg(1))
	case "report":
		requireArg(2, "Usage: typewitnessctl report <session-id>")
		cmdReport(flag.Arg(1))
	case "submit":
		requireArg(2, "Usage: typewitnessctl submit <session-id>")
		cmdSubmit(flag.Arg(1))
	case "export":
		requireArg(2, "Usage: typewitnessctl export <session-id> [output.json]")
		output := ""
		if flag.NArg() >= 3 {
			output = flag.Arg(2)
		}
		cmdExport(flag.Arg(1), output)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `typewitnessctl - Control utility for typewitness

Usage: typewitnessctl [options] <command> [args]

Commands:
  sessions              List tracked sessions with event counts
  analytics <id>        Compute and print the metric values for a session
  report <id>           Print the full typing-behavior report for a session
  submit <id>           Mark a session as submitted
  export <id> [out]     Export session metadata, events count and analytics as JSON
  help                  Show this help message

Options:
  -config <path>  Path to config file (default: ~/.typewitness/config.toml)`)
}

func requireArg(n int, msg string) {
	if flag.NArg() < n {
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
}

func openStore() *store.Store {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		fatal("open store: %v", err)
	}
	return st
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func cmdSessions() {
	st := openStore()
	defer st.Close()

	sessions, err := st.ListSessions()
	if err != nil {
		fatal("list sessions: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return
	}

	fmt.Printf("%-36s  %-12s  %-9s  %8s  %12s\n", "SESSION", "PROJECT", "STATE", "EVENTS", "DURATION")
	for _, s := range sessions {
		state := "open"
		if s.Submitted {
			state = "submitted"
		}
		dur := time.Duration(s.DurationMs) * time.Millisecond
		fmt.Printf("%-36s  %-12s  %-9s  %8d  %12s\n", s.ID, s.ProjectID, state, s.EventCount, dur.Round(time.Second))
	}
}

func cmdAnalytics(sessionID string) {
	st := openStore()
	defer st.Close()

	result := computeAnalytics(st, sessionID)
	for _, id := range analytics.Default().IDs() {
		fmt.Printf("%-28s %12.3f\n", id, result[id])
	}
}

func cmdReport(sessionID string) {
	st := openStore()
	defer st.Close()

	info := sessionInfo(st, sessionID)
	result := computeAnalytics(st, sessionID)
	r := report.Build(info, result)
	report.Print(os.Stdout, r, analytics.Default().IDs())
}

func cmdSubmit(sessionID string) {
	st := openStore()
	defer st.Close()

	changed, err := st.MarkSubmitted(sessionID, time.Now())
	if err != nil {
		fatal("submit session: %v", err)
	}
	if changed {
		fmt.Printf("Session %s marked as submitted\n", sessionID)
	} else {
		fmt.Printf("Session %s was already submitted\n", sessionID)
	}
}

func cmdExport(sessionID, output string) {
	st := openStore()
	defer st.Close()

	info := sessionInfo(st, sessionID)
	result := computeAnalytics(st, sessionID)
	r := report.Build(info, result)

	payload := struct {
		Session    session.Info     `json:"session"`
		Analytics  analytics.Result `json:"analytics"`
		Assessment string           `json:"assessment"`
		ExportedAt time.Time        `json:"exportedAt"`
	}{
		Session:    info,
		Analytics:  result,
		Assessment: string(r.Assessment),
		ExportedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fatal("encode export: %v", err)
	}

	if output == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		fatal("write export: %v", err)
	}
	fmt.Printf("Exported session %s to %s\n", sessionID, output)
}

// computeAnalytics feeds the stored event sequence through the default
// engine.
func computeAnalytics(st *store.Store, sessionID string) analytics.Result {
	events, err := st.EventsForSession(sessionID)
	if err != nil {
		fatal("load events: %v", err)
	}
	engine := analytics.NewEngine(analytics.Default(), nil)
	return engine.Compute(events)
}

// sessionInfo builds a session snapshot from the stored row and counters.
func sessionInfo(st *store.Store, sessionID string) session.Info {
	ws, err := st.SessionStats(sessionID)
	if err != nil {
		fatal("load session: %v", err)
	}
	if ws == nil {
		fatal("session not found: %s", sessionID)
	}

	info := session.Info{
		ID:             ws.ID,
		ProjectID:      ws.ProjectID,
		ExternalUserID: ws.ExternalUserID,
		SessionStart:   ws.SessionStart,
		Submitted:      ws.Submitted,
		IPAddress:      ws.IPAddress,
		UserAgent:      ws.UserAgent,
		EventCount:     int(ws.EventCount),
		DurationMs:     ws.DurationMs,
	}
	if ws.SessionEnd != nil {
		info.SessionEnd = *ws.SessionEnd
	}
	if ws.SubmissionTime != nil {
		info.SubmissionTime = *ws.SubmissionTime
	}
	return info
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"call-relay/internal/observability"
	"call-relay/internal/store"

	"github.com/joho/godotenv"
)

// Offline maintenance for the processed_calls store. Runs against the same
// SQLite file as the server, so stop the server first or point -db at a copy.
func main() {
	var dbPath string
	var olderThan time.Duration

	flag.StringVar(&dbPath, "db", "", "SQLite database path. Defaults to DATABASE_PATH, then processed_calls.db.")
	flag.DurationVar(&olderThan, "older-than", time.Hour, "Age cutoff for mark-stale (e.g. 30m, 2h).")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	if os.Getenv("GO_ENV") != "production" {
		// env.local is optional here; -db alone is enough for a local run
		_ = godotenv.Load("env.local")
	}
	if dbPath == "" {
		dbPath = os.Getenv("DATABASE_PATH")
	}
	if dbPath == "" {
		dbPath = "processed_calls.db"
	}

	logger := observability.NewLogger()
	ctx := context.Background()

	st, err := store.New(dbPath, logger)
	if err != nil {
		log.Fatalf("failed to open call store: %v", err)
	}
	defer st.Close()

	switch cmd := flag.Arg(0); cmd {
	case "stats":
		stats, err := st.Stats(ctx)
		if err != nil {
			log.Fatalf("stats: %v", err)
		}
		fmt.Printf("total processed:     %d\n", stats.TotalProcessed)
		fmt.Printf("successfully posted: %d\n", stats.SuccessfullyPosted)
		fmt.Printf("failed:              %d\n", stats.Failed)

	case "show":
		if flag.NArg() < 2 {
			log.Fatal("show requires a call id")
		}
		rec, err := st.GetCall(ctx, flag.Arg(1))
		if err != nil {
			log.Fatalf("show: %v", err)
		}
		fmt.Printf("call_id:    %s\n", rec.CallID)
		fmt.Printf("from/to:    %s -> %s\n", rec.FromNumber, rec.ToNumber)
		fmt.Printf("duration:   %ds\n", rec.Duration)
		fmt.Printf("phase:      %s (posted=%t)\n", rec.Phase, rec.Posted)
		fmt.Printf("claimed_at: %s\n", rec.ClaimedAt)
		fmt.Printf("transcript:\n%s\n", rec.Transcript)

	case "mark-stale":
		n, err := st.MarkStaleProcessing(ctx, olderThan)
		if err != nil {
			log.Fatalf("mark-stale: %v", err)
		}
		fmt.Printf("marked %d stale claims as failed\n", n)

	case "reset-unposted":
		n, err := st.ResetUnposted(ctx)
		if err != nil {
			log.Fatalf("reset-unposted: %v", err)
		}
		fmt.Printf("reset %d unposted calls for reclaim\n", n)

	case "delete-unposted":
		n, err := st.DeleteUnposted(ctx)
		if err != nil {
			log.Fatalf("delete-unposted: %v", err)
		}
		fmt.Printf("deleted %d unposted calls\n", n)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: maintenance [flags] <command>

Commands:
  stats            Print processed/posted/failed counts.
  show <call-id>   Print one call record.
  mark-stale       Mark processing claims older than -older-than as failed.
  reset-unposted   Backdate unposted calls so redeliveries claim them again.
  delete-unposted  Delete every call that never posted a notification.

Flags:
`)
	flag.PrintDefaults()
}

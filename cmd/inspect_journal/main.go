package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/charleschow/funding-arb/internal/core/tracking"
)

func main() {
	dbPath := flag.String("db", "data/journal.db", "path to the session journal")
	n := flag.Int("n", 10, "max sessions to list")
	session := flag.String("session", "", "print every event of this session")
	pretty := flag.Bool("pretty", false, "pretty-print event payloads")
	flag.Parse()

	store, err := tracking.OpenStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open journal: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *session != "" {
		printEvents(store, *session, *pretty)
		return
	}

	rows, err := store.RecentSessions(*n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(1)
	}
	for _, r := range rows {
		fmt.Printf("--- %s %s %s/%s %s ---\n", r.SessionID, r.Symbol, r.PrimaryVenue, r.HedgeVenue, r.Outcome)
		fmt.Printf("  order=%s filled=%s/%s hedged=%s price=%s renewals=%d quotes=%d\n",
			r.PrimaryOrderID, r.TotalFilled, r.TotalSize, r.TotalHedged, r.FinalPrice, r.Renewals, r.PriceUpdates)
		fmt.Printf("  %s -> %s  %s\n", r.StartedAt, r.FinishedAt, r.Reason)
		if r.ManualAction != "" {
			fmt.Printf("  MANUAL: %s\n", r.ManualAction)
		}
	}
	if len(rows) == 0 {
		fmt.Println("(no sessions recorded)")
	} else {
		fmt.Printf("(%d sessions)\n", len(rows))
	}
}

func printEvents(store *tracking.Store, session string, pretty bool) {
	rows, err := store.SessionEvents(session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(1)
	}
	for _, r := range rows {
		payload := r.Payload
		if pretty {
			var buf bytes.Buffer
			if err := json.Indent(&buf, []byte(r.Payload), "", "  "); err == nil {
				payload = buf.String()
			}
		}
		line := fmt.Sprintf("--- id=%d %s %s %s", r.ID, r.At, r.Type, r.Venue)
		if r.OrderID.Valid {
			line += fmt.Sprintf(" order=%s status=%s filled=%s", r.OrderID.String, r.Status.String, r.Filled.String)
		}
		fmt.Printf("%s ---\n%s\n\n", line, payload)
	}
	fmt.Printf("(%d events)\n", len(rows))
}

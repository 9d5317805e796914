package tracking

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charleschow/funding-arb/internal/events"
	"github.com/charleschow/funding-arb/internal/telemetry"

	_ "modernc.org/sqlite"
)

const (
	defaultMaxBytes int64   = 256 << 20 // 256 MiB
	evictPct        float64 = 0.10      // evict oldest 10% of rows
	vacuumInterval          = 10        // incremental vacuum every N evictions
)

// Store is the session journal: every bus event in a FIFO SQLite table,
// plus one row per finished session. Oldest event rows are evicted once the
// database outgrows its budget.
type Store struct {
	db           *sql.DB
	mu           sync.Mutex
	maxBytes     int64
	cachedSize   int64
	rowCount     int64
	evictCounter int
}

func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	var avMode int
	if err := db.QueryRow(`PRAGMA auto_vacuum`).Scan(&avMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read auto_vacuum: %w", err)
	}
	if avMode != 2 {
		if _, err := db.Exec(`PRAGMA auto_vacuum = INCREMENTAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set auto_vacuum: %w", err)
		}
		if _, err := db.Exec(`VACUUM`); err != nil {
			telemetry.Warnf("journal: VACUUM to enable auto_vacuum failed: %v", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}

	var size int64
	db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`).Scan(&size)
	var rowCount int64
	db.QueryRow(`SELECT COUNT(*) FROM journal_events`).Scan(&rowCount)

	telemetry.Plainf("journal: opened %s  size=%d  rows=%d", path, size, rowCount)
	return &Store{db: db, maxBytes: defaultMaxBytes, cachedSize: size, rowCount: rowCount}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS journal_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id    TEXT    NOT NULL UNIQUE,
	session_id  TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	venue       TEXT    NOT NULL DEFAULT '',
	symbol      TEXT    NOT NULL DEFAULT '',
	at          TEXT    NOT NULL,

	-- Order and hedge events
	order_id    TEXT,
	status      TEXT,
	size        TEXT,
	filled      TEXT,

	payload     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_events_session ON journal_events(session_id, id);

CREATE TABLE IF NOT EXISTS sessions (
	session_id       TEXT PRIMARY KEY,
	primary_venue    TEXT NOT NULL,
	hedge_venue      TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	primary_order_id TEXT NOT NULL DEFAULT '',
	outcome          TEXT NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	manual_action    TEXT NOT NULL DEFAULT '',
	total_filled     TEXT NOT NULL,
	total_hedged     TEXT NOT NULL,
	total_size       TEXT NOT NULL,
	final_price      TEXT NOT NULL,
	renewals         INTEGER NOT NULL,
	price_updates    INTEGER NOT NULL,
	started_at       TEXT NOT NULL,
	finished_at      TEXT NOT NULL
)`

// Append stores one bus event. Duplicate event ids are ignored.
func (s *Store) Append(e events.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	orderID, status, size, filled := indexColumns(e.Payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO journal_events (
			event_id, session_id, type, venue, symbol, at,
			order_id, status, size, filled, payload
		) VALUES (?,?,?,?,?,?, ?,?,?,?, ?)`,
		e.ID, e.SessionID, string(e.Type), e.Venue, e.Symbol, e.Timestamp.UTC().Format(time.RFC3339Nano),
		orderID, status, size, filled, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", e.Type, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	s.rowCount++
	s.refreshSize()
	if s.cachedSize > s.maxBytes {
		s.evict()
	}
	return nil
}

// indexColumns pulls the queryable fields out of order and hedge payloads.
func indexColumns(p any) (orderID, status, size, filled any) {
	switch v := p.(type) {
	case events.OrderEvent:
		return v.OrderID, v.Status, v.Size.String(), v.FilledQuantity.String()
	case events.HedgeEvent:
		st := "failed"
		if v.Confirmed {
			st = "confirmed"
		}
		return v.HedgeOrderID, st, v.Size.String(), nil
	default:
		return nil, nil, nil, nil
	}
}

// RecordSession upserts the summary row of a terminal session.
func (s *Store) RecordSession(sessionID, symbol string, ev events.SessionEvent, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO sessions (
			session_id, primary_venue, hedge_venue, symbol, primary_order_id,
			outcome, reason, manual_action,
			total_filled, total_hedged, total_size, final_price,
			renewals, price_updates, started_at, finished_at
		) VALUES (?,?,?,?,?, ?,?,?, ?,?,?,?, ?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			primary_order_id=excluded.primary_order_id, outcome=excluded.outcome,
			reason=excluded.reason, manual_action=excluded.manual_action,
			total_filled=excluded.total_filled, total_hedged=excluded.total_hedged,
			final_price=excluded.final_price, renewals=excluded.renewals,
			price_updates=excluded.price_updates, finished_at=excluded.finished_at`,
		sessionID, ev.PrimaryVenue, ev.HedgeVenue, symbol, ev.PrimaryOrderID,
		ev.Outcome, ev.Reason, ev.ManualAction,
		ev.TotalFilled.String(), ev.TotalHedged.String(), ev.TotalSize.String(), ev.FinalPrice.String(),
		ev.RenewalsCount, ev.PriceUpdatesCount,
		ev.StartedAt.UTC().Format(time.RFC3339Nano), finishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", sessionID, err)
	}
	return nil
}

// SessionRow is one finished session as stored.
type SessionRow struct {
	SessionID      string
	PrimaryVenue   string
	HedgeVenue     string
	Symbol         string
	PrimaryOrderID string
	Outcome        string
	Reason         string
	ManualAction   string
	TotalFilled    string
	TotalHedged    string
	TotalSize      string
	FinalPrice     string
	Renewals       int
	PriceUpdates   int
	StartedAt      string
	FinishedAt     string
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]SessionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT session_id, primary_venue, hedge_venue, symbol, primary_order_id,
			outcome, reason, manual_action, total_filled, total_hedged, total_size,
			final_price, renewals, price_updates, started_at, finished_at
		 FROM sessions ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.SessionID, &r.PrimaryVenue, &r.HedgeVenue, &r.Symbol, &r.PrimaryOrderID,
			&r.Outcome, &r.Reason, &r.ManualAction, &r.TotalFilled, &r.TotalHedged, &r.TotalSize,
			&r.FinalPrice, &r.Renewals, &r.PriceUpdates, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventRow is one journal entry.
type EventRow struct {
	ID      int64
	Type    string
	Venue   string
	At      string
	OrderID sql.NullString
	Status  sql.NullString
	Size    sql.NullString
	Filled  sql.NullString
	Payload string
}

// SessionEvents returns a session's events in insertion order.
func (s *Store) SessionEvents(sessionID string) ([]EventRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, type, venue, at, order_id, status, size, filled, payload
		 FROM journal_events WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.ID, &r.Type, &r.Venue, &r.At, &r.OrderID, &r.Status, &r.Size, &r.Filled, &r.Payload); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// refreshSize re-reads the database file size from SQLite pragmas.
// Must be called with s.mu held.
func (s *Store) refreshSize() {
	var size int64
	row := s.db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`)
	if err := row.Scan(&size); err == nil {
		s.cachedSize = size
	}
}

// evict deletes the oldest 10% of event rows by count. Session summaries
// are kept.
// Must be called with s.mu held.
func (s *Store) evict() {
	toDelete := int64(float64(s.rowCount) * evictPct)
	if toDelete < 1 {
		toDelete = 1
	}

	res, err := s.db.Exec(
		`DELETE FROM journal_events WHERE id IN (
			SELECT id FROM journal_events ORDER BY id ASC LIMIT ?
		)`, toDelete,
	)
	if err != nil {
		telemetry.Warnf("journal evict: %v", err)
		return
	}

	deleted, _ := res.RowsAffected()
	s.rowCount -= deleted
	s.evictCounter++

	telemetry.Infof("journal: evicted %d rows (target %d)", deleted, toDelete)

	if s.evictCounter%vacuumInterval == 0 {
		s.db.Exec(`PRAGMA incremental_vacuum`)
	}

	s.refreshSize()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

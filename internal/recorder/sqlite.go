package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ArenaPilot/internal/events"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists match history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dbPath == ":memory:" {
		// Each new connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS match_joins (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			agent_id    TEXT NOT NULL,
			arena_id    TEXT NOT NULL,
			lobby_size  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_joins_agent ON match_joins(agent_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS match_results (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			agent_id    TEXT NOT NULL,
			arena_id    TEXT NOT NULL,
			match_id    TEXT,
			status      TEXT,
			winner      TEXT,
			prize_pool  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_ts ON match_results(timestamp)`,

		`CREATE TABLE IF NOT EXISTS match_aborts (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			agent_id    TEXT NOT NULL,
			arena_id    TEXT NOT NULL,
			reason      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_aborts_ts ON match_aborts(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Publish records an event in the table for its kind.
func (r *SQLiteRecorder) Publish(ctx context.Context, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := evt.At
	if ts.IsZero() {
		ts = time.Now()
	}

	var err error
	switch evt.Kind {
	case events.KindAutoJoined:
		_, err = r.db.ExecContext(ctx, `INSERT INTO match_joins
			(timestamp, agent_id, arena_id, lobby_size) VALUES (?,?,?,?)`,
			ts.Unix(), evt.AgentID, evt.ArenaID, evt.LobbySize)
	case events.KindMatchResult:
		var matchID, winner string
		var prize float64
		if evt.Result != nil {
			matchID, winner, prize = evt.Result.MatchID, evt.Result.Winner, evt.Result.PrizePool
		}
		_, err = r.db.ExecContext(ctx, `INSERT INTO match_results
			(timestamp, agent_id, arena_id, match_id, status, winner, prize_pool) VALUES (?,?,?,?,?,?,?)`,
			ts.Unix(), evt.AgentID, evt.ArenaID, matchID, string(evt.Status), winner, prize)
	case events.KindMatchAborted:
		_, err = r.db.ExecContext(ctx, `INSERT INTO match_aborts
			(timestamp, agent_id, arena_id, reason) VALUES (?,?,?,?)`,
			ts.Unix(), evt.AgentID, evt.ArenaID, evt.Reason)
	default:
		return fmt.Errorf("unknown event kind %q", evt.Kind)
	}
	return err
}

// RecentResults returns the newest match results first.
func (r *SQLiteRecorder) RecentResults(ctx context.Context, limit int) ([]ResultRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT timestamp, agent_id, arena_id, match_id, status, winner, prize_pool
		FROM match_results ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var row ResultRow
		var ts int64
		if err := rows.Scan(&ts, &row.AgentID, &row.ArenaID, &row.MatchID, &row.Status, &row.Winner, &row.PrizePool); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		row.Timestamp = time.Unix(ts, 0)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
